// Package riftlens defines the core types shared across the crawl, merge and aggregation subsystems.
package riftlens

import (
	"fmt"
	"time"
)

// EntityID is the stable player identifier (PUUID). It is the store's primary key.
type EntityID = string

// Seed is a riot id used to start a crawl.
type Seed struct {
	Name string `json:"name" mapstructure:"name"`
	Tag  string `json:"tag" mapstructure:"tag"`
}

// String renders the seed as name#tag.
func (s Seed) String() string {
	return s.Name + "#" + s.Tag
}

// ManifestEntry describes one discovered player with a resolved display name.
type ManifestEntry struct {
	ID          EntityID `json:"puuid"`
	Name        string   `json:"name"`
	Tag         string   `json:"tag"`
	DisplayName string   `json:"displayName"`
}

// NewManifestEntry builds an entry whose display name is name#tag.
func NewManifestEntry(id EntityID, name, tag string) ManifestEntry {
	return ManifestEntry{
		ID:          id,
		Name:        name,
		Tag:         tag,
		DisplayName: fmt.Sprintf("%s#%s", name, tag),
	}
}

// ParticipantStat is one participant's normalized statistics for one match.
type ParticipantStat struct {
	PUUID        string `json:"puuid"`
	SummonerName string `json:"summonerName,omitempty"`
	ChampionName string `json:"championName"`
	ChampLevel   int    `json:"champLevel,omitempty"`
	Position     string `json:"position"`
	TeamID       int    `json:"teamId,omitempty"`
	Win          bool   `json:"win"`

	Kills                int     `json:"kills"`
	Deaths               int     `json:"deaths"`
	Assists              int     `json:"assists"`
	TotalMinionsKilled   int     `json:"totalMinionsKilled,omitempty"`
	NeutralMinionsKilled int     `json:"neutralMinionsKilled,omitempty"`
	CS                   int     `json:"cs"`
	Gold                 float64 `json:"gold"`
	VisionScore          float64 `json:"visionScore"`
	WardsPlaced          int     `json:"wardsPlaced,omitempty"`
	WardsKilled          int     `json:"wardsKilled,omitempty"`
	Damage               float64 `json:"damage"`
	PhysicalDamage       float64 `json:"physicalDamageDealtToChampions,omitempty"`
	MagicDamage          float64 `json:"magicDamageDealtToChampions,omitempty"`
	DamageTaken          float64 `json:"totalDamageTaken,omitempty"`
	DamageSelfMitigated  float64 `json:"damageSelfMitigated,omitempty"`
	Items                []int   `json:"items,omitempty"`
	Summoner1ID          int     `json:"summoner1Id,omitempty"`
	Summoner2ID          int     `json:"summoner2Id,omitempty"`
	TurretKills          int     `json:"turretKills,omitempty"`
	ObjectivesStolen     int     `json:"objectivesStolen,omitempty"`

	CSPerMin          float64 `json:"csPerMin"`
	VisionPerMin      float64 `json:"visionPerMin"`
	KDA               float64 `json:"kda"`
	KillParticipation float64 `json:"killParticipation"`
	// KDAUnreadable marks a KDA replaced by the sentinel because its inputs
	// were malformed or missing.
	KDAUnreadable bool `json:"kdaUnreadable,omitempty"`
}

// MatchRecord is one match as stored in an entity's history. Player holds the
// owning entity's own statistics; Participants optionally carries all ten.
type MatchRecord struct {
	MatchID      string            `json:"matchId"`
	GameCreation int64             `json:"gameCreation,omitempty"`
	GameDuration int               `json:"gameDuration,omitempty"`
	GameMode     string            `json:"gameMode,omitempty"`
	QueueID      int               `json:"queueId,omitempty"`
	Player       *ParticipantStat  `json:"playerData,omitempty"`
	Participants []ParticipantStat `json:"participants,omitempty"`
}

// Stats returns the owning player's statistics, or the zero value when the
// record carries none.
func (m MatchRecord) Stats() ParticipantStat {
	if m.Player == nil {
		return ParticipantStat{}
	}
	return *m.Player
}

// Participant finds a participant by id in the full participant set.
func (m MatchRecord) Participant(id EntityID) (ParticipantStat, bool) {
	for _, p := range m.Participants {
		if p.PUUID == id {
			return p, true
		}
	}
	return ParticipantStat{}, false
}

// ForPlayer returns a copy of the record whose Player is the given participant.
func (m MatchRecord) ForPlayer(id EntityID) (MatchRecord, bool) {
	p, ok := m.Participant(id)
	if !ok {
		return MatchRecord{}, false
	}
	out := m
	out.Player = &p
	return out, true
}

// UsageCount is one row of a usage table (champion or position).
type UsageCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AnnualStats aggregates an entity's match history.
type AnnualStats struct {
	PlayerName      string       `json:"playerName"`
	TotalGames      int          `json:"totalGames"`
	Wins            int          `json:"wins"`
	WinRate         float64      `json:"winRate"`
	AvgKDA          float64      `json:"avgKDA"`
	AvgCSPerMin     float64      `json:"avgCsPerMin"`
	AvgVisionPerMin float64      `json:"avgVisionPerMin"`
	AvgDamage       float64      `json:"avgDamage"`
	AvgGold         float64      `json:"avgGold"`
	ChampionCounts  []UsageCount `json:"championCounts"`
	PositionCounts  []UsageCount `json:"positionCounts"`
}

// EntityReport is the durable per-player document.
type EntityReport struct {
	ID             EntityID      `json:"PlayerID"`
	DisplayName    string        `json:"playerName"`
	MatchHistory   []MatchRecord `json:"matchHistory"`
	AnnualStats    *AnnualStats  `json:"annualStats,omitempty"`
	WorstGameStats *MatchRecord  `json:"worstGameStats,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	// Version increments on every successful write and backs conditional writes.
	Version int64 `json:"version"`
}

// Summary is the pair of structures consumed by report generation.
type Summary struct {
	PlayerID       EntityID     `json:"playerId"`
	PlayerName     string       `json:"playerName"`
	AnnualStats    *AnnualStats `json:"annualStats"`
	WorstGameStats *MatchRecord `json:"worstGameStats"`
}

// ScanPage is one page of a store scan. An empty Next means the scan is exhausted.
type ScanPage struct {
	Reports []EntityReport
	Next    string
}
