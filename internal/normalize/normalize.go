// Package normalize turns raw match payloads into typed, derived statistics.
// Every function is pure.
package normalize

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/shopspring/decimal"
)

// KDASentinel stands in for a KDA that could not be read. It is large enough
// that the game never counts as a bad-game candidate.
const KDASentinel = 99.0

// ErrParticipantMissing is returned when the target is not in the match.
var ErrParticipantMissing = errors.New("participant not in match")

// Round rounds half away from zero to two decimals. All derived and aggregate
// values go through it.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Ratio divides and rounds, returning 0 for a zero divisor.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return Round(num / den)
}

// KDA returns (kills+assists)/max(1,deaths), rounded.
func KDA(kills, deaths, assists int) float64 {
	d := deaths
	if d < 1 {
		d = 1
	}
	return Ratio(float64(kills+assists), float64(d))
}

// PerMinute converts a total to a per-minute rate over durationSec seconds.
func PerMinute(total float64, durationSec int) float64 {
	if durationSec <= 0 {
		return 0
	}
	return Ratio(total, float64(durationSec)/60)
}

// Participants normalizes every participant of raw.
func Participants(raw riftlens.RawMatch) ([]riftlens.ParticipantStat, []Warning) {
	rec, warnings := normalizeMatch(raw)
	return rec.Participants, warnings
}

// Match builds the record of target's view of raw: metadata, target's own
// statistics as Player, and the full participant set.
func Match(raw riftlens.RawMatch, target riftlens.EntityID) (riftlens.MatchRecord, []Warning, error) {
	rec, warnings := normalizeMatch(raw)
	out, ok := rec.ForPlayer(target)
	if !ok {
		return riftlens.MatchRecord{}, warnings, fmt.Errorf("match %s: %s: %w", rec.MatchID, target, ErrParticipantMissing)
	}
	return out, warnings, nil
}

func normalizeMatch(raw riftlens.RawMatch) (riftlens.MatchRecord, []Warning) {
	c := &coercer{matchID: raw.Metadata.MatchID}
	rec := readMeta(c, raw)
	stats := make([]riftlens.ParticipantStat, 0, len(raw.Info.Participants))
	kdaValid := make([]bool, 0, len(raw.Info.Participants))
	teamKills := map[int]int{}
	for _, p := range raw.Info.Participants {
		c.participant = p.PUUID()
		s, ok := readParticipant(c, p)
		stats = append(stats, s)
		kdaValid = append(kdaValid, ok)
		teamKills[s.TeamID] += s.Kills
	}
	for i := range stats {
		derive(&stats[i], rec.GameDuration, teamKills[stats[i].TeamID], kdaValid[i])
	}
	rec.Participants = stats
	return rec, c.warnings
}

func readMeta(c *coercer, raw riftlens.RawMatch) riftlens.MatchRecord {
	info := map[string]any{
		"gameCreation": raw.Info.GameCreation,
		"gameDuration": raw.Info.GameDuration,
		"gameMode":     raw.Info.GameMode,
		"queueId":      raw.Info.QueueID,
	}
	return riftlens.MatchRecord{
		MatchID:      raw.Metadata.MatchID,
		GameCreation: c.int64(info, "gameCreation"),
		GameDuration: c.int(info, "gameDuration"),
		GameMode:     c.str(info, "gameMode"),
		QueueID:      c.int(info, "queueId"),
	}
}

// readParticipant reads raw counters. ok is false when a KDA input was malformed.
func readParticipant(c *coercer, p riftlens.RawParticipant) (riftlens.ParticipantStat, bool) {
	m := map[string]any(p)
	s := riftlens.ParticipantStat{
		PUUID:        p.PUUID(),
		SummonerName: c.str(m, "summonerName"),
		ChampionName: c.str(m, "championName"),
		ChampLevel:   c.int(m, "champLevel"),
		Position:     c.str(m, "teamPosition"),
		TeamID:       c.int(m, "teamId"),
		Win:          c.boolean(m, "win"),
	}
	before := len(c.warnings)
	s.Kills = c.int(m, "kills")
	s.Deaths = c.int(m, "deaths")
	s.Assists = c.int(m, "assists")
	kdaOK := len(c.warnings) == before
	if s.SummonerName == "" {
		s.SummonerName = c.str(m, "riotIdGameName")
	}
	if s.Position == "" {
		s.Position = c.str(m, "individualPosition")
	}
	s.TotalMinionsKilled = c.int(m, "totalMinionsKilled")
	s.NeutralMinionsKilled = c.int(m, "neutralMinionsKilled")
	s.CS = s.TotalMinionsKilled + s.NeutralMinionsKilled
	s.Gold = c.float(m, "goldEarned", 0)
	s.VisionScore = c.float(m, "visionScore", 0)
	s.WardsPlaced = c.int(m, "wardsPlaced")
	s.WardsKilled = c.int(m, "wardsKilled")
	s.Damage = c.float(m, "totalDamageDealtToChampions", 0)
	s.PhysicalDamage = c.float(m, "physicalDamageDealtToChampions", 0)
	s.MagicDamage = c.float(m, "magicDamageDealtToChampions", 0)
	s.DamageTaken = c.float(m, "totalDamageTaken", 0)
	s.DamageSelfMitigated = c.float(m, "damageSelfMitigated", 0)
	s.Items = readItems(c, m)
	s.Summoner1ID = c.int(m, "summoner1Id")
	s.Summoner2ID = c.int(m, "summoner2Id")
	s.TurretKills = c.int(m, "turretKills")
	s.ObjectivesStolen = c.int(m, "objectivesStolen")
	return s, kdaOK
}

func readItems(c *coercer, m map[string]any) []int {
	items := make([]int, 7)
	for i := range items {
		items[i] = c.int(m, fmt.Sprintf("item%d", i))
	}
	return items
}

func derive(s *riftlens.ParticipantStat, durationSec, teamKills int, kdaValid bool) {
	s.CSPerMin = PerMinute(float64(s.CS), durationSec)
	s.VisionPerMin = PerMinute(s.VisionScore, durationSec)
	s.KDA = KDA(s.Kills, s.Deaths, s.Assists)
	if !kdaValid {
		s.KDA = KDASentinel
		s.KDAUnreadable = true
	}
	s.KillParticipation = Ratio(float64(s.Kills+s.Assists), float64(teamKills))
}
