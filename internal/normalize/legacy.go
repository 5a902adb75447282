package normalize

import (
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// LegacyRecord coerces a historical stored record into a MatchRecord. Older
// generators wrote a flat per-player object whose derived values were text
// ("0.50"); newer ones nest the player under "playerData" and may carry the
// full "participants" list. Stored derived values are kept as read, never
// recomputed. A missing or unreadable kda becomes KDASentinel.
func LegacyRecord(raw map[string]any) (riftlens.MatchRecord, []Warning) {
	c := &coercer{}
	c.matchID = c.str(raw, "matchId")
	rec := riftlens.MatchRecord{
		MatchID:      c.matchID,
		GameCreation: c.int64(raw, "gameCreation"),
		GameDuration: c.int(raw, "gameDuration"),
		GameMode:     c.str(raw, "gameMode"),
		QueueID:      c.int(raw, "queueId"),
	}

	switch pd := raw["playerData"].(type) {
	case map[string]any:
		s := legacyStat(c, pd)
		rec.Player = &s
	default:
		if isFlatPlayer(raw) {
			s := legacyStat(c, raw)
			rec.Player = &s
		}
	}

	if list, ok := raw["participants"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				c.warn("participants", item)
				continue
			}
			rec.Participants = append(rec.Participants, legacyStat(c, m))
		}
	}
	return rec, c.warnings
}

func isFlatPlayer(m map[string]any) bool {
	for _, k := range []string{"championName", "kills", "deaths", "kda", "win"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// pick returns the first key present in m, or the first key when none is.
func pick(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return k
		}
	}
	return keys[0]
}

func legacyStat(c *coercer, m map[string]any) riftlens.ParticipantStat {
	c.participant = c.str(m, "puuid")
	s := riftlens.ParticipantStat{
		PUUID:        c.participant,
		SummonerName: c.str(m, "summonerName"),
		ChampionName: c.str(m, "championName"),
		ChampLevel:   c.int(m, "champLevel"),
		Position:     c.str(m, pick(m, "position", "teamPosition", "individualPosition")),
		TeamID:       c.int(m, "teamId"),
		Win:          c.boolean(m, "win"),
		Kills:        c.int(m, "kills"),
		Deaths:       c.int(m, "deaths"),
		Assists:      c.int(m, "assists"),

		TotalMinionsKilled:   c.int(m, "totalMinionsKilled"),
		NeutralMinionsKilled: c.int(m, "neutralMinionsKilled"),
		Gold:                 c.float(m, pick(m, "gold", "goldEarned"), 0),
		VisionScore:          c.float(m, "visionScore", 0),
		WardsPlaced:          c.int(m, "wardsPlaced"),
		WardsKilled:          c.int(m, "wardsKilled"),
		Damage:               c.float(m, pick(m, "damage", "totalDamageDealtToChampions"), 0),
		PhysicalDamage:       c.float(m, "physicalDamageDealtToChampions", 0),
		MagicDamage:          c.float(m, "magicDamageDealtToChampions", 0),
		DamageTaken:          c.float(m, "totalDamageTaken", 0),
		DamageSelfMitigated:  c.float(m, "damageSelfMitigated", 0),
		Summoner1ID:          c.int(m, "summoner1Id"),
		Summoner2ID:          c.int(m, "summoner2Id"),
		TurretKills:          c.int(m, "turretKills"),
		ObjectivesStolen:     c.int(m, "objectivesStolen"),

		CSPerMin:          c.float(m, "csPerMin", 0),
		VisionPerMin:      c.float(m, "visionPerMin", 0),
		KillParticipation: c.float(m, "killParticipation", 0),
	}
	if _, present := c.optionalFloat(m, "cs", 0); present {
		s.CS = c.int(m, "cs")
	} else {
		s.CS = s.TotalMinionsKilled + s.NeutralMinionsKilled
	}
	kda, present := c.optionalFloat(m, "kda", KDASentinel)
	if present && kda < 0 {
		c.warn("kda", m["kda"])
		present = false
	}
	if present {
		s.KDA = kda
	} else {
		s.KDA = KDASentinel
		s.KDAUnreadable = true
	}
	if items, ok := m["items"].([]any); ok {
		for _, it := range items {
			s.Items = append(s.Items, c.int(map[string]any{"items": it}, "items"))
		}
	} else {
		s.Items = readItems(c, m)
	}
	return s
}
