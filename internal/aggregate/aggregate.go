// Package aggregate derives annual statistics and the worst representative
// game from an entity's match history.
package aggregate

import (
	"reflect"
	"sort"

	"github.com/samber/lo"

	"github.com/JakeFAU/riftlens/internal/normalize"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DefaultWorstKDAThreshold is the KDA under which a loss is a bad-game candidate.
const DefaultWorstKDAThreshold = 1.0

// TopChampions is the length of the champion usage table.
const TopChampions = 3

// Summarize computes the annual statistics of history. Records whose KDA was
// unreadable are left out of the KDA mean.
func Summarize(playerName string, history []riftlens.MatchRecord) riftlens.AnnualStats {
	stats := lo.Map(history, func(m riftlens.MatchRecord, _ int) riftlens.ParticipantStat {
		return m.Stats()
	})
	total := len(stats)
	wins := lo.CountBy(stats, func(s riftlens.ParticipantStat) bool { return s.Win })
	readableKDA := lo.Filter(stats, func(s riftlens.ParticipantStat, _ int) bool {
		return !s.KDAUnreadable
	})

	return riftlens.AnnualStats{
		PlayerName:      playerName,
		TotalGames:      total,
		Wins:            wins,
		WinRate:         normalize.Ratio(float64(wins), float64(total)),
		AvgKDA:          mean(readableKDA, func(s riftlens.ParticipantStat) float64 { return s.KDA }),
		AvgCSPerMin:     mean(stats, func(s riftlens.ParticipantStat) float64 { return s.CSPerMin }),
		AvgVisionPerMin: mean(stats, func(s riftlens.ParticipantStat) float64 { return s.VisionPerMin }),
		AvgDamage:       mean(stats, func(s riftlens.ParticipantStat) float64 { return s.Damage }),
		AvgGold:         mean(stats, func(s riftlens.ParticipantStat) float64 { return s.Gold }),
		ChampionCounts:  Usage(stats, func(s riftlens.ParticipantStat) string { return s.ChampionName }, TopChampions),
		PositionCounts:  Usage(stats, func(s riftlens.ParticipantStat) string { return s.Position }, 0),
	}
}

func mean(stats []riftlens.ParticipantStat, field func(riftlens.ParticipantStat) float64) float64 {
	return normalize.Ratio(lo.SumBy(stats, field), float64(len(stats)))
}

// Usage counts names in descending order of frequency, ties in order of first
// appearance. Empty names count as riftlens.UnknownName. limit <= 0 keeps all.
func Usage(stats []riftlens.ParticipantStat, name func(riftlens.ParticipantStat) string, limit int) []riftlens.UsageCount {
	counts := make([]riftlens.UsageCount, 0)
	index := map[string]int{}
	for _, s := range stats {
		n := riftlens.UsageName(name(s))
		i, ok := index[n]
		if !ok {
			i = len(counts)
			index[n] = i
			counts = append(counts, riftlens.UsageCount{Name: n})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(a, b int) bool { return counts[a].Count > counts[b].Count })
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// SelectWorstGame picks the representative bad game:
//  1. candidates are losses with KDA below threshold;
//  2. among candidates, the most deaths wins, ties going to the earliest;
//  3. with no candidates, the first loss;
//  4. with no losses, the first record.
//
// ok is false only for an empty history.
func SelectWorstGame(history []riftlens.MatchRecord, threshold float64) (riftlens.MatchRecord, bool) {
	if len(history) == 0 {
		return riftlens.MatchRecord{}, false
	}
	losses := lo.Filter(history, func(m riftlens.MatchRecord, _ int) bool { return !m.Stats().Win })
	candidates := lo.Filter(losses, func(m riftlens.MatchRecord, _ int) bool { return m.Stats().KDA < threshold })
	switch {
	case len(candidates) > 0:
		return lo.MaxBy(candidates, func(a, b riftlens.MatchRecord) bool {
			return a.Stats().Deaths > b.Stats().Deaths
		}), true
	case len(losses) > 0:
		return losses[0], true
	default:
		return history[0], true
	}
}

// Refresh recomputes the report's derived structures and reports whether
// anything changed. An empty history clears them.
func Refresh(r *riftlens.EntityReport, threshold float64) bool {
	var (
		annual *riftlens.AnnualStats
		worst  *riftlens.MatchRecord
	)
	if len(r.MatchHistory) > 0 {
		a := Summarize(r.DisplayName, r.MatchHistory)
		annual = &a
		if w, ok := SelectWorstGame(r.MatchHistory, threshold); ok {
			worst = &w
		}
	}
	changed := !reflect.DeepEqual(annual, r.AnnualStats) || !reflect.DeepEqual(worst, r.WorstGameStats)
	r.AnnualStats = annual
	r.WorstGameStats = worst
	return changed
}
