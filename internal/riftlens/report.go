package riftlens

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnknownName replaces empty names in usage tables.
const UnknownName = "UNKNOWN"

// NewReport creates an empty, valid report for id.
func NewReport(id EntityID, displayName string) (EntityReport, error) {
	r := EntityReport{ID: strings.TrimSpace(id), DisplayName: displayName, MatchHistory: []MatchRecord{}}
	if err := r.Validate(); err != nil {
		return EntityReport{}, err
	}
	return r, nil
}

// Validate enforces the report invariants: a non-empty id, non-empty unique
// match ids and non-empty usage names.
func (r EntityReport) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: player id is required", ErrInvalidReport)
	}
	seen := make(map[string]struct{}, len(r.MatchHistory))
	for i, m := range r.MatchHistory {
		if strings.TrimSpace(m.MatchID) == "" {
			return fmt.Errorf("%w: match %d has no id", ErrInvalidReport, i)
		}
		if _, dup := seen[m.MatchID]; dup {
			return fmt.Errorf("%w: duplicate match %s", ErrInvalidReport, m.MatchID)
		}
		seen[m.MatchID] = struct{}{}
	}
	if r.AnnualStats != nil {
		for _, u := range append(append([]UsageCount(nil), r.AnnualStats.ChampionCounts...), r.AnnualStats.PositionCounts...) {
			if u.Name == "" {
				return fmt.Errorf("%w: empty usage name", ErrInvalidReport)
			}
		}
	}
	return nil
}

// IndexOf returns the history position of matchID, or -1.
func (r EntityReport) IndexOf(matchID string) int {
	for i, m := range r.MatchHistory {
		if m.MatchID == matchID {
			return i
		}
	}
	return -1
}

// HasMatch reports whether matchID is already in the history.
func (r EntityReport) HasMatch(matchID string) bool {
	return r.IndexOf(matchID) >= 0
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r EntityReport) Clone() EntityReport {
	data, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out EntityReport
	if err := json.Unmarshal(data, &out); err != nil {
		return r
	}
	return out
}

// Summary extracts the report-generation input.
func (r EntityReport) Summary() Summary {
	return Summary{
		PlayerID:       r.ID,
		PlayerName:     r.DisplayName,
		AnnualStats:    r.AnnualStats,
		WorstGameStats: r.WorstGameStats,
	}
}

// UsageName maps an empty name to UnknownName.
func UsageName(name string) string {
	if strings.TrimSpace(name) == "" {
		return UnknownName
	}
	return name
}
