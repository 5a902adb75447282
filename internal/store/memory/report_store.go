// Package memory provides an in-memory riftlens.ReportStore for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// ReportStore keeps reports in a map. Scan walks keys in sorted order and
// uses the last returned key as the continuation token.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[riftlens.EntityID]riftlens.EntityReport
}

// NewReportStore creates an empty store.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[riftlens.EntityID]riftlens.EntityReport)}
}

// Get returns a copy of the stored report.
func (s *ReportStore) Get(_ context.Context, id riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return riftlens.EntityReport{}, false, nil
	}
	return r.Clone(), true, nil
}

// Put stores report when the current version equals expectedVersion.
func (s *ReportStore) Put(_ context.Context, report riftlens.EntityReport, expectedVersion int64) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if r, ok := s.reports[report.ID]; ok {
		current = r.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("put report %s: have version %d, expected %d: %w",
			report.ID, current, expectedVersion, riftlens.ErrVersionConflict)
	}
	s.reports[report.ID] = report.Clone()
	return nil
}

// Scan returns up to limit reports whose id sorts after cursor.
func (s *ReportStore) Scan(_ context.Context, cursor string, limit int) (riftlens.ScanPage, error) {
	if limit <= 0 {
		limit = riftlens.DefaultScanPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.reports))
	for k := range s.reports {
		if k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := riftlens.ScanPage{Reports: make([]riftlens.EntityReport, 0, min(limit, len(keys)))}
	for _, k := range keys {
		if len(page.Reports) == limit {
			page.Next = page.Reports[len(page.Reports)-1].ID
			break
		}
		page.Reports = append(page.Reports, s.reports[k].Clone())
	}
	return page, nil
}

// Len reports how many entities are stored.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Close is a no-op.
func (s *ReportStore) Close() error {
	return nil
}
