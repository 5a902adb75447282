package riftlens

import (
	"context"
	"fmt"
)

// DefaultScanPageSize bounds one Scan call when callers pass no limit.
const DefaultScanPageSize = 100

// ScanAll walks every report in the store, following continuation tokens until
// the scan is exhausted. fn errors stop the walk.
func ScanAll(ctx context.Context, store ReportStore, pageSize int, fn func(EntityReport) error) error {
	if pageSize <= 0 {
		pageSize = DefaultScanPageSize
	}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled: %w", err)
		}
		page, err := store.Scan(ctx, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("scan page: %w", err)
		}
		for _, r := range page.Reports {
			if err := fn(r); err != nil {
				return err
			}
		}
		if page.Next == "" {
			return nil
		}
		cursor = page.Next
	}
}
