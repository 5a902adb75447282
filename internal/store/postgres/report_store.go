// Package postgres provides the Postgres-backed riftlens.ReportStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "reports"

// Config controls the Postgres connection pool used for report rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ReportStore keeps one JSONB document per player. The version column backs
// conditional writes; Scan uses keyset pagination on player_id.
type ReportStore struct {
	pool  pool
	table string
}

// NewReportStore creates a Postgres-backed ReportStore using the provided config.
func NewReportStore(ctx context.Context, cfg Config) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w: %w", riftlens.ErrStoreUnavailable, err)
	}
	return &ReportStore{pool: p, table: table}, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(p pool, table string) (*ReportStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ReportStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the reports table when it does not exist.
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	player_id text PRIMARY KEY,
	display_name text NOT NULL DEFAULT '',
	report jsonb NOT NULL,
	version bigint NOT NULL,
	updated_at timestamptz NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *ReportStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Get loads one report.
func (s *ReportStore) Get(ctx context.Context, id riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	query := fmt.Sprintf(`SELECT report, version FROM %s WHERE player_id = $1`, s.table)
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return riftlens.EntityReport{}, false, nil
	}
	if err != nil {
		return riftlens.EntityReport{}, false, fmt.Errorf("select report: %w", err)
	}
	r, err := decode(raw, version)
	if err != nil {
		return riftlens.EntityReport{}, false, err
	}
	return r, true, nil
}

// Put upserts report when the stored version equals expectedVersion. Reports
// are never deleted, so an absent row always has version 0.
func (s *ReportStore) Put(ctx context.Context, report riftlens.EntityReport, expectedVersion int64) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (player_id, display_name, report, version, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (player_id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	report = EXCLUDED.report,
	version = EXCLUDED.version,
	updated_at = EXCLUDED.updated_at
WHERE %[1]s.version = $6`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		report.ID,
		report.DisplayName,
		payload,
		report.Version,
		report.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert report %s: expected version %d: %w", report.ID, expectedVersion, riftlens.ErrVersionConflict)
	}
	return nil
}

// Scan returns up to limit reports ordered by player_id after cursor.
func (s *ReportStore) Scan(ctx context.Context, cursor string, limit int) (riftlens.ScanPage, error) {
	if limit <= 0 {
		limit = riftlens.DefaultScanPageSize
	}
	query := fmt.Sprintf(`SELECT report, version FROM %s WHERE player_id > $1 ORDER BY player_id LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, cursor, limit+1)
	if err != nil {
		return riftlens.ScanPage{}, fmt.Errorf("scan reports: %w", err)
	}
	defer rows.Close()

	page := riftlens.ScanPage{Reports: make([]riftlens.EntityReport, 0, limit)}
	more := false
	for rows.Next() {
		if len(page.Reports) == limit {
			more = true
			break
		}
		var (
			raw     []byte
			version int64
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return riftlens.ScanPage{}, fmt.Errorf("scan row: %w", err)
		}
		r, err := decode(raw, version)
		if err != nil {
			return riftlens.ScanPage{}, err
		}
		page.Reports = append(page.Reports, r)
	}
	if err := rows.Err(); err != nil {
		return riftlens.ScanPage{}, fmt.Errorf("iterate reports: %w", err)
	}
	if more {
		page.Next = page.Reports[len(page.Reports)-1].ID
	}
	return page, nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func decode(raw []byte, version int64) (riftlens.EntityReport, error) {
	var r riftlens.EntityReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return riftlens.EntityReport{}, fmt.Errorf("decode report: %w", err)
	}
	r.Version = version
	return r, nil
}
