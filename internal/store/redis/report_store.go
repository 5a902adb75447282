// Package redis provides a Redis-backed riftlens.ReportStore. Each report is a
// JSON value under <prefix>:player:<id>.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

const defaultPrefix = "riftlens"

// Config controls the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ReportStore stores reports in Redis. Put runs in a WATCH/MULTI transaction
// so the version check and the write are atomic.
type ReportStore struct {
	client *redis.Client
	prefix string
}

// NewReportStore dials Redis with cfg.
func NewReportStore(cfg Config) (*ReportStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("store.redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewReportStoreWithClient(client, cfg.Prefix), nil
}

// NewReportStoreWithClient wraps an existing client.
func NewReportStoreWithClient(client *redis.Client, prefix string) *ReportStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &ReportStore{client: client, prefix: strings.TrimRight(prefix, ":")}
}

func (s *ReportStore) key(id riftlens.EntityID) string {
	return s.prefix + ":player:" + id
}

// Ping checks connectivity.
func (s *ReportStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Get loads one report.
func (s *ReportStore) Get(ctx context.Context, id riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	return get(ctx, s.client, s.key(id))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c getter, key string) (riftlens.EntityReport, bool, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return riftlens.EntityReport{}, false, nil
	}
	if err != nil {
		return riftlens.EntityReport{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var r riftlens.EntityReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return riftlens.EntityReport{}, false, fmt.Errorf("decode report %s: %w", key, err)
	}
	return r, true, nil
}

// Put writes report when the stored version equals expectedVersion.
func (s *ReportStore) Put(ctx context.Context, report riftlens.EntityReport, expectedVersion int64) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	key := s.key(report.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, exists, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		var version int64
		if exists {
			version = current.Version
		}
		if version != expectedVersion {
			return fmt.Errorf("put report %s: have version %d, expected %d: %w",
				report.ID, version, expectedVersion, riftlens.ErrVersionConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("put report %s: concurrent write: %w", report.ID, riftlens.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	return nil
}

// Scan walks keys with SCAN. The cursor is Redis's own; limit is passed as
// the COUNT hint, so a page may hold slightly more or fewer reports.
func (s *ReportStore) Scan(ctx context.Context, cursor string, limit int) (riftlens.ScanPage, error) {
	if limit <= 0 {
		limit = riftlens.DefaultScanPageSize
	}
	var pos uint64
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return riftlens.ScanPage{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		pos = n
	}
	keys, next, err := s.client.Scan(ctx, pos, s.prefix+":player:*", int64(limit)).Result()
	if err != nil {
		return riftlens.ScanPage{}, fmt.Errorf("redis scan: %w", err)
	}
	page := riftlens.ScanPage{Reports: make([]riftlens.EntityReport, 0, len(keys))}
	if next != 0 {
		page.Next = strconv.FormatUint(next, 10)
	}
	if len(keys) == 0 {
		return page, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return riftlens.ScanPage{}, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		var r riftlens.EntityReport
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return riftlens.ScanPage{}, fmt.Errorf("decode report %s: %w", keys[i], err)
		}
		page.Reports = append(page.Reports, r)
	}
	return page, nil
}

// Close closes the client.
func (s *ReportStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
