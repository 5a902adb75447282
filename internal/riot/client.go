// Package riot implements riftlens.TelemetryClient against the Riot account-v1
// and match-v5 APIs.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/retry"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"go.uber.org/zap"
)

const (
	tokenHeader   = "X-Riot-Token"
	defaultRegion = "europe"
	maxErrorBody  = 512
)

// Operation names used in errors, logs and metrics.
const (
	OpResolveAccount = "resolve_account"
	OpLookupAccount  = "lookup_account"
	OpListMatches    = "list_matches"
	OpMatchDetail    = "match_detail"
)

// APIError describes a failed call. It unwraps to riftlens.ErrNotFound or
// riftlens.ErrUnavailable.
type APIError struct {
	Op     string
	Status int
	Err    error
	cause  error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("riot %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.cause != nil:
		return fmt.Sprintf("riot %s: %v: %v", e.Op, e.Err, e.cause)
	default:
		return fmt.Sprintf("riot %s: %v", e.Op, e.Err)
	}
}

// Unwrap exposes the classification sentinel.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Pacer optionally spaces calls apart.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config holds client configuration.
type Config struct {
	APIKey        string
	AccountRegion string
	MatchRegion   string
	// BaseURL overrides both regional hosts, mainly for tests.
	BaseURL string
	Timeout time.Duration
	// Queue filters match lists when non-zero.
	Queue int
}

// Client is a throttled Riot API client.
type Client struct {
	apiKey      string
	accountBase string
	matchBase   string
	queue       int
	httpClient  *http.Client
	throttle    riftlens.Throttle
	pacer       Pacer
	retry       retry.Policy
	logger      *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPacer adds a pacing delay before every call.
func WithPacer(p Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithRetry retries transient failures. Every attempt goes back through the throttle.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client. throttle is required; every call acquires it once per attempt.
func New(cfg Config, throttle riftlens.Throttle, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("riot api key is required")
	}
	if throttle == nil {
		return nil, errors.New("throttle is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		apiKey:      cfg.APIKey,
		accountBase: regionalBase(cfg.BaseURL, cfg.AccountRegion),
		matchBase:   regionalBase(cfg.BaseURL, cfg.MatchRegion),
		queue:       cfg.Queue,
		httpClient:  &http.Client{Timeout: timeout},
		throttle:    throttle,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func regionalBase(override, region string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if region == "" {
		region = defaultRegion
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", strings.ToLower(region))
}

// ResolveAccount looks up an account by riot id.
func (c *Client) ResolveAccount(ctx context.Context, name, tag string) (riftlens.Account, error) {
	endpoint := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.accountBase, url.PathEscape(name), url.PathEscape(tag))
	var acct riftlens.Account
	err := c.get(ctx, OpResolveAccount, endpoint, &acct)
	return acct, err
}

// LookupAccount looks up an account by id.
func (c *Client) LookupAccount(ctx context.Context, id riftlens.EntityID) (riftlens.Account, error) {
	endpoint := fmt.Sprintf("%s/riot/account/v1/accounts/by-puuid/%s", c.accountBase, url.PathEscape(id))
	var acct riftlens.Account
	err := c.get(ctx, OpLookupAccount, endpoint, &acct)
	return acct, err
}

// ListRecentMatches returns up to count match ids, most recent first.
func (c *Client) ListRecentMatches(ctx context.Context, id riftlens.EntityID, count int) ([]string, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	if c.queue > 0 {
		q.Set("queue", strconv.Itoa(c.queue))
	}
	endpoint := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?%s", c.matchBase, url.PathEscape(id), q.Encode())
	var ids []string
	if err := c.get(ctx, OpListMatches, endpoint, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchMatchDetail returns the full match payload.
func (c *Client) FetchMatchDetail(ctx context.Context, matchID string) (riftlens.RawMatch, error) {
	endpoint := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.matchBase, url.PathEscape(matchID))
	var m riftlens.RawMatch
	err := c.get(ctx, OpMatchDetail, endpoint, &m)
	return m, err
}

func (c *Client) get(ctx context.Context, op, endpoint string, out any) error {
	_, err := retry.Do(ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.attempt(ctx, op, endpoint, out)
	})
	return err
}

func (c *Client) attempt(ctx context.Context, op, endpoint string, out any) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("riot %s: %w", op, err)
		}
	}
	if err := c.throttle.Acquire(ctx); err != nil {
		return fmt.Errorf("riot %s: %w", op, err)
	}

	start := time.Now()
	err := c.do(ctx, op, endpoint, out)
	result := "ok"
	switch {
	case errors.Is(err, riftlens.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "unavailable"
	}
	metrics.ObserveAPICall(op, result, time.Since(start))
	if err != nil {
		c.logger.Debug("riot call failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (c *Client) do(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return &APIError{Op: op, Err: riftlens.ErrUnavailable, cause: err}
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("riot %s: %w", op, ctxErr)
		}
		return &APIError{Op: op, Err: riftlens.ErrUnavailable, cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, Err: riftlens.ErrNotFound}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("riot non-2xx response",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("retry_after", resp.Header.Get("Retry-After")),
			zap.ByteString("body", body),
		)
		return &APIError{Op: op, Status: resp.StatusCode, Err: riftlens.ErrUnavailable}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &APIError{Op: op, Err: riftlens.ErrUnavailable, cause: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
