package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/aggregate"
	"github.com/JakeFAU/riftlens/internal/artifact/memory"
	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/progress/sinks"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/store"
	storememory "github.com/JakeFAU/riftlens/internal/store/memory"
)

func match(id string, win bool, kda float64, deaths int) riftlens.MatchRecord {
	return riftlens.MatchRecord{
		MatchID: id,
		Player: &riftlens.ParticipantStat{
			PUUID: "p1", ChampionName: "Ahri", Position: "MIDDLE", Win: win, KDA: kda, Deaths: deaths,
		},
	}
}

func putReport(t *testing.T, store riftlens.ReportStore, id string, refresh bool, history ...riftlens.MatchRecord) {
	t.Helper()
	r, err := riftlens.NewReport(id, id+"#EUW")
	require.NoError(t, err)
	r.MatchHistory = history
	if refresh {
		aggregate.Refresh(&r, aggregate.DefaultWorstKDAThreshold)
	}
	r.Version = 1
	require.NoError(t, store.Put(context.Background(), r, 0))
}

func newTestServer(t *testing.T) (*Server, *storememory.ReportStore, *memory.BlobStore) {
	t.Helper()
	store := storememory.NewReportStore()
	blobs := memory.NewBlobStore()
	return NewServer(store, blobs, config.ServerConfig{}, zap.NewNop()), store, blobs
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	require.Equal(t, http.StatusOK, get(t, s, "/readyz").Code)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

type pingStore struct {
	*storememory.ReportStore
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestServer_ReadyzProbesStore(t *testing.T) {
	t.Parallel()

	down := pingStore{ReportStore: storememory.NewReportStore(), err: errors.New("connection refused")}
	s := NewServer(down, nil, config.ServerConfig{}, zap.NewNop())
	require.Equal(t, http.StatusServiceUnavailable, get(t, s, "/readyz").Code)

	up := pingStore{ReportStore: storememory.NewReportStore()}
	s = NewServer(up, nil, config.ServerConfig{}, zap.NewNop())
	require.Equal(t, http.StatusOK, get(t, s, "/readyz").Code)
}

func TestServer_ListPlayersPages(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestServer(t)
	putReport(t, store, "p1", true, match("m1", false, 0.5, 8))
	putReport(t, store, "p2", false)
	putReport(t, store, "p3", false)

	rec := get(t, s, "/v1/players?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Players []playerDTO `json:"players"`
		Next    string      `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Players, 2)
	assert.Equal(t, "p1", page.Players[0].ID)
	assert.Equal(t, 1, page.Players[0].Matches)
	assert.Equal(t, "m1", page.Players[0].WorstMatch)
	assert.Equal(t, "p2", page.Next)

	rec = get(t, s, "/v1/players?limit=2&cursor="+page.Next)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Players, 1)
	assert.Equal(t, "p3", page.Players[0].ID)
	assert.Empty(t, page.Next)
}

func TestServer_ListPlayersInvalidLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	require.Equal(t, http.StatusBadRequest, get(t, s, "/v1/players?limit=-1").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s, "/v1/players?limit=many").Code)
}

func TestServer_GetPlayer(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestServer(t)
	putReport(t, store, "p1", true, match("m1", false, 0.5, 8), match("m2", true, 4, 1))

	rec := get(t, s, "/v1/players/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Player riftlens.EntityReport `json:"player"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "p1", body.Player.ID)
	assert.Len(t, body.Player.MatchHistory, 2)

	require.Equal(t, http.StatusNotFound, get(t, s, "/v1/players/ghost").Code)
}

func TestServer_GetSummary(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestServer(t)
	putReport(t, store, "p1", true, match("m1", false, 0.5, 8), match("m2", true, 4, 1))
	putReport(t, store, "p2", false, match("m3", true, 3, 1))

	rec := get(t, s, "/v1/players/p1/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary riftlens.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "p1", summary.PlayerID)
	require.NotNil(t, summary.AnnualStats)
	assert.Equal(t, 2, summary.AnnualStats.TotalGames)
	assert.InDelta(t, 0.5, summary.AnnualStats.WinRate, 1e-9)
	require.NotNil(t, summary.WorstGameStats)
	assert.Equal(t, "m1", summary.WorstGameStats.MatchID)

	assert.Equal(t, http.StatusConflict, get(t, s, "/v1/players/p2/summary").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/players/ghost/summary").Code)
}

func TestServer_PlayerETag(t *testing.T) {
	t.Parallel()

	s, store, _ := newTestServer(t)
	putReport(t, store, "p1", true, match("m1", false, 0.5, 8))

	first := get(t, s, "/v1/players/p1")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/v1/players/p1", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	// A new match changes the tag.
	rep, _, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	rep.MatchHistory = append(rep.MatchHistory, match("m2", true, 3, 1))
	aggregate.Refresh(&rep, aggregate.DefaultWorstKDAThreshold)
	rep.Version = 2
	require.NoError(t, store.Put(context.Background(), rep, 1))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))

	summary := get(t, s, "/v1/players/p1/summary")
	require.Equal(t, http.StatusOK, summary.Code)
	assert.NotEmpty(t, summary.Header().Get("ETag"))
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	s, _, blobs := newTestServer(t)
	const runID = "0190f1a0-0000-7000-8000-0000000000aa"
	payload, err := json.Marshal(sinks.RunSummary{RunID: runID, Kind: "ingest", Result: "success"})
	require.NoError(t, err)
	_, err = blobs.PutObject(context.Background(), sinks.RunPath(runID), "application/json", bytes.NewReader(payload))
	require.NoError(t, err)

	rec := get(t, s, "/v1/runs/"+runID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":"success"`)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/0190f1a0-0000-7000-8000-0000000000bb").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/runs/not-a-uuid").Code)

	noBlobs := NewServer(storememory.NewReportStore(), nil, config.ServerConfig{}, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, noBlobs, "/v1/runs/"+runID).Code)
}

type fakeRuns struct {
	runs       map[uuid.UUID]store.RunRecord
	err        error
	lastStatus *store.RunStatus
}

func (f *fakeRuns) StartRun(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeRuns) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, store.RunCounts, *string) error {
	return nil
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (store.RunRecord, error) {
	if f.err != nil {
		return store.RunRecord{}, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return store.RunRecord{}, store.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRuns) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastStatus = status
	out := make([]store.RunRecord, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	if offset >= len(out) {
		return []store.RunRecord{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestServer_RunRepository(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := &fakeRuns{runs: map[uuid.UUID]store.RunRecord{
		id: {ID: id, Kind: "ingest", Status: store.RunSuccess, Counts: store.RunCounts{Processed: 2, Updated: 2}},
	}}
	s := NewServer(storememory.NewReportStore(), nil, config.ServerConfig{}, zap.NewNop(), WithRunRepository(repo))

	rec := get(t, s, "/v1/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run store.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, store.RunSuccess, body.Run.Status)
	assert.EqualValues(t, 2, body.Run.Counts.Updated)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/"+uuid.NewString()).Code)

	rec = get(t, s, "/v1/runs?status=success&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())
	require.NotNil(t, repo.lastStatus)
	assert.Equal(t, store.RunSuccess, *repo.lastStatus)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/runs?status=bogus").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/runs?offset=-1").Code)

	failing := NewServer(storememory.NewReportStore(), nil, config.ServerConfig{}, zap.NewNop(),
		WithRunRepository(&fakeRuns{err: errors.New("db down")}))
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/v1/runs").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/v1/runs/"+id.String()).Code)
}

func TestServer_ListRunsWithoutRepository(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/v1/runs").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.ServerConfig{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	server := NewServer(storememory.NewReportStore(), nil, cfg, zap.NewNop())

	require.Equal(t, http.StatusForbidden, get(t, server, "/healthz").Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, get(t, server, "/healthz?api_key=secret").Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(panicStore{}, nil, config.ServerConfig{}, zap.NewNop())
	rec := get(t, s, "/v1/players/p1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicStore struct {
	riftlens.ReportStore
}

func (panicStore) Get(context.Context, riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	panic("boom")
}

func TestServer_RequestTimeout(t *testing.T) {
	t.Parallel()

	s := NewServer(slowStore{delay: 2 * time.Second}, nil, config.ServerConfig{TimeoutSeconds: 1}, zap.NewNop())
	rec := get(t, s, "/v1/players/p1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timed out")
}

type slowStore struct {
	riftlens.ReportStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, _ riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	select {
	case <-time.After(s.delay):
		return riftlens.EntityReport{}, false, nil
	case <-ctx.Done():
		return riftlens.EntityReport{}, false, ctx.Err()
	}
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}
