package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/app"
	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	redisstore "github.com/JakeFAU/riftlens/internal/store/redis"
)

const reportPrefix = "riftlens:report:"

// fakeRiot serves two players who met in one match.
func fakeRiot(t *testing.T) *httptest.Server {
	t.Helper()
	accounts := map[string]riftlens.Account{
		"p1": {PUUID: "p1", GameName: "Alpha", TagLine: "EUW"},
		"p2": {PUUID: "p2", GameName: "Beta", TagLine: "EUW"},
	}
	match := riftlens.RawMatch{
		Metadata: riftlens.RawMatchMetadata{MatchID: "EUW1_1", Participants: []string{"p1", "p2"}},
		Info: riftlens.RawMatchInfo{
			GameCreation: 1700000000000,
			GameDuration: 1800,
			GameMode:     "CLASSIC",
			QueueID:      420,
			Participants: []riftlens.RawParticipant{
				{"puuid": "p1", "championName": "Yasuo", "teamId": 100, "kills": 1, "deaths": 8, "assists": 2, "win": false},
				{"puuid": "p2", "championName": "Zed", "teamId": 200, "kills": 8, "deaths": 1, "assists": 3, "win": true},
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/riot/account/v1/accounts/by-riot-id/Alpha/EUW", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(accounts["p1"])
	})
	mux.HandleFunc("/riot/account/v1/accounts/by-puuid/{id}", func(w http.ResponseWriter, r *http.Request) {
		acct, ok := accounts[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(acct)
	})
	mux.HandleFunc("/lol/match/v5/matches/by-puuid/{id}/ids", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["EUW1_1"]`))
	})
	mux.HandleFunc("/lol/match/v5/matches/EUW1_1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(match)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	cfgPath string
	dataDir string
	redis   *miniredis.Miniredis
}

func newEnv(t *testing.T) env {
	t.Helper()
	mr := miniredis.RunT(t)
	srv := fakeRiot(t)
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	cfg := fmt.Sprintf(`riot:
  api_key: RGAPI-test
  base_url: %s
store:
  backend: redis
  redis:
    addr: %s
    prefix: %q
artifacts:
  backend: local
  base_dir: %s
logging:
  development: false
  level: error
`, srv.URL, mr.Addr(), reportPrefix, dataDir)
	cfgPath := filepath.Join(dir, "riftlens.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	// Every invocation builds a fresh App, so each gets its own registry.
	orig := buildApp
	buildApp = func(ctx context.Context, path string) (*app.App, error) {
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return app.Build(ctx, c, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	}
	t.Cleanup(func() { buildApp = orig })

	return env{cfgPath: cfgPath, dataDir: dataDir, redis: mr}
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), append([]string{"--config", e.cfgPath}, args...), &out)
	return out.String(), err
}

func (e env) report(t *testing.T, id string) (riftlens.EntityReport, bool) {
	t.Helper()
	store, err := redisstore.NewReportStore(redisstore.Config{Addr: e.redis.Addr(), Prefix: reportPrefix})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	rep, ok, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return rep, ok
}

// These tests swap the package-level buildApp and must not run in parallel.

func TestCrawlAndIngest(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "crawl", "Alpha#EUW", "--ingest")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "file://"))

	data, err := os.ReadFile(filepath.Join(e.dataDir, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"p1"`)
	assert.Contains(t, string(data), `"p2"`)

	p1, ok := e.report(t, "p1")
	require.True(t, ok)
	require.Len(t, p1.MatchHistory, 1)
	assert.Equal(t, "EUW1_1", p1.MatchHistory[0].MatchID)
	require.NotNil(t, p1.AnnualStats)
	require.NotNil(t, p1.WorstGameStats)
	assert.Equal(t, "EUW1_1", p1.WorstGameStats.MatchID)

	// Ingesting the same manifest again appends nothing.
	_, err = e.run(t, "ingest")
	require.NoError(t, err)
	again, _ := e.report(t, "p1")
	assert.Len(t, again.MatchHistory, 1)
	assert.Equal(t, p1.Version, again.Version)

	// crawl, its ingest and the second ingest each left a run summary.
	runs, err := os.ReadDir(filepath.Join(e.dataDir, "runs"))
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestImportAggregateExport(t *testing.T) {
	e := newEnv(t)

	legacy := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{
  "PlayerID": "p3",
  "playerName": "Gamma#EUW",
  "matchHistory": [
    {"matchId": "m1", "win": false, "championName": "Teemo", "kills": "0", "deaths": "7", "assists": 1, "kda": "0.14"},
    {"matchId": "m2", "win": true, "championName": "Teemo", "kills": 5, "deaths": 2, "assists": 4, "kda": "4.50"}
  ]
}`), 0o600))

	_, err := e.run(t, "import", legacy)
	require.NoError(t, err)
	rep, ok := e.report(t, "p3")
	require.True(t, ok)
	assert.Len(t, rep.MatchHistory, 2)

	_, err = e.run(t, "aggregate")
	require.NoError(t, err)
	after, _ := e.report(t, "p3")
	assert.Equal(t, rep.Version, after.Version, "aggregates were already current")

	_, err = e.run(t, "export")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(e.dataDir, "reports", "p3.json"))
	require.NoError(t, err)
	var exported riftlens.EntityReport
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "p3", exported.ID)
	assert.Equal(t, "m1", exported.WorstGameStats.MatchID)
}

func TestCrawlWithoutSeeds(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "crawl")
	require.ErrorContains(t, err, "no seeds")
}

func TestImportMissingFile(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "import", filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorContains(t, err, "open legacy file")
}

func TestCrawlRequiresAPIKey(t *testing.T) {
	e := newEnv(t)
	cfg, err := os.ReadFile(e.cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.cfgPath, bytes.Replace(cfg, []byte("RGAPI-test"), []byte(`""`), 1), 0o600))

	_, err = e.run(t, "crawl", "Alpha#EUW")
	require.Error(t, err)
}
