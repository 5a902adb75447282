package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/players/{player_id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "player_id") == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	for _, id := range []string{"p1", "p2", "ghost"} {
		resp, err := http.Get(ts.URL + "/v1/players/" + id)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}
	resp, err := http.Get(ts.URL + "/nowhere")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	const route = "/v1/players/{player_id}"
	assert.InDelta(t, 2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", route, "200")), 0,
		"player ids collapse into one series")
	assert.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", route, "404")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404")), 0,
		"unmatched paths are not used as labels")
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
