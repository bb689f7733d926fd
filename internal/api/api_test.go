package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"InvestTrack/internal/engine"
	"InvestTrack/internal/model"
	"InvestTrack/internal/orchestrator"
	"InvestTrack/internal/service"
	"InvestTrack/internal/source"
	"InvestTrack/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	quotes map[string]source.Quote
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchMany(ctx context.Context, symbols []string) (map[string]source.Quote, error) {
	out := make(map[string]source.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	src := &fakeSource{quotes: map[string]source.Quote{
		"RELIANCE": {Price: decimal.NewFromInt(2500), Source: source.SourceQuoteAPI},
		"INFY":     {Price: decimal.NewFromInt(1500), Source: source.SourceQuoteAPI},
	}}
	eng := engine.New(src, st, engine.Options{BatchDelay: time.Millisecond})
	orch := orchestrator.New(eng, func() []string { return []string{"RELIANCE", "INFY"} }, nil)
	srv := httptest.NewServer(NewHandler(service.New(src, st), orch).Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func TestGetPrice(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/prices/RELIANCE")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entry model.PriceCacheEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	require.Equal(t, "RELIANCE", entry.Symbol)
	require.Equal(t, "2500", entry.Price.String())
}

func TestGetPrice_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/prices/UNKNOWN")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatchPrices_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/prices/batch", "application/json", strings.NewReader(`{"symbols":[]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/prices/batch", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshLifecycle(t *testing.T) {
	srv, st := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", strings.NewReader(`{"symbols":["RELIANCE","INFY","TCS"]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started struct {
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()
	require.NotEmpty(t, started.RequestID)

	var status model.RefreshStatus
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/api/refresh/" + started.RequestID)
		require.NoError(t, err)
		defer r.Body.Close()
		require.Equal(t, http.StatusOK, r.StatusCode)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&status))
		return status.State.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, model.RefreshCompleted, status.State)
	require.NotNil(t, status.Result)
	require.Equal(t, 2, status.Result.Success)
	require.Equal(t, 1, status.Result.Failed)

	entry, err := st.Get("RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestRefreshStatus_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/refresh/not-a-request")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancel_TerminalReturnsFalse(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/refresh/gone", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Cancelled bool `json:"cancelled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Cancelled)
}

func TestCacheStatsAndClear(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.Upsert("RELIANCE", decimal.NewFromInt(2500), source.SourceQuoteAPI))

	resp, err := http.Get(srv.URL + "/api/cache/stats")
	require.NoError(t, err)
	var stats model.CacheStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Equal(t, 1, stats.Entries)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/cache", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	entries, err := st.ListAll()
	require.NoError(t, err)
	require.Empty(t, entries)
}
