package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
	"github.com/whalefollow/tradepipe/internal/tradepipe/pipeline"
	"github.com/whalefollow/tradepipe/internal/tradepipe/store"
)

type stubSource struct{}

func (stubSource) HeadNumber(context.Context) (int64, error) { return 0, nil }
func (stubSource) BlockTransactions(context.Context, int64) ([]model.RawTransaction, error) {
	return nil, nil
}

type stubClassifier struct{}

func (stubClassifier) Decode(context.Context, string) (*model.Classification, error) {
	return nil, nil
}

func seedStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	recs := []model.TransactionRecord{
		{
			Hash: "0x1", Type: "swap", Sender: "0xalice", USDValue: 2500,
			Swap: true, SwapValue: 2500,
			PositionType: model.PositionLong, LongPositionValue: 2500,
			Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			Hash: "0x2", Type: "swap", Sender: "0xbob", USDValue: 50_000,
			Swap: true, SwapValue: 50_000,
			PositionType: model.PositionShort, ShortPositionValue: 50_000,
			Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			Hash: "0x3", Type: "composite", Sender: "0xalice", USDValue: 10,
			Timestamp: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
		},
	}
	for _, r := range recs {
		_, err := m.InsertIfAbsent(context.Background(), r)
		require.NoError(t, err)
	}
	return m
}

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Scheduler) {
	t.Helper()
	st := seedStore(t)
	p, err := pipeline.New(pipeline.Deps{
		Source:     stubSource{},
		Classifier: stubClassifier{},
		Store:      st,
	}, pipeline.Config{}, nil)
	require.NoError(t, err)
	sched := pipeline.NewScheduler(p, time.Hour, nil)
	t.Cleanup(sched.Stop)

	srv := httptest.NewServer(NewServer(context.Background(), st, sched, nil).Router())
	t.Cleanup(srv.Close)
	return srv, sched
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type listResp struct {
	Count        int                       `json:"count"`
	Transactions []model.TransactionRecord `json:"transactions"`
}

func TestStartListenerIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	resp, err := http.Post(srv.URL+"/transactions/start-listener", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Listener started", body["status"])

	resp, err = http.Post(srv.URL+"/transactions/start-listener", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Listener already running", body["status"])
}

func TestListTransactions(t *testing.T) {
	srv, _ := newTestServer(t)
	var body listResp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions", &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "0x3", body.Transactions[0].Hash, "newest first")
}

func TestSwapsAndPositions(t *testing.T) {
	srv, _ := newTestServer(t)

	var body listResp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/swaps", &body))
	assert.Equal(t, 2, body.Count)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/long-positions", &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "0x1", body.Transactions[0].Hash)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/short-positions", &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "0x2", body.Transactions[0].Hash)
}

func TestBySenderAndHighValue(t *testing.T) {
	srv, _ := newTestServer(t)

	var body listResp
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/sender/0xALICE", &body))
	assert.Equal(t, 2, body.Count, "sender match is case-insensitive")

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/high-value?min=10000", &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "0x2", body.Transactions[0].Hash)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/transactions/high-value?min=abc", nil))
}

func TestDateRange(t *testing.T) {
	srv, _ := newTestServer(t)

	var body listResp
	url := srv.URL + "/transactions/date-range?from=2025-06-01T00:00:00Z&to=2025-06-02T23:59:59Z"
	require.Equal(t, http.StatusOK, getJSON(t, url, &body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, srv.URL+"/transactions/date-range?from=notadate&to=2025-06-02T00:00:00Z", nil))
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, srv.URL+"/transactions/date-range?from=2025-06-03T00:00:00Z&to=2025-06-02T00:00:00Z", nil))
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)
	var s store.Stats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transactions/stats", &s))
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(2), s.Swaps)
	assert.Equal(t, int64(1), s.LongPositions)
	assert.Equal(t, int64(1), s.ShortPositions)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", nil))
}
