package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/natsbus"
	"github.com/mtzanidakis/storecrew/internal/store"
)

type fakeRuns struct {
	runs  []store.Run
	tasks map[string][]store.TaskRecord
	limit int
}

func (f *fakeRuns) ListRuns(limit int) ([]store.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func (f *fakeRuns) GetRun(id string) (*store.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRuns) ListTaskResults(runID string) ([]store.TaskRecord, error) {
	return f.tasks[runID], nil
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs: []store.Run{{ID: "run-1", Pipeline: "shopify_marketing", Mode: "run", Status: "succeeded"}},
		tasks: map[string][]store.TaskRecord{
			"run-1": {{RunID: "run-1", Seq: 1, TaskID: "load_products_task", Status: "succeeded", Attempts: 1}},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRuns(t *testing.T) {
	runs := newFakeRuns()
	h := NewServer(runs, nil, config.WebConfig{}, "test").Handler()

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunLimit, runs.limit)

	var got []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)

	rec = get(t, h, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)

	rec = get(t, h, "/api/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunsEmpty(t *testing.T) {
	h := NewServer(&fakeRuns{}, nil, config.WebConfig{}, "test").Handler()

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetRun(t *testing.T) {
	h := NewServer(newFakeRuns(), nil, config.WebConfig{}, "test").Handler()

	rec := get(t, h, "/api/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ID     string             `json:"id"`
		Status string             `json:"status"`
		Tasks  []store.TaskRecord `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "succeeded", got.Status)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "load_products_task", got.Tasks[0].TaskID)

	rec = get(t, h, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}

func TestBasicAuth(t *testing.T) {
	h := NewServer(newFakeRuns(), nil, config.WebConfig{Auth: "s3cret"}, "test").Handler()

	rec := get(t, h, "/api/runs")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	h := NewServer(&fakeRuns{}, nil, config.WebConfig{}, "v1.2.3").Handler()

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "v1.2.3", got["version"])
	assert.Equal(t, false, got["events_connected"])
}

func TestWebSocketForwardsPipelineEvents(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Port: natsserver.RANDOM_PORT, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	client, err := natsbus.NewClient(bus)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	s := NewServer(&fakeRuns{}, client, config.WebConfig{}, "test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.hub.Run(ctx)

	sub, err := s.subscribeEvents()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, client.Flush())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	natsbus.NewEvents(client).Emit("run-9", "task_started", map[string]any{"task": "seo_optimization_task"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev natsbus.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "task_started", ev.Type)
	assert.Equal(t, "run-9", ev.RunID)
	assert.Equal(t, "seo_optimization_task", ev.Data["task"])
}
