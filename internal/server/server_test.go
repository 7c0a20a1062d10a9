package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/remote-engine/internal/coordinator"
	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/engine/enginetest"
	"github.com/rcliao/remote-engine/internal/logging"
	"github.com/rcliao/remote-engine/internal/model"
	"github.com/rcliao/remote-engine/internal/observability"
	"github.com/rcliao/remote-engine/internal/store"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	fake    *enginetest.Fake
	history *store.SQLiteStore
}

func setupTestServer(t *testing.T, lines ...engine.LineRecord) *testServer {
	t.Helper()
	fake := enginetest.New(lines...)
	fake.Reported = map[string]any{"Hash": 16, "Threads": 1}

	reg := prometheus.NewRegistry()
	log := logging.Discard()
	coord := coordinator.New(fake, coordinator.Config{
		Logger:  log,
		Metrics: observability.NewMetrics(reg),
	})

	history, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	router := New(Config{
		Analyzer:   coord,
		History:    history,
		Gatherer:   reg,
		Logger:     log,
		EngineName: "Fake 1.0",
	})
	return &testServer{router: router, fake: fake, history: history}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandleAnalyse(t *testing.T) {
	srv := setupTestServer(t,
		engine.LineRecord{Depth: 14, MultiPV: 1, Score: engine.Cp(-22), PV: []string{"e2e4", "c7c5", "g1f3"}},
	)

	w := srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":500}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get(HeaderGeneration))
	assert.Equal(t, "false", w.Header().Get(HeaderSuperseded))

	var env model.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "e2e4", env.BestMove)
	assert.Equal(t, "c7c5", env.Threat)
	require.Len(t, env.Lines, 1)
	assert.Equal(t, "cp -22", env.Lines[0].RawScore)
	require.NotNil(t, env.Lines[0].Score)
	assert.Equal(t, -22, *env.Lines[0].Score)
	assert.Nil(t, env.Lines[0].Mate)

	// The served analysis is kept in history.
	list, err := srv.history.List(context.Background(), store.ListParams{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e2e4", list[0].BestMove)
	assert.Equal(t, int64(500), list[0].TimeMillis)
}

func TestHandleAnalyse_Moves(t *testing.T) {
	srv := setupTestServer(t,
		engine.LineRecord{Depth: 10, MultiPV: 1, Score: engine.MateIn(3), PV: []string{"d8h4"}},
	)

	w := srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":100,"moves":"f2f3 e7e5 g2g4"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env model.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Lines[0].Mate)
	assert.Equal(t, -3, *env.Lines[0].Mate, "black to move, so mate for black is negative")
	assert.Equal(t, "mate #+3", env.Lines[0].RawScore)
}

func TestHandleAnalyse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing fen", `{"time":500}`, "Parameter 'fen' is required"},
		{"missing time", `{"fen":"` + startFEN + `"}`, "Parameter 'time' is required"},
		{"missing both", `{}`, "Parameter 'fen' is required"},
		{"negative time", `{"fen":"` + startFEN + `","time":-5}`, "Parameter 'time' must be greater than 0"},
		{"huge time", `{"fen":"` + startFEN + `","time":1e30}`, "Parameter 'time' must be at most 3600000"},
		{"just over an hour", `{"fen":"` + startFEN + `","time":3600001}`, "Parameter 'time' must be at most"},
		{"bad fen", `{"fen":"garbage","time":500}`, "invalid request"},
		{"bad move", `{"fen":"` + startFEN + `","time":500,"moves":"e2e9"}`, "invalid request"},
		{"malformed json", `{"fen":`, "invalid JSON body"},
		{"wrong type", `{"fen":"` + startFEN + `","time":"soon"}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupTestServer(t)
			w := srv.do(http.MethodPost, "/analyse", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeError(t, w), tt.wantMsg)
			assert.Empty(t, srv.fake.Calls(), "engine must not be touched")
		})
	}
}

func TestHandleAnalyse_EngineFailure(t *testing.T) {
	srv := setupTestServer(t)
	srv.fake.StartErr = errors.New("engine process exited")

	w := srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":500}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeError(t, w), "engine process exited")
}

func TestHandleConfigure(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(http.MethodPost, "/configure", `{"Hash":64,"MultiPV":3,"SyzygyPath":"/tb"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, float64(64), snap["Hash"])
	assert.Equal(t, float64(3), snap["MultiPV"])
	assert.Equal(t, "/tb", snap["SyzygyPath"])
	assert.Equal(t, float64(1), snap["Threads"])
	assert.Equal(t, []string{"Hash", "SyzygyPath"}, srv.fake.SetOptionNames())

	w = srv.do(http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var again map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, snap, again)
}

func TestHandleConfigure_BadBody(t *testing.T) {
	srv := setupTestServer(t)
	w := srv.do(http.MethodPost, "/configure", `["Hash", 64]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleConfigure_EngineFailure(t *testing.T) {
	srv := setupTestServer(t)
	srv.fake.SetOptionErr = errors.New("broken pipe")
	w := srv.do(http.MethodPost, "/configure", `{"Hash":64}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t)
	w := srv.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "Fake 1.0", resp["engine"])
	assert.Equal(t, float64(0), resp["generation"])
}

func TestHandleMetrics(t *testing.T) {
	srv := setupTestServer(t, engine.LineRecord{Depth: 3, MultiPV: 1, Score: engine.Cp(5), PV: []string{"e2e4"}})
	srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":50}`)

	w := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `remote_engine_analysis_requests_total{outcome="complete"} 1`)
}

func TestHandleHistory(t *testing.T) {
	srv := setupTestServer(t, engine.LineRecord{Depth: 3, MultiPV: 1, Score: engine.Cp(5), PV: []string{"e2e4"}})
	srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":50}`)
	srv.do(http.MethodPost, "/analyse", `{"fen":"`+startFEN+`","time":50,"moves":"e2e4"}`)

	w := srv.do(http.MethodGet, "/history?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Analyses []model.Analysis `json:"analyses"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"e2e4"}, resp.Analyses[0].Moves, "newest first")

	w = srv.do(http.MethodGet, "/history/"+resp.Analyses[1].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var one model.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, uint64(1), one.Generation)

	w = srv.do(http.MethodGet, "/history/01ARZ3NDEKTSV4RRFFQ69G5FAV", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodGet, "/history?limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "Parameter 'limit' must be at most 500")
}

func TestCORS(t *testing.T) {
	srv := setupTestServer(t)
	w := srv.do(http.MethodOptions, "/analyse", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), HeaderGeneration))
}
