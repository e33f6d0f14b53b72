package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/config"
	"github.com/relaycore/report-relay/internal/engine"
	"github.com/relaycore/report-relay/internal/executor"
	idgen "github.com/relaycore/report-relay/internal/id/uuid"
	"github.com/relaycore/report-relay/internal/store"
	storemem "github.com/relaycore/report-relay/internal/store/memory"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Server.Port = 8080
	cfg.Messages.APIBase = "https://graph.example.com"
	cfg.Messages.Token = "token"
	cfg.Relay.ReportURL = "https://hooks.example.com/report"
	cfg.Relay.InvoiceURL = "https://hooks.example.com/invoice"
	return cfg
}

func newTestServer(t *testing.T, queueDepth int, cfg config.Config) (*Server, *storemem.Store) {
	t.Helper()
	runs := storemem.New(100)
	pool := executor.New(executor.HandlerFunc(func(context.Context, executor.Task) {}), 1, queueDepth, zap.NewNop())
	engines := engine.NewManager(engine.Config{DownloadRoot: t.TempDir()}, zap.NewNop())
	return NewServer(runs, pool, engines, idgen.New(), cfg, zap.NewNop()), runs
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestMessageHookPayloadShapes(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"flat":   `{"messageId":"msg-1","conversationId":"conv-1"}`,
		"nested": `{"message":{"id":"msg-2","conversationId":"conv-2"}}`,
		"data":   `{"data":{"messageId":"msg-3","conversationId":"conv-3"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServer(t, 8, testConfig())
			rec := postJSON(t, s, "/v1/hooks/message", body)
			require.Equal(t, http.StatusAccepted, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotEmpty(t, resp["run_id"])
			require.Equal(t, "accepted", resp["status"])
		})
	}
}

func TestMessageHookRejectsBadShape(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 8, testConfig())

	rec := postJSON(t, s, "/v1/hooks/message", `{"not":"a message"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, s, "/v1/hooks/message", `{{{{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageHookQueueFull(t *testing.T) {
	t.Parallel()

	// Depth one and no running workers: the second submit must shed load.
	s, _ := newTestServer(t, 1, testConfig())

	rec := postJSON(t, s, "/v1/hooks/message", `{"messageId":"msg-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, s, "/v1/hooks/message", `{"messageId":"msg-2"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMessageHookIgnoresWebhookOverride(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 8, testConfig())

	rec := postJSON(t, s, "/v1/hooks/message", `{"messageId":"msg-1","webhook":"https://evil.example.com/sink"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	s, runs := newTestServer(t, 8, testConfig())
	require.NoError(t, runs.CreateRun(context.Background(), store.Run{
		ID:        "run-1",
		MessageID: "msg-1",
		State:     "succeeded",
		StartedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run store.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "msg-1", resp.Run.MessageID)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/run-missing", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s, runs := newTestServer(t, 8, testConfig())
	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, runs.CreateRun(context.Background(), store.Run{ID: id, StartedAt: time.Now()}))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs?limit=bogus", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineStatus(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 8, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/engine/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["engine_running"])
	require.Equal(t, true, resp["messages_api_configured"])
	require.Equal(t, true, resp["report_webhook_configured"])
	require.Equal(t, true, resp["invoice_webhook_configured"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	s, _ := newTestServer(t, 8, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, 8, testConfig())
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
