// Package api exposes the HTTP interface for the relay service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/config"
	"github.com/relaycore/report-relay/internal/engine"
	"github.com/relaycore/report-relay/internal/executor"
	"github.com/relaycore/report-relay/internal/metrics"
	"github.com/relaycore/report-relay/internal/pipeline"
	"github.com/relaycore/report-relay/internal/store"
)

const defaultListLimit = 50

// IDGenerator mints run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the executor, run store, and engine manager.
type Server struct {
	router  chi.Router
	runs    store.Store
	pool    *executor.Pool
	engines *engine.Manager
	idGen   IDGenerator
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs store.Store,
	pool *executor.Pool,
	engines *engine.Manager,
	idGen IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:    runs,
		pool:    pool,
		engines: engines,
		idGen:   idGen,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/hooks/message", s.handleMessageHook)
		r.Route("/engine", func(r chi.Router) {
			r.Get("/status", s.engineStatus)
			r.Post("/recreate", s.engineRecreate)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// hookRequest accepts the payload shapes upstream notifiers actually send.
// The message id may arrive at the top level, under "message", or under
// "data". A caller-supplied webhook override is accepted but ignored:
// routing is always decided by the downloaded file's name.
type hookRequest struct {
	MessageID      string       `json:"messageId"`
	ConversationID string       `json:"conversationId"`
	Webhook        string       `json:"webhook"`
	Message        *hookMessage `json:"message"`
	Data           *hookData    `json:"data"`
}

type hookMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

type hookData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Webhook        string `json:"webhook"`
}

func (h hookRequest) event() (pipeline.Event, string) {
	ev := pipeline.Event{
		MessageID:      h.MessageID,
		ConversationID: h.ConversationID,
	}
	override := h.Webhook
	if h.Message != nil {
		if ev.MessageID == "" {
			ev.MessageID = h.Message.ID
		}
		if ev.ConversationID == "" {
			ev.ConversationID = h.Message.ConversationID
		}
	}
	if h.Data != nil {
		if ev.MessageID == "" {
			ev.MessageID = h.Data.MessageID
		}
		if ev.ConversationID == "" {
			ev.ConversationID = h.Data.ConversationID
		}
		if override == "" {
			override = h.Data.Webhook
		}
	}
	return ev, override
}

func (s *Server) handleMessageHook(w http.ResponseWriter, r *http.Request) {
	var req hookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordWebhookRequest("rejected")
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ev, override := req.event()
	if ev.MessageID == "" {
		metrics.RecordWebhookRequest("rejected")
		writeError(w, http.StatusBadRequest, "missing message id")
		return
	}
	if override != "" {
		s.logger.Debug("webhook override ignored, routing is filename-based",
			zap.String("message_id", ev.MessageID),
			zap.String("override", override),
		)
	}

	runID, err := s.idGen.NewID()
	if err != nil {
		metrics.RecordWebhookRequest("rejected")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate run id: %v", err))
		return
	}

	err = s.pool.Submit(executor.Task{
		RunID:          runID,
		MessageID:      ev.MessageID,
		ConversationID: ev.ConversationID,
	})
	if err != nil {
		if errors.Is(err, executor.ErrQueueFull) {
			metrics.RecordWebhookRequest("queue_full")
			writeError(w, http.StatusServiceUnavailable, "run queue full, retry later")
			return
		}
		metrics.RecordWebhookRequest("rejected")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.RecordWebhookRequest("accepted")
	s.logger.Info("run accepted",
		zap.String("run_id", runID),
		zap.String("message_id", ev.MessageID),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "accepted"})
}

func (s *Server) engineStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.engines.Status()
	metrics.SetEngineUp(st.Running)
	writeJSON(w, http.StatusOK, map[string]any{
		"engine_running":             st.Running,
		"messages_api_configured":    s.cfg.Messages.APIBase != "" && s.cfg.Messages.Token != "",
		"report_webhook_configured":  s.cfg.Relay.ReportURL != "",
		"invoice_webhook_configured": s.cfg.Relay.InvoiceURL != "",
	})
}

func (s *Server) engineRecreate(w http.ResponseWriter, r *http.Request) {
	if err := s.engines.Recreate(r.Context()); err != nil {
		metrics.SetEngineUp(false)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("recreate engine: %v", err))
		return
	}
	metrics.SetEngineUp(true)
	s.logger.Info("engine recreated via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "recreated"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
