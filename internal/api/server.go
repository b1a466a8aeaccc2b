// Package api serves the operator HTTP surface: workflow inspection and reply injection over
// Temporal, read-only views over the action log, and a small html/template UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.temporal.io/api/serviceerror"
	"go.uber.org/zap"

	"modbot/internal/metrics"
	"modbot/internal/modal"
	"modbot/internal/store"
)

const (
	queryTimeout  = 3 * time.Second
	listTimeout   = 8 * time.Second
	topModerators = 3
)

type Server struct {
	Engine  Engine
	Store   store.Store
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	now func() time.Time
}

func NewServer(engine Engine, st store.Store, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Engine: engine, Store: st, Metrics: m, Logger: logger, now: time.Now}
}

// Routes returns the JSON API, /metrics and the /ui pages on one router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", s.Metrics.Handler())

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.handleRunning)
		r.Get("/{workflowId}/instance", s.handleInstance)
		r.Get("/{workflowId}/audit", s.handleAudit)
		r.Post("/{workflowId}/events", s.handleEvent)
	})
	r.Get("/actions", s.handleActions)
	r.Get("/stats", s.handleStats)
	r.Get("/commissions/{commissionId}", s.handleCommission)
	r.Get("/subjects/{subjectId}/notes", s.handleNotes)

	registerUIRoutes(r, s)
	return r
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()

	execs, err := s.Engine.Running(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	inst, err := s.Engine.Instance(ctx, chi.URLParam(r, "workflowId"), r.URL.Query().Get("runId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	events, err := s.Engine.Audit(ctx, chi.URLParam(r, "workflowId"), r.URL.Query().Get("runId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []modal.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleEvent injects a reply or choice into a waiting workflow, as if it came from the chat
// platform.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev modal.PromptEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, `invalid body: {"kind":"message|choice","authorId":"...","channelId":"...","content":"...","option":"..."}`)
		return
	}
	if err := validateEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.ReceivedAt = s.now().UTC()

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	workflowID := chi.URLParam(r, "workflowId")
	if err := s.Engine.Signal(ctx, workflowID, r.URL.Query().Get("runId"), ev); err != nil {
		s.fail(w, r, err)
		return
	}
	s.Logger.Info("prompt event injected", zap.String("workflow_id", workflowID), zap.String("kind", string(ev.Kind)))
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func validateEvent(ev modal.PromptEvent) error {
	if ev.AuthorID == "" {
		return errors.New("authorId is required")
	}
	switch ev.Kind {
	case modal.EventMessage:
	case modal.EventChoice:
		if ev.Option == "" {
			return errors.New("option is required for choice events")
		}
	default:
		return errors.New(`kind must be "message" or "choice"`)
	}
	return nil
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	q, err := parseActionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.Store.QueryActions(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []modal.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func parseActionQuery(r *http.Request) (modal.ActionQuery, error) {
	v := r.URL.Query()
	q := modal.ActionQuery{SubjectID: v.Get("subject")}
	if raw := v.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("since must be an RFC 3339 timestamp")
		}
		q.Since = t
	}
	if raw := v.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("until must be an RFC 3339 timestamp")
		}
		q.Until = t
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}

type statsResponse struct {
	Window        modal.StatsWindow `json:"window"`
	Stats         modal.ActionStats `json:"stats"`
	AveragePerDay *float64          `json:"averagePerDay"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("range")
	if name == "" {
		name = "all"
	}
	now := s.now().UTC()
	win, err := modal.ParseStatsWindow(name, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.Store.Stats(r.Context(), win.Since, topModerators)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := statsResponse{Window: win, Stats: stats, GeneratedAt: now}
	if avg, ok := stats.AveragePerDay(win, now); ok {
		resp.AveragePerDay = &avg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommission(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCommission(r.Context(), chi.URLParam(r, "commissionId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.Store.ListNotes(r.Context(), chi.URLParam(r, "subjectId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if notes == nil {
		notes = []modal.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

// fail maps not-found errors from the store and from Temporal to 404 and logs the rest.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var nf *serviceerror.NotFound
	if errors.Is(err, store.ErrNotFound) || errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.Logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
