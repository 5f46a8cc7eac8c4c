// Package api exposes the chat endpoint and operational routes over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fitstack/coach/internal/agent"
	"github.com/fitstack/coach/internal/buildinfo"
	"github.com/fitstack/coach/internal/identity"
	"github.com/fitstack/coach/internal/observability"
	"github.com/fitstack/coach/internal/usage"
)

// Pinger reports whether an upstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes inbound chat requests to the agent controller. The
// identity token is hashed once at this boundary; nothing past it
// ever sees the raw token.
type Server struct {
	controller *agent.Controller
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracker    *usage.Tracker
	pinger     Pinger
}

func New(controller *agent.Controller, logger *slog.Logger, metrics *observability.Metrics, tracker *usage.Tracker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		controller: controller,
		logger:     logger.With("component", "api"),
		metrics:    metrics,
		tracker:    tracker,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/turn", s.handleTurn)
	r.Delete("/v1/memory", s.handleDeleteMemory)
	r.Get("/v1/usage", s.handleUsage)

	return r
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		respondError(w, http.StatusNotFound, "not_found", "usage tracking disabled")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":    s.tracker.Total(),
		"by_model": s.tracker.ByModel(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().String(),
	})
}

// SetPinger makes readiness depend on the model endpoint being
// reachable. Without one, /readyz reports ready unconditionally.
func (s *Server) SetPinger(p Pinger) { s.pinger = p }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness probe failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "not_ready", "model endpoint unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type turnRequest struct {
	Message       string `json:"message"`
	IdentityToken string `json:"identity_token,omitempty"`
}

type turnResponse struct {
	FinalAnswer string `json:"final_answer"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "message must not be empty")
		return
	}
	user, ok := s.resolveUser(w, r, req.IdentityToken)
	if !ok {
		return
	}

	answer, err := s.controller.HandleTurn(r.Context(), user, req.Message)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, turnResponse{FinalAnswer: answer})
	case errors.Is(err, agent.ErrLoopExceeded):
		// The apology is still a usable answer for the caller.
		respondJSON(w, http.StatusOK, turnResponse{FinalAnswer: answer})
	default:
		s.logger.Error("turn failed", "user", user.Short(), "error", err)
		respondError(w, http.StatusBadGateway, "turn_failed", answer)
	}
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.resolveUser(w, r, "")
	if !ok {
		return
	}
	if err := s.controller.DeleteUser(r.Context(), user); err != nil {
		s.logger.Error("memory deletion failed", "user", user.Short(), "error", err)
		respondError(w, http.StatusInternalServerError, "delete_failed", "could not delete stored memory")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// resolveUser derives the user hash from the bearer token or an
// explicit identity_token field. On failure it writes the error
// response and returns ok=false.
func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request, bodyToken string) (identity.UserHash, bool) {
	token := bodyToken
	if auth := r.Header.Get("Authorization"); auth != "" {
		if bearer, found := strings.CutPrefix(auth, "Bearer "); found {
			token = bearer
		}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "identity token required")
		return "", false
	}
	return identity.Hash(token), true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
