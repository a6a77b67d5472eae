package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/user/linkbridge/internal/bridge"
	"github.com/user/linkbridge/internal/pool"
	"github.com/user/linkbridge/internal/relay"
)

// Controller is the subset of bridge.Control the HTTP surface drives.
type Controller interface {
	Status(ctx context.Context) (bridge.Status, error)
	ReportCheck(ctx context.Context, name string) (bool, error)
	Contribute(ctx context.Context, amount int64) error
	Consume(ctx context.Context, amount int64) (bool, error)
	LocalDeath(ctx context.Context, cause string) error
	SendLink(ctx context.Context, tag, name string, amount int64) error
	SetLinkEnabled(ctx context.Context, tag string, enabled bool) error
}

// Server is a lightweight HTTP handler that lets a game integration
// report checks, touch the shared pool and raise link events.
type Server struct {
	ctl  Controller
	feed *Feed
	mux  *http.ServeMux
}

// NewServer wires ctl and, when feed is non-nil, the effect feed and
// character endpoints.
func NewServer(ctl Controller, feed *Feed) *Server {
	s := &Server{
		ctl:  ctl,
		feed: feed,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	if feed != nil {
		s.mux.HandleFunc("GET /api/effects", s.handleEffects)
		s.mux.HandleFunc("PUT /api/character", s.handleCharacter)
	}
	s.mux.HandleFunc("PUT /api/links/{tag}", s.handleSetLink)
	s.mux.HandleFunc("POST /webhook/check", s.handleCheck)
	s.mux.HandleFunc("POST /webhook/pool/contribute", s.handleContribute)
	s.mux.HandleFunc("POST /webhook/pool/consume", s.handleConsume)
	s.mux.HandleFunc("POST /webhook/death", s.handleDeath)
	s.mux.HandleFunc("POST /webhook/link/{tag}", s.handleLink)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a controller error to a status code.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, bridge.ErrUnknownLink):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pool.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bridge.ErrStopped), errors.Is(err, relay.ErrNoHost):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("webhook handler failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.Status(r.Context())
	if err != nil {
		fail(w, "state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type checkRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	fresh, err := s.ctl.ReportCheck(r.Context(), req.Name)
	if err != nil {
		fail(w, "check", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reported": fresh})
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctl.Contribute(r.Context(), req.Amount); err != nil {
		fail(w, "contribute", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, pool.ErrInvalidAmount.Error())
		return
	}
	ok, err := s.ctl.Consume(r.Context(), req.Amount)
	if err != nil {
		fail(w, "consume", err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]bool{"consumed": ok})
}

type deathRequest struct {
	Cause string `json:"cause"`
}

func (s *Server) handleDeath(w http.ResponseWriter, r *http.Request) {
	var req deathRequest
	// An empty body is a death without a cause.
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := s.ctl.LocalDeath(r.Context(), req.Cause); err != nil {
		fail(w, "death", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type linkRequest struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctl.SendLink(r.Context(), r.PathValue("tag"), req.Name, req.Amount); err != nil {
		fail(w, "link", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type linkToggle struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetLink(w http.ResponseWriter, r *http.Request) {
	var req linkToggle
	if !decode(w, r, &req) {
		return
	}
	tag := r.PathValue("tag")
	if err := s.ctl.SetLinkEnabled(r.Context(), tag, req.Enabled); err != nil {
		fail(w, "set link", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "enabled": req.Enabled})
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	var after int64
	if q := r.URL.Query().Get("after"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}
	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.feed.Since(after, limit))
}

func (s *Server) handleCharacter(w http.ResponseWriter, r *http.Request) {
	var req CharacterState
	if !decode(w, r, &req) {
		return
	}
	s.feed.SetCharacter(req)
	writeJSON(w, http.StatusOK, req)
}
