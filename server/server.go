// Package server is the thin HTTP front end: it maps the chat UI's requests
// onto orchestrator turns and relays delivery events as server-sent events.
// Session identity is a server-generated cookie; everything else is the
// orchestrator's business.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stewardlabs/steward/orchestrator"
	"github.com/stewardlabs/steward/session"
)

const sessionCookie = "steward_session"

// Submitter is the orchestrator surface the server consumes.
type Submitter interface {
	Submit(ctx context.Context, key, utterance string) (<-chan orchestrator.Event, error)
	Clear(key string)
}

// Config holds the HTTP listener parameters.
type Config struct {
	// Addr is the listen address. Zero means the default of :8001.
	Addr string `json:"addr,omitempty"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{Addr: ":8001"}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
}

// Server serves the chat API.
type Server struct {
	cfg       Config
	submitter Submitter
	logger    *slog.Logger
	mux       *http.ServeMux
}

// New creates a Server. metrics, when non-nil, is mounted at GET /metrics.
func New(cfg *Config, submitter Submitter, logger *slog.Logger, metrics http.Handler) *Server {
	s := &Server{
		cfg:       *cfg,
		submitter: submitter,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errc:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "no message provided")
		return
	}

	key := s.sessionKey(w, r)
	s.logger.Info("received message", "session", shortKey(key), "length", len(req.Message))

	events, err := s.submitter.Submit(r.Context(), key, req.Message)
	if err != nil {
		var budgetErr *orchestrator.BudgetExceededError
		switch {
		case errors.Is(err, orchestrator.ErrModelUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.As(err, &budgetErr):
			writeError(w, http.StatusInternalServerError, budgetErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for ev := range events {
		var payload any
		switch ev.Kind {
		case orchestrator.EventStatus:
			payload = map[string]string{"status": ev.Status}
		case orchestrator.EventContent:
			payload = map[string]string{"content": ev.Content}
		case orchestrator.EventDone:
			payload = map[string]bool{"done": true}
		default:
			continue
		}
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	key := s.sessionKey(w, r)
	s.submitter.Clear(key)
	s.logger.Info("cleared conversation", "session", shortKey(key))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "success",
		"message": "Conversation cleared",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// sessionKey returns the caller's session key, minting and setting the cookie
// on first contact.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	key := session.NewKey()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "status": "error"})
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
