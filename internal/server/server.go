// Package server exposes the customer-service agent over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Chative-cs-agent/server/internal/agent/coordinator"
	"github.com/Chative-cs-agent/server/internal/agent/repo"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	"github.com/Chative-cs-agent/server/internal/session"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

type Config struct {
	Port           int           `envconfig:"HTTP_PORT" default:"8080"`
	AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"60s"`
}

// Chat is the conversation core.
type Chat interface {
	session.Responder
	Stats() map[string]coordinator.AgentStats
}

// Sessions exposes the rolling window of a session.
type Sessions interface {
	History(ctx context.Context, sessionID string) ([]*schema.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// Transcripts exposes the durable message log.
type Transcripts interface {
	ListMessages(ctx context.Context, sessionID string, limit int) ([]repo.StoredMessage, error)
	ListSessions(ctx context.Context, limit int) ([]repo.SessionSummary, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of a Server. Everything but Chat may be nil.
type Deps struct {
	Chat            Chat
	WebSocket       *session.Manager
	Sessions        Sessions
	Transcripts     Transcripts
	Feedback        FeedbackStore
	FeedbackReports FeedbackReports
	Checks          map[string]HealthCheck
}

type Server struct {
	router *chi.Mux
	deps   Deps
	framer *session.Framer
	cfg    Config
}

func New(cfg Config, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"X-Session-Id"},
		MaxAge:         300,
	}))

	s := &Server{router: r, deps: deps, framer: session.NewFramer(), cfg: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			}
			r.Post("/chat", s.handleChat)
			r.Get("/agents/stats", s.handleStats)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}/messages", s.handleSessionMessages)
			r.Get("/sessions/{id}/transcript", s.handleTranscript)
			r.Delete("/sessions/{id}", s.handleClearSession)
			r.Post("/feedback", s.handleFeedback)
			r.Get("/feedback/report", s.handleFeedbackReport)
		})
		// long lived
		r.Post("/chat/stream", s.handleChatStream)
		if s.deps.WebSocket != nil {
			r.Handle("/chat/ws", s.deps.WebSocket)
		}
	})
}

func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Int("port", s.cfg.Port).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if s.deps.WebSocket != nil {
		s.deps.WebSocket.Close()
	}
	logx.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errx.New(err, http.StatusBadRequest, "invalid JSON body"))
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, errx.New(errx.ErrEmptyMessage, http.StatusBadRequest, "message is required"))
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	w.Header().Set("X-Session-Id", req.SessionID)
	return req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	resp := s.deps.Chat.ProcessMessage(r.Context(), req.Message, req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"response":   resp,
	})
}

// handleChatStream writes stream frames as server-sent events.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errx.New(nil, http.StatusInternalServerError, "streaming unsupported"))
		return
	}
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(f session.Frame) error {
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := r.Context()
	res, err := s.framer.Run(ctx, s.deps.Chat.StreamResponse(ctx, req.Message, req.SessionID), send)
	if err != nil {
		logx.Debug().Err(err).Str("session_id", req.SessionID).Str("stream_id", res.StreamID).Msg("sse client went away")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"agents": s.deps.Chat.Stats()}
	if s.deps.WebSocket != nil {
		stats["active_connections"] = s.deps.WebSocket.Active()
	}
	writeJSON(w, http.StatusOK, stats)
}

type messageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "session window disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	msgs, err := s.deps.Sessions.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{Role: string(m.Role), Content: m.Content})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": out})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcripts == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "transcript store disabled"))
		return
	}
	limit, ok := positiveQuery(w, r, "limit", 50)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	rows, err := s.deps.Transcripts.ListMessages(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []repo.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": rows})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "session window disabled"))
		return
	}
	if err := s.deps.Sessions.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			logx.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
