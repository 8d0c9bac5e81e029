// Package httpapi serves the inbound webhooks: chat events and scheduled
// standup triggers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

const maxBody = 1 << 20

type EventHandler interface {
	HandleEvent(ctx context.Context, ev chat.Event) (*chat.Reply, error)
}

type StandupRunner interface {
	Standup(ctx context.Context, roomID string) error
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	srv     *http.Server
	events  EventHandler
	standup StandupRunner
	log     logx.Logger
}

func New(cfg Config, events EventHandler, standup StandupRunner, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{events: events, standup: standup, log: log}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with recovery and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	var h http.Handler = mux
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return handlers.CombinedLoggingHandler(s.log.With(logx.String("comp", "access")).Writer(), h)
}

// Start listens in the background. Listen errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var ev chat.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&ev); err != nil {
		http.Error(w, "invalid chat event", http.StatusBadRequest)
		return
	}
	s.log.Debug("received chat event", logx.String("type", string(ev.Type)), logx.String("argument", ev.ArgumentText()))

	reply, err := s.events.HandleEvent(r.Context(), ev)
	if err != nil {
		s.log.Error("chat event failed", logx.String("type", string(ev.Type)), logx.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// handleTrigger always answers OK; failures are only logged so the scheduler
// does not retry into a duplicate standup.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpaceID string `json:"spaceId"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil || body.SpaceID == "" {
		s.log.Warn("trigger without spaceId", logx.Err(err))
	} else if err := s.standup.Standup(r.Context(), body.SpaceID); err != nil {
		s.log.Error("standup failed", logx.String("space", body.SpaceID), logx.Err(err))
	}
	_, _ = io.WriteString(w, "OK")
}

type recoveryLogger struct{ log logx.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("panic in http handler", logx.String("panic", fmt.Sprint(v...)))
}
