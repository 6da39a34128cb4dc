// Package web serves the read-only run API: recorded runs, their task
// results, and a websocket feed of live pipeline events.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/natsbus"
	"github.com/mtzanidakis/storecrew/internal/store"
)

// RunStore is the part of the store the API reads.
type RunStore interface {
	ListRuns(limit int) ([]store.Run, error)
	GetRun(id string) (*store.Run, error)
	ListTaskResults(runID string) ([]store.TaskRecord, error)
}

type Server struct {
	store     RunStore
	nats      *natsbus.Client
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

// NewServer returns a server. client may be nil, in which case the event
// feed stays silent.
func NewServer(s RunStore, client *natsbus.Client, cfg config.WebConfig, version string) *Server {
	return &Server{
		store:     s,
		nats:      client,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handler returns the API routes wrapped in the auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	return s.withMiddleware(mux)
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	sub, err := s.subscribeEvents()
	if err != nil {
		return err
	}
	if sub != nil {
		defer func() { _ = sub.Unsubscribe() }()
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.hub.CloseAll()
		_ = server.Close()
	}()

	slog.Info("web server listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.URL.Path != "/healthz" && s.cfg.Auth != "" && !s.checkAuth(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="storecrew"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkAuth(r *http.Request) bool {
	_, pass, ok := r.BasicAuth()
	return ok && subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Auth)) == 1
}

// subscribeEvents forwards every pipeline event on the bus to websocket
// clients.
func (s *Server) subscribeEvents() (*nats.Subscription, error) {
	if s.nats == nil {
		return nil, nil
	}
	sub, err := s.nats.Subscribe(natsbus.TopicEventsPipeline, func(msg *nats.Msg) {
		event, err := natsbus.DecodeEvent(msg.Data)
		if err != nil {
			slog.Warn("invalid NATS event payload", "subject", msg.Subject, "error", err)
			return
		}
		s.hub.Broadcast(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe pipeline events: %w", err)
	}
	return sub, nil
}
