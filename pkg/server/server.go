// Package server exposes the conversation over HTTP: the voice platform's
// custom-LLM endpoint (SSE), its end-of-call webhook, a websocket variant of
// the conversation and a small client admin API.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/rs/cors"
)

const maxBodyBytes = 1 << 20

// Conversation answers one turn for a resolved tenant.
type Conversation interface {
	Resolve(ctx context.Context, toNumber string) (*tenant.Config, error)
	Handle(ctx context.Context, cfg *tenant.Config, req conversation.Request, sink agent.Sink)
}

// ClientStore backs the admin API.
type ClientStore interface {
	CreateClient(ctx context.Context, cfg tenant.Config) (string, error)
	FindByID(ctx context.Context, id string) (*tenant.Config, error)
	ListCallLogs(ctx context.Context, clientID string, limit, offset int) ([]calllog.Entry, error)
}

type PromptAssembler interface {
	Assemble(cfg *tenant.Config) string
}

type Config struct {
	Addr string
	// Secret authenticates the voice platform. An empty secret rejects every
	// request unless AllowAnonymous is set.
	Secret         string
	AllowAnonymous bool
	AllowedOrigins []string
	// Model is reported in SSE chunks.
	Model string
}

type Deps struct {
	Conversation Conversation
	Clients      ClientStore
	Prompts      PromptAssembler
	CallLogs     calllog.Recorder
	Logger       *slog.Logger
}

type Server struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	draining atomic.Bool
	now      func() time.Time
}

func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "unknown"
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		now:    time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	admin := http.NewServeMux()
	admin.HandleFunc("POST /clients", s.handleCreateClient)
	admin.HandleFunc("GET /clients/{id}/config", s.handleClientConfig)
	admin.HandleFunc("GET /clients/{id}/calls", s.handleClientCalls)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /vapi/chat", s.authenticated(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /vapi/webhook", s.authenticated(http.HandlerFunc(s.handleWebhook)))
	mux.Handle("GET /ws/chat", s.authenticated(http.HandlerFunc(s.handleWebsocket)))
	mux.Handle("/clients", s.corsHandler().Handler(admin))
	mux.Handle("/clients/", s.corsHandler().Handler(admin))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("Route "+r.Method+" "+r.URL.Path+" not found."))
	})
	return s.drainGuard(mux)
}

// Start listens in the background until Drain is called.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http_server_error", "error", err.Error())
		}
	}()
	s.logger.Info("http_server_started", "addr", ln.Addr().String())
	return nil
}

// Drain refuses new requests and waits for in-flight turns until ctx ends.
func (s *Server) Drain(ctx context.Context) error {
	if s.draining.Swap(true) || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) drainGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated accepts the shared secret as a bearer token or in
// X-Vapi-Secret.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret == "" && s.cfg.AllowAnonymous {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimSpace(r.Header.Get("X-Vapi-Secret"))
		if got == "" {
			auth := r.Header.Get("Authorization")
			if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
				got = strings.TrimSpace(auth[7:])
			}
		}
		if s.cfg.Secret == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			s.logger.Warn("request_unauthorized",
				"reason_code", string(errorsx.ReasonTransportUnauthorized),
				"path", r.URL.Path,
			)
			writeJSON(w, http.StatusUnauthorized, errorBody("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsHandler() *cors.Cors {
	if len(s.cfg.AllowedOrigins) == 0 {
		return cors.AllowAll()
	}
	for _, o := range s.cfg.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return cors.AllowAll()
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
