// ABOUTME: Server orchestrator that wires store, auth, hub, relay and the chat socket
// ABOUTME: Manages the HTTP listener (TCP or tailnet), health endpoints and shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/realtime"
	"github.com/2389/parley/internal/relay"
	"github.com/2389/parley/internal/store"
)

// Server runs the parley HTTP surface: the chat socket, the API for the
// core's own operations, health checks and metrics.
type Server struct {
	config        *config.Config
	store         *store.SQLiteStore
	verifier      *auth.JWTVerifier
	authn         *auth.Authenticator
	metrics       *metrics.Metrics
	registry      *hub.Registry
	relay         relay.Relay
	conversations *conversation.Service
	presence      *presence.Tracker
	realtime      *realtime.Handler
	mux           *http.ServeMux
	httpServer    *http.Server
	tsnetServer   *tsnet.Server
	logger        *slog.Logger
}

// New builds every component from cfg. The caller must Run or Shutdown it.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry := hub.NewRegistry(logger, m)

	var rl relay.Relay
	if cfg.Relay.NATSURL != "" {
		rl, err = relay.NewNATS(relay.NATSConfig{
			URL:           cfg.Relay.NATSURL,
			SubjectPrefix: cfg.Relay.SubjectPrefix,
		}, registry, m, logger)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("creating relay: %w", err)
		}
	} else {
		rl = relay.NewLocal(registry)
		logger.Info("relay disabled, fan-out is in-process only")
	}

	srv := &Server{
		config:        cfg,
		store:         s,
		verifier:      verifier,
		authn:         auth.NewAuthenticator(verifier, s),
		metrics:       m,
		registry:      registry,
		relay:         rl,
		conversations: conversation.NewService(s, m, logger),
		presence:      presence.NewTracker(s, logger),
		mux:           http.NewServeMux(),
		logger:        logger.With("component", "server"),
	}

	srv.realtime = realtime.NewHandler(realtime.Config{
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PongTimeout:    cfg.Realtime.PongTimeout,
		PingInterval:   cfg.Realtime.PingInterval,
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, realtime.Deps{
		Authenticator: srv.authn,
		Conversations: srv.conversations,
		Registry:      registry,
		Relay:         rl,
		Presence:      srv.presence,
		Metrics:       m,
		Logger:        logger,
	})

	srv.routes()

	srv.httpServer = &http.Server{
		Handler:           srv.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/ready", s.handleReady)

	s.realtime.Register(s.mux)

	authMiddleware := auth.HTTPAuthMiddleware(s.authn)
	s.mux.Handle("POST /api/conversations", authMiddleware(http.HandlerFunc(s.handleResolveConversation)))
	s.mux.Handle("POST /api/conversations/{id}/read", authMiddleware(http.HandlerFunc(s.handleMarkRead)))
	s.mux.Handle("GET /api/conversations/{id}/unread", authMiddleware(http.HandlerFunc(s.handleUnread)))
	s.mux.Handle("GET /api/conversations/{id}/messages", authMiddleware(http.HandlerFunc(s.handleMessages)))
	s.mux.Handle("GET /api/stats", authMiddleware(http.HandlerFunc(s.handleStats)))

	if s.metrics != nil {
		s.mux.Handle("GET "+s.config.Metrics.Path, s.metrics.Handler())
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts serving and blocks until ctx is canceled or the listener fails.
// Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// The run context is already canceled, so shutdown gets a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "parley", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	if !tsCfg.HTTPS {
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}

	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, closes every live session and releases
// the relay, the tailnet node and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	// Hijacked chat sockets are not tracked by http.Server; closing the
	// registry ends them, and their offline teardown needs the relay and
	// store, so wait for it before closing either.
	s.registry.Close()
	errs = appendCloseError(errs, "session teardown", s.realtime.Wait(ctx))

	errs = appendCloseError(errs, "relay close", s.relay.Close())
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d active conversations)", s.registry.Groups())
}
