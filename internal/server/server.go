// Package server provides the HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/internal/scan"
	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/client"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Store is the persistence the handlers need.
type Store interface {
	ListTransactions(ctx context.Context, userID string) ([]api.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (*api.Transaction, error)
	UpsertTransaction(ctx context.Context, t *api.Transaction) (*api.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	StreamTransactions(ctx context.Context, userID string, out chan<- *api.Transaction) error

	GetEmailFilters(ctx context.Context, userID string) (*api.EmailFilterSettings, error)
	SaveEmailFilters(ctx context.Context, f *api.EmailFilterSettings) (*api.EmailFilterSettings, error)

	UpsertUser(ctx context.Context, u api.User) (*api.User, error)

	Ping(ctx context.Context) error
}

// Scanner runs a scan for one user.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// DemoGenerator synthesizes demo email bodies.
type DemoGenerator interface {
	Generate(ctx context.Context, n int) ([]string, error)
}

// ProfileFetcher resolves an access token to the user's profile.
type ProfileFetcher interface {
	Fetch(ctx context.Context, accessToken string) (*client.Profile, error)
}

// HTTPClientFunc returns an HTTP client authorized with accessToken.
type HTTPClientFunc func(ctx context.Context, accessToken string) (*http.Client, error)

// Deps are the collaborators the server delegates to.
type Deps struct {
	Store    Store
	Scanner  Scanner
	Demo     DemoGenerator
	Profiles ProfileFetcher
	Writers  *plugins.Registry
	// HTTPClient defaults to client.New.
	HTTPClient HTTPClientFunc
}

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AllowedOrigin   string
	DemoEmailCount  int
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	deps       Deps
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new API server.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.DemoEmailCount <= 0 {
		cfg.DemoEmailCount = 5
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		// Scans call Gmail and Gemini once per email.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = client.New
	}
	if deps.Writers == nil {
		deps.Writers = plugins.NewRegistry()
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	s.setupRoutes()

	// Middleware wraps the whole router so that preflight and unmatched
	// requests are covered too.
	s.handler = s.logging(s.recovery(s.cors(s.router)))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/user/profile", s.handleUserProfile).Methods(http.MethodPost)

	// Export routes go before /expenses/{id} so "export" is not taken as an id.
	s.router.HandleFunc("/expenses/export", s.handleExportFile).Methods(http.MethodGet)
	s.router.HandleFunc("/expenses/export/formats", s.handleExportFormats).Methods(http.MethodGet)
	s.router.HandleFunc("/expenses/export/sheets", s.handleExportSheets).Methods(http.MethodPost)
	s.router.HandleFunc("/expenses/scan", s.handleScan).Methods(http.MethodPost)

	s.router.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	s.router.HandleFunc("/expenses/{id}", s.handleGetExpense).Methods(http.MethodGet)
	s.router.HandleFunc("/expenses/{id}", s.handlePutExpense).Methods(http.MethodPut)
	s.router.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	s.router.HandleFunc("/emails/demo", s.handleDemoEmails).Methods(http.MethodPost)

	s.router.HandleFunc("/settings/email-filters", s.handleGetEmailFilters).Methods(http.MethodGet)
	s.router.HandleFunc("/settings/email-filters", s.handlePutEmailFilters).Methods(http.MethodPut)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("shutting down api server", "timeout", timeout)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth handles GET /. It answers 503 when the database is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		respondErrorDetails(w, http.StatusServiceUnavailable, "Database unavailable", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "AutoExpense AI Backend API",
		"version": Version,
	})
}
