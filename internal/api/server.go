// ABOUTME: HTTP API server wiring: dependencies, route table, and middleware chain
// ABOUTME: Every handler reads or mutates the document through the Store contract

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/backup"
	"github.com/2389/roster/internal/notify"
	"github.com/2389/roster/internal/store"
)

// Config holds the Server's collaborators and settings.
type Config struct {
	Store    store.Store
	Auth     *auth.Service
	Notifier *notify.Notifier
	Archiver *backup.Archiver
	Logger   *slog.Logger

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// ResetTokensOnMerge empties tokens on merge restores instead of keeping them.
	ResetTokensOnMerge bool

	// Metrics enables request metrics and exposes them at MetricsPath.
	Metrics     *Metrics
	MetricsPath string

	Now func() time.Time
}

// Server serves the roster HTTP API.
type Server struct {
	store    store.Store
	auth     *auth.Service
	notifier *notify.Notifier
	archiver *backup.Archiver
	logger   *slog.Logger

	allowedOrigins     []string
	resetTokensOnMerge bool
	metrics            *Metrics
	metricsPath        string
	now                func() time.Time
}

// New returns a Server. Store and Auth are required.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	notifier := cfg.Notifier
	if notifier == nil {
		// No test cooldown, so no sweeper is left running without a Close.
		notifier = notify.New(notify.Config{DryRun: true}, logger)
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Server{
		store:              cfg.Store,
		auth:               cfg.Auth,
		notifier:           notifier,
		archiver:           cfg.Archiver,
		logger:             logger.With("component", "api"),
		allowedOrigins:     cfg.AllowedOrigins,
		resetTokensOnMerge: cfg.ResetTokensOnMerge,
		metrics:            cfg.Metrics,
		metricsPath:        metricsPath,
		now:                now,
	}
}

// Handler returns the routed API wrapped in its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var h http.Handler = mux
	h = WithRequestLogging(h, s.logger, s.metrics)
	h = WithCORS(h, s.allowedOrigins)
	h = WithRequestID(h)
	return h
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	user := auth.HTTPAuthMiddleware(s.auth)
	requireAdmin := auth.RequireAdminHTTP()
	authed := func(h http.HandlerFunc) http.Handler { return user(h) }
	admin := func(h http.HandlerFunc) http.Handler { return user(requireAdmin(h)) }

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Accounts
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/token-json", s.handleLogin)
	mux.Handle("GET /auth/me", authed(s.handleMe))
	mux.Handle("PUT /auth/me/prefs", authed(s.handleUpdatePrefs))
	mux.Handle("POST /auth/me/notify-test", authed(s.handleNotifyTest))

	// Missions and assignments
	mux.HandleFunc("GET /missions", s.handleListMissions)
	mux.Handle("POST /missions", authed(s.handleCreateMission))
	mux.HandleFunc("GET /missions/{id}", s.handleGetMission)
	mux.Handle("PUT /missions/{id}", authed(s.handleUpdateMission))
	mux.Handle("DELETE /missions/{id}", authed(s.handleDeleteMission))
	mux.Handle("POST /missions/{id}/assign", authed(s.handleAssign))
	mux.HandleFunc("GET /missions/{id}/assignments", s.handleListAssignments)
	mux.Handle("DELETE /missions/{id}/assignments/{aid}", authed(s.handleDeleteAssignment))

	// Administration
	mux.Handle("GET /admin/users", admin(s.handleListUsers))
	mux.Handle("GET /admin/users/{id}", admin(s.handleGetUser))
	mux.Handle("PUT /admin/users/{id}", admin(s.handleUpdateUser))
	mux.Handle("DELETE /admin/users/{id}", admin(s.handleDeleteUser))
	mux.Handle("POST /admin/reset", admin(s.handleReset))
	mux.Handle("GET /admin/backup", admin(s.handleBackup))
	mux.Handle("POST /admin/restore", admin(s.handleRestore))
	mux.Handle("POST /admin/backup/archive", admin(s.handleArchive))
	mux.Handle("GET /admin/notifications/diagnostic", admin(s.handleNotifyDiagnostic))
	mux.Handle("POST /admin/notifications/diagnostic/test", admin(s.handleNotifyDiagnosticTest))

	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
