// Package gateway serves the session to the browser extension over HTTP
// and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// maxImportBytes caps POST /import bodies.
const maxImportBytes = 32 << 20

// Chat completes a user message given the assembled page context.
// *llm.Model implements it.
type Chat interface {
	Complete(ctx context.Context, prompt string, history []models.Message, userMessage string) (string, error)
}

// Snapshots persists exports. *db.Client implements it.
type Snapshots interface {
	SaveSnapshot(ctx context.Context, name string, doc *manager.Export) (*db.SnapshotInfo, error)
	LoadSnapshot(ctx context.Context, name string) (*manager.Export, error)
}

// Config holds gateway settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// AutosaveName names the snapshot restored on start and written on
	// shutdown. Empty disables autosave.
	AutosaveName string
	// FrameTimeout bounds the handling of one WebSocket frame.
	FrameTimeout time.Duration
}

// Server is the extension gateway.
type Server struct {
	cfg        Config
	mgr        *manager.Manager
	chat       Chat
	snapshots  Snapshots
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a gateway. chat and snapshots may be nil.
func New(cfg Config, mgr *manager.Manager, chat Chat, snapshots Snapshots, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 2 * time.Minute
	}
	s := &Server{cfg: cfg, mgr: mgr, chat: chat, snapshots: snapshots, logger: logger}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/summary", s.handleSummary)
	r.Get("/export", s.handleExport)
	r.Post("/import", s.handleImport)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr, "origins", s.cfg.AllowedOrigins)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Restore imports the autosave snapshot when one exists.
func (s *Server) Restore(ctx context.Context) error {
	if s.snapshots == nil || s.cfg.AutosaveName == "" {
		return nil
	}
	doc, err := s.snapshots.LoadSnapshot(ctx, s.cfg.AutosaveName)
	if errors.Is(err, db.ErrNotFound) {
		s.logger.Info("no autosave snapshot", "name", s.cfg.AutosaveName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load autosave: %w", err)
	}
	if err := s.mgr.ImportAllContext(ctx, doc); err != nil {
		return fmt.Errorf("import autosave: %w", err)
	}
	return nil
}

// Shutdown stops the listener and writes the autosave snapshot.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.snapshots != nil && s.cfg.AutosaveName != "" {
		doc, err := s.mgr.ExportAllContext(ctx)
		if err == nil {
			_, err = s.snapshots.SaveSnapshot(ctx, s.cfg.AutosaveName, doc)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("autosave: %w", err))
		}
	}
	return errors.Join(errs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.GetMetrics())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Summary())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.MarshalExport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="pagewise-export.json"`)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	err = s.mgr.UnmarshalImport(r.Context(), data)
	switch {
	case errors.Is(err, manager.ErrIncompatibleVersion):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.mgr.Summary())
	}
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
