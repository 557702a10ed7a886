// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/puffnotes/internal/api"
	"github.com/starford/puffnotes/internal/apperr"
	"github.com/starford/puffnotes/internal/editor"
	"github.com/starford/puffnotes/internal/export"
	"github.com/starford/puffnotes/internal/llm"
	"github.com/starford/puffnotes/internal/mcpserver"
	"github.com/starford/puffnotes/internal/prefs"
	"github.com/starford/puffnotes/internal/rewrite"
	"github.com/starford/puffnotes/internal/sse"
	"github.com/starford/puffnotes/internal/storage"
	"github.com/starford/puffnotes/internal/watch"
)

// components are the pieces every command shares.
type components struct {
	cfg    *Config
	logger *slog.Logger
	prefs  *prefs.DB
	store  *storage.Store
	editor *editor.Editor
}

func (c *components) Close() {
	c.editor.Close()
	if err := c.prefs.Close(); err != nil {
		c.logger.Warn("close prefs failed", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build wires storage, preferences and the editor. events and onDirectory
// may be nil.
func (a *application) build(ctx context.Context, events editor.Publisher, onDirectory func(string)) (*components, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		return nil, fmt.Errorf("init prefs: %w", err)
	}

	client := llm.NewClient(llm.Options{
		Endpoint:          cfg.Rewrite.Endpoint,
		Model:             cfg.Rewrite.Model,
		Temperature:       cfg.Rewrite.Temperature,
		Timeout:           cfg.Rewrite.Timeout,
		RequestsPerSecond: cfg.Rewrite.RequestsPerSecond,
	})
	theme, _ := export.ThemeByName(cfg.Export.Theme)
	store := storage.NewStore()

	ed := editor.New(editor.Deps{
		Store:            store,
		Rewriter:         rewrite.ChatService{Client: client},
		FallbackKey:      cfg.Rewrite.FallbackKey,
		RewriteTimeout:   cfg.Rewrite.Timeout,
		AutosaveInterval: cfg.Autosave.Interval,
		Exporter:         export.New(cfg.Export.Options(), logger),
		Theme:            theme,
		Settings:         db,
		Events:           events,
		Logger:           logger,
		OnDirectory:      onDirectory,
	})

	c := &components{cfg: cfg, logger: logger, prefs: db, store: store, editor: ed}
	c.restoreDirectory(ctx)

	logger.Info("Configuration loaded",
		slog.String("directory", store.Root()),
		slog.String("prefs_path", cfg.Prefs.Path),
		slog.String("rewrite_model", cfg.Rewrite.Model),
		slog.Bool("fallback_key", cfg.Rewrite.FallbackKey != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return c, nil
}

// restoreDirectory grants the configured folder, or the last one the user
// picked. A folder that is gone is skipped; the user can pick again.
func (c *components) restoreDirectory(ctx context.Context) {
	dir := c.cfg.Storage.Directory
	if dir == "" {
		last, err := c.prefs.LastDirectory(ctx)
		if err != nil {
			c.logger.Warn("read last directory failed", slog.String("error", err.Error()))
			return
		}
		dir = last
	}
	if dir == "" {
		return
	}
	h, err := storage.OpenDir(dir)
	if err != nil {
		c.logger.Warn("notes folder unavailable", slog.String("directory", dir), slog.String("error", err.Error()))
		return
	}
	c.editor.Grant(ctx, h)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	var watcher *watch.Watcher
	c, err := app.build(ctx, broker, func(root string) {
		if watcher != nil {
			watcher.SetRoot(root)
		}
	})
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	watcher = watch.New(logger, cfg.Storage.WatchDebounce, func(ch watch.Change) {
		broker.PublishNotesChanged(ch.Name)
	})
	if root := c.store.Root(); root != "" && c.store.Granted() {
		watcher.SetRoot(root)
	}

	apiRouter := api.NewRouter(c.editor, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Folder watcher feeding notes.changed.
	g.Go(func() error {
		return watcher.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Event streams never end on their own; close them first.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.build(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.editor, app.version).ServeStdio()
}

// ExportNote renders the stored note name to a PDF inside outDir and
// returns the written path.
func ExportNote(ctx context.Context, name, outDir string, opts ...Option) (string, error) {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	c, err := app.build(ctx, nil, nil)
	if err != nil {
		return "", err
	}
	defer c.Close()

	if !c.store.Granted() {
		return "", fmt.Errorf("export: %s", editor.Hint(apperr.ErrNoDirectoryGranted))
	}
	if _, err := c.editor.Open(ctx, name); err != nil {
		return "", err
	}
	doc, filename, err := c.editor.Export(ctx)
	if err != nil {
		if hint := editor.Hint(err); hint != "" {
			return "", fmt.Errorf("%w (%s)", err, hint)
		}
		return "", err
	}
	dest := filepath.Join(outDir, filename)
	if err := os.WriteFile(dest, doc.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	c.logger.Info("export written", slog.String("path", dest), slog.Int("pages", doc.Pages))
	return dest, nil
}

// SetUserKey stores (or with a blank key, removes) the user's rewrite key.
func SetUserKey(ctx context.Context, key string, opts ...Option) (bool, error) {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return false, err
	}
	c, err := app.build(ctx, nil, nil)
	if err != nil {
		return false, err
	}
	defer c.Close()
	return c.editor.SetUserKey(ctx, key)
}
