// Command reviewd serves the adaptive review extraction API.
//
// Configuration is environment-first (every knob has a default), with an
// optional YAML file via CONFIG:
//
//	PORT           HTTP listen port (default 8080)
//	LOG_LEVEL      debug|info|warn|error (default info)
//	CONFIG         path to a YAML config file (optional)
//	BROWSER_WS     WebSocket URL of an external Chrome (optional)
//	OLLAMA_URL     completion endpoint base URL
//	OLLAMA_MODEL   completion model name
//	CACHE_DB       SQLite path for the selector cache (default db/selectors.db)
//	MCP_TRANSPORT  "stdio" to also expose the scrape tool over MCP
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AditiPrabhuA/gomarble/browser"
	"github.com/AditiPrabhuA/gomarble/oracle"
	"github.com/AditiPrabhuA/gomarble/scrape"
)

func main() {
	port := env("PORT", "8080")

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := &fileConfig{}
	if path := os.Getenv("CONFIG"); path != "" {
		loaded, err := loadConfigFile(path)
		if err != nil {
			slog.Error("config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Browser.Logger = logger
	cfg.Oracle.Logger = logger
	cfg.Scrape.Logger = logger
	if ws := os.Getenv("BROWSER_WS"); ws != "" {
		cfg.Browser.RemoteURL = ws
	}
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		cfg.Oracle.OllamaURL = u
	}
	if m := os.Getenv("OLLAMA_MODEL"); m != "" {
		cfg.Oracle.Model = m
	}

	mgr := browser.NewManager(cfg.Browser)
	if err := mgr.Start(ctx); err != nil {
		slog.Error("browser start", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	cache, err := oracle.OpenCache(env("CACHE_DB", "db/selectors.db"),
		cfg.CacheTTL, cfg.CacheMaxEntries, logger)
	if err != nil {
		slog.Error("selector cache", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	svc := scrape.NewService(browser.NewPool(mgr), oracle.New(cfg.Oracle, cache), cfg.Scrape)

	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "reviewd",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute, // sessions can run long
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// scraper is the service surface the HTTP layer needs.
type scraper interface {
	Scrape(ctx context.Context, url string, maxCount int) (*scrape.Result, error)
}

func newRouter(svc scraper) http.Handler {
	r := chi.NewRouter()
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/reviews", func(w http.ResponseWriter, req *http.Request) {
		pageURL := req.URL.Query().Get("page")
		maxCount := queryInt(req, "max_count", 0)

		result, err := svc.Scrape(req.Context(), pageURL, maxCount)
		if err != nil {
			// Partial success beats total failure: anything already
			// collected goes out as a normal response.
			if result != nil && result.ReviewsCount > 0 {
				writeJSON(w, http.StatusOK, result)
				return
			}
			writeDetail(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	return r
}

// statusFor maps the pipeline error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scrape.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, scrape.ErrNavigation):
		return http.StatusBadGateway
	case errors.Is(err, scrape.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, scrape.ErrRateLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// cors allows the visualization frontend to call the API from any
// origin; the service carries no credentials.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
