// Package api assembles the HTTP surface: routing, middleware, and the
// operational endpoints (health, metrics, version).
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/agents"
	"github.com/mnemos-ai/mnemos/internal/api/handlers"
	mw "github.com/mnemos-ai/mnemos/internal/api/middleware"
	"github.com/mnemos-ai/mnemos/internal/buildconfig"
	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/service"
)

// Deps carries the pre-wired services the router exposes.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Memories   *service.MemoryService
	Activation *service.ActivationService
	Unified    *service.UnifiedSearch
	Scheduler  *agents.Scheduler
}

// App holds the router and request counters for the metrics endpoint.
type App struct {
	Router *chi.Mux

	startTime    time.Time
	requestCount atomic.Int64
}

func NewApp(deps Deps) *App {
	memoryHandler := handlers.NewMemoryHandler(deps.Memories)
	activationHandler := handlers.NewActivationHandler(deps.Activation)
	searchHandler := handlers.NewSearchHandler(deps.Unified)
	consolidateHandler := handlers.NewConsolidateHandler(deps.Scheduler)

	r := chi.NewRouter()
	app := &App{Router: r, startTime: time.Now()}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.countRequests)
	r.Use(mw.Logging(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst))
	r.Use(mw.Activation(deps.Activation, mw.ActivationConfig{
		Fields: map[string]string{
			"POST /v1/memories":        "content",
			"POST /v1/memories/search": "query",
			"POST /v1/search":          "query",
		},
		Timeout: time.Duration(deps.Config.ActivationTimeoutMS) * time.Millisecond,
	}))

	r.Get("/health", healthHandler(deps.Memories))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Save)
			r.Post("/search", memoryHandler.Search)
			r.Post("/open", memoryHandler.Open)
			r.Post("/gc", memoryHandler.GC)
			r.Post("/promote", memoryHandler.Promote)
			r.Post("/cluster", memoryHandler.Cluster)
			r.Post("/{id}/touch", memoryHandler.Touch)
		})

		r.Post("/relations", memoryHandler.CreateRelation)
		r.Get("/graph", memoryHandler.ReadGraph)
		r.Post("/search", searchHandler.Unified)

		r.Route("/activate", func(r chi.Router) {
			r.Post("/", activationHandler.Activate)
			r.Post("/rebuild", activationHandler.RebuildIndex)
		})

		r.Route("/consolidate", func(r chi.Router) {
			r.Post("/", consolidateHandler.Run)
			r.Post("/post-save", consolidateHandler.PostSaveCheck)
		})

		r.Route("/storage", func(r chi.Router) {
			r.Get("/stats", memoryHandler.StorageStats)
			r.Post("/compact", memoryHandler.Compact)
		})
	})

	return app
}

func (app *App) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.requestCount.Add(1)
		next.ServeHTTP(w, r)
	})
}

func healthHandler(memories *service.MemoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := memories.StorageStats(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
