package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/prudhvinik1/episync/internal/middleware"
	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Catalog      *schedule.Catalog
	Auth         *services.AuthService
	Children     *services.ChildService
	Vaccinations *services.VaccinationService
	Sync         *services.SyncService
	Metrics      http.Handler
	Logger       *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandler := NewAuthHandler(cfg.Auth, logger)
	childHandler := NewChildHandler(cfg.Children, cfg.Vaccinations, logger)
	reportHandler := NewReportHandler(cfg.Catalog, cfg.Children, cfg.Vaccinations, logger)
	syncHandler := NewSyncHandler(cfg.Sync, logger)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger(logger))
	router.Use(chimw.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":     "ok",
			"sync_state": string(cfg.Sync.State()),
		})
	})
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/schedule", reportHandler.Schedule)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Auth, logger))

			r.Post("/auth/logout", authHandler.Logout)
			r.Post("/auth/logout-all", authHandler.LogoutAll)

			r.Get("/children", childHandler.List)
			r.Post("/children", childHandler.Create)
			r.Get("/children/{id}", childHandler.Get)
			r.Put("/children/{id}", childHandler.Update)
			r.Delete("/children/{id}", childHandler.Delete)
			r.Post("/children/{id}/vaccinations", childHandler.Administer)

			r.Get("/defaulters", reportHandler.Defaulters)
			r.Get("/stats", reportHandler.Stats)
			r.Get("/coverage", reportHandler.Coverage)
			r.Get("/vaccinators", reportHandler.Vaccinators)

			r.Get("/sync", syncHandler.Status)
			r.Post("/sync", syncHandler.Trigger)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Get("/users", authHandler.ListUsers)
				r.Post("/users/{id}/approve", authHandler.Approve)
			})
		})
	})

	return router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
