package router

import (
	"encoding/json"
	"net/http"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/config"
	"github.com/clearbill/billing-api/internal/database"
	"github.com/clearbill/billing-api/internal/http/handler"
	"github.com/clearbill/billing-api/internal/http/middleware"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/clearbill/billing-api/docs" // Import generated swagger docs
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	authHandler    *handler.AuthHandler
	clientHandler  *handler.ClientHandler
	invoiceHandler *handler.InvoiceHandler
	quoteHandler   *handler.QuoteHandler
	auditHandler   *handler.AuditHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	authHandler *handler.AuthHandler,
	clientHandler *handler.ClientHandler,
	invoiceHandler *handler.InvoiceHandler,
	quoteHandler *handler.QuoteHandler,
	auditHandler *handler.AuditHandler,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		authHandler:    authHandler,
		clientHandler:  clientHandler,
		invoiceHandler: invoiceHandler,
		quoteHandler:   quoteHandler,
		auditHandler:   auditHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Health check (basic liveness probe)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Database health check (readiness probe with detailed stats)
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.HealthCheckWithStats(rt.db)
		if err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"service": "database",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"service": "database",
			"stats": map[string]interface{}{
				"max_open_connections": stats.MaxOpenConnections,
				"open_connections":     stats.OpenConnections,
				"in_use":               stats.InUse,
				"idle":                 stats.Idle,
				"wait_count":           stats.WaitCount,
				"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
			},
		})
	})

	// Combined readiness check
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]interface{})
		allHealthy := true

		if err := database.HealthCheck(rt.db); err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			checks["database"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			allHealthy = false
		} else {
			checks["database"] = map[string]interface{}{
				"status": "healthy",
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": map[bool]string{true: "healthy", false: "unhealthy"}[allHealthy],
			"checks": checks,
		})
	})

	// Swagger documentation
	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Post("/auth/register", rt.authHandler.Register)
		r.Post("/auth/login", rt.authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Use(rt.rateLimiter.Limit)

			// Auth
			r.Post("/auth/logout", rt.authHandler.Logout)
			r.Get("/auth/me", rt.authHandler.Me)
			r.Put("/auth/profile", rt.authHandler.UpdateProfile)
			r.Put("/auth/password", rt.authHandler.ChangePassword)

			// Not gated by RequireAdmin: the service audits rejected
			// impersonation attempts before denying them.
			r.Post("/auth/login-as-client/{clientId}", rt.authHandler.LoginAsClient)

			// Invoices
			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", rt.invoiceHandler.List)
				r.Get("/stats", rt.invoiceHandler.Stats)
				r.Get("/{id}", rt.invoiceHandler.GetByID)

				// Admin only
				r.Group(func(r chi.Router) {
					r.Use(rt.authMiddleware.RequireAdmin)
					r.Get("/next-number", rt.invoiceHandler.NextNumber)
					r.Post("/", rt.invoiceHandler.Create)
					r.Patch("/{id}", rt.invoiceHandler.Update)
					r.Patch("/{id}/status", rt.invoiceHandler.UpdateStatus)
					r.Delete("/{id}", rt.invoiceHandler.Delete)
					r.Post("/{id}/send", rt.invoiceHandler.Send)
				})
			})

			// Quotes
			r.Route("/quotes", func(r chi.Router) {
				r.Get("/", rt.quoteHandler.List)
				r.Get("/{id}", rt.quoteHandler.GetByID)

				// Admin only
				r.Group(func(r chi.Router) {
					r.Use(rt.authMiddleware.RequireAdmin)
					r.Get("/next-number", rt.quoteHandler.NextNumber)
					r.Post("/", rt.quoteHandler.Create)
					r.Patch("/{id}", rt.quoteHandler.Update)
					r.Patch("/{id}/status", rt.quoteHandler.UpdateStatus)
					r.Delete("/{id}", rt.quoteHandler.Delete)
					r.Post("/{id}/send", rt.quoteHandler.Send)
					r.Post("/{id}/convert-to-invoice", rt.quoteHandler.Convert)
				})
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(rt.authMiddleware.RequireAdmin)

				r.Get("/auth/clients", rt.authHandler.ListClients)

				// Clients
				r.Route("/clients", func(r chi.Router) {
					r.Get("/", rt.clientHandler.List)
					r.Get("/next-number", rt.clientHandler.NextNumber)
					r.Post("/", rt.clientHandler.Create)
					r.Get("/{id}", rt.clientHandler.GetByID)
					r.Patch("/{id}", rt.clientHandler.Update)
					r.Delete("/{id}", rt.clientHandler.Delete)
				})

				// Audit logs
				r.Get("/audit-logs", rt.auditHandler.List)
			})
		})
	})

	return r
}
