package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearbill/billing-api/docs"
	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/config"
	"github.com/clearbill/billing-api/internal/database"
	"github.com/clearbill/billing-api/internal/http/handler"
	"github.com/clearbill/billing-api/internal/http/middleware"
	"github.com/clearbill/billing-api/internal/http/router"
	"github.com/clearbill/billing-api/internal/jobs"
	"github.com/clearbill/billing-api/internal/logger"
	"github.com/clearbill/billing-api/internal/mailer"
	"github.com/clearbill/billing-api/internal/pdf"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/storage"
	"go.uber.org/zap"
)

// @title ClearBill Billing API
// @version 1.0
// @description Invoicing and quoting API for small businesses with Austrian VAT handling

// @contact.name API Support
// @contact.email support@clearbill.at

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// Configure Swagger host based on environment
	switch basicCfg.App.Environment {
	case "staging":
		docs.SwaggerInfo.Host = "staging.api.clearbill.at"
	case "production":
		docs.SwaggerInfo.Host = "api.clearbill.at"
	default:
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// Load full configuration with secrets
	// In development: uses environment variables
	// In staging/production: fetches from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	// Connect to database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize document archive storage
	archive, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)

	// Token service validates the JWT secret length on startup
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	// Outgoing mail and PDF rendering
	mail := mailer.NewSender(cfg.SMTP, log)
	renderer := pdf.NewRenderer(cfg.App.CompanyName, cfg.App.CompanyAddress, cfg.App.CompanyEmail)

	// Initialize services
	auditLogService := service.NewAuditLogService(auditLogRepo, log)
	numberService := service.NewDocumentNumberService(invoiceRepo, quoteRepo, log)
	authService := service.NewAuthService(userRepo, clientRepo, sessionRepo, tokens, auditLogService, cfg.Auth, cfg.App.AdminEmail, log)
	clientService := service.NewClientService(clientRepo, userRepo, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, clientRepo, userRepo, numberService, renderer, mail, archive, auditLogService, log)
	quoteService := service.NewQuoteService(quoteRepo, invoiceRepo, clientRepo, userRepo, numberService, renderer, mail, archive, auditLogService, log)

	// Initialize middleware
	authMiddleware := auth.NewMiddleware(tokens, sessionRepo, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, log)
	clientHandler := handler.NewClientHandler(clientService, log)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, log)
	quoteHandler := handler.NewQuoteHandler(quoteService, log)
	auditHandler := handler.NewAuditHandler(auditLogService, log)

	// Setup router
	rt := router.NewRouter(
		cfg,
		log,
		db,
		authMiddleware,
		rateLimiter,
		authHandler,
		clientHandler,
		invoiceHandler,
		quoteHandler,
		auditHandler,
	)

	// Initialize and start scheduler for background jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.OverdueSweepEnabled {
		scheduler = jobs.NewScheduler(log)

		sweep := jobs.NewOverdueSweepJob(invoiceService, log, 0)
		if err := scheduler.AddJob(jobs.OverdueSweepJobName, cfg.Jobs.OverdueSweepSchedule, sweep.Run); err != nil {
			log.Error("Failed to register overdue sweep job", zap.Error(err))
		} else {
			scheduler.Start()
			log.Info("Scheduler started with overdue sweep job",
				zap.String("cron_expr", cfg.Jobs.OverdueSweepSchedule),
			)
		}
	} else {
		log.Info("Overdue sweep disabled")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Stop scheduler if running
		if scheduler != nil {
			ctx := scheduler.Stop()
			<-ctx.Done()
			log.Info("Scheduler stopped")
		}

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
