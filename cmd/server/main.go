package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/parish-camps/camp-api/internal/auth"
	"github.com/parish-camps/camp-api/internal/config"
	"github.com/parish-camps/camp-api/internal/database"
	"github.com/parish-camps/camp-api/internal/finance"
	"github.com/parish-camps/camp-api/internal/handlers"
	"github.com/parish-camps/camp-api/internal/metrics"
	"github.com/parish-camps/camp-api/internal/notifier"
	"github.com/parish-camps/camp-api/internal/payments"
	"github.com/parish-camps/camp-api/internal/registrations"
	"github.com/parish-camps/camp-api/internal/reports"
	"go.uber.org/zap"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if cfg.BootstrapAdminEmail != "" {
		admin, err := database.EnsureAdmin(db, cfg.BootstrapAdminEmail)
		if err != nil {
			logger.Fatal("failed to provision admin", zap.Error(err))
		}
		logger.Info("admin provisioned", zap.String("email", admin.Email))
	}

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}

	// Initialize Notifiers
	var channels notifier.Multi
	if cfg.SMTPHost != "" {
		email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}, logger)
		if err != nil {
			logger.Warn("email notifier not initialized", zap.Error(err))
		} else {
			channels = append(channels, email)
		}
	}
	if cfg.DiscordBotToken != "" {
		session, err := notifier.NewDiscordSession(cfg.DiscordBotToken)
		if err != nil {
			logger.Warn("discord notifier not initialized", zap.Error(err))
		} else {
			channels = append(channels, notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID, logger))
		}
	}
	if len(channels) == 0 {
		logger.Warn("no notification channel configured")
	}

	// Initialize Services
	regs := registrations.NewService(db, channels, m, logger, cfg.PublicBaseURL)
	configs := payments.NewDBConfigResolver(db)
	reconciler := payments.NewReconciler(db, configs, payments.DefaultFactory, regs, m, logger)
	checkout := payments.NewCheckoutService(configs, payments.DefaultFactory, regs, logger)
	manual := payments.NewManualPayments(db, regs, logger)
	fin := finance.NewService(db)
	builder := reports.NewBuilder(db, fin)

	var archive reports.Archive
	if cfg.ReportsBucket != "" {
		s3Archive, err := reports.NewS3Archive(context.Background(), reports.S3Config{
			Bucket:          cfg.ReportsBucket,
			Region:          cfg.ReportsRegion,
			Endpoint:        cfg.ReportsEndpoint,
			AccessKeyID:     cfg.ReportsAccessKeyID,
			SecretAccessKey: cfg.ReportsSecretAccessKey,
		}, logger)
		if err != nil {
			logger.Warn("report archive not initialized, reports are served inline", zap.Error(err))
		} else {
			archive = s3Archive
		}
	}

	// Initialize Handlers
	authHandler := auth.NewAuthHandler(cfg, db, logger)
	h := handlers.Handlers{
		Auth:          authHandler,
		Registrations: handlers.NewRegistrationHandler(db, regs, checkout, logger),
		Webhooks:      handlers.NewWebhookHandler(reconciler, logger),
		Staff:         handlers.NewStaffHandler(db, authHandler, regs, manual, fin, builder, archive, logger),
		APIKeys:       handlers.NewAPIKeyHandler(db, authHandler, logger),
		Metrics:       m,
	}

	// Initialize Router
	r := chi.NewRouter()

	// Register Routes
	handlers.RegisterRoutes(r, h, logger)

	// Start Server
	logger.Info("starting server", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
