package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"softhire-backend/config"
	_ "softhire-backend/docs" // Important for Swagger
	"softhire-backend/internal/delivery/http/middleware"
	v1 "softhire-backend/internal/delivery/http/v1"
	"softhire-backend/internal/domain"
	"softhire-backend/internal/repository/memory"
	"softhire-backend/internal/repository/postgres"
	redisrepo "softhire-backend/internal/repository/redis"
	"softhire-backend/internal/usecase"
	"softhire-backend/pkg/auth"
	"softhire-backend/pkg/database"
	"softhire-backend/pkg/email"
	"softhire-backend/pkg/logger"
	"softhire-backend/pkg/metrics"
	"softhire-backend/pkg/payment"
	redisclient "softhire-backend/pkg/redis"
	"softhire-backend/pkg/security"
	"softhire-backend/pkg/storage"
	"softhire-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title           SoftHire Sponsorship API
// @version         1.0
// @description     Sponsor licence application workflow: sections, submission, payment and documents.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx := context.Background()

	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New("info", "json").Fatal("Failed to load config", zap.Error(err))
	}

	// 2. Setup Logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()
	log.Info("Starting softhire backend", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. Setup Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 4. Setup Repositories
	var (
		sponsorshipRepo domain.SponsorshipRepository
		userRepo        domain.UserRepository
	)
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("Using in-memory storage; data is lost on restart")
		sponsorshipRepo = memory.NewSponsorshipRepository()
		userRepo = memory.NewUserRepository()
	default:
		dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer dbPool.Close()
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, dbPool); err != nil {
				log.Fatal("Failed to migrate database", zap.Error(err))
			}
			log.Info("Database schema applied")
		}
		sponsorshipRepo = postgres.NewSponsorshipRepository(dbPool)
		userRepo = postgres.NewUserRepository(dbPool)
	}

	// 5. Setup Redis (optional)
	var rdb *goredis.Client
	rdb, err = redisclient.NewClient(ctx, redisclient.Config{URL: cfg.RedisURL, Password: cfg.RedisPassword})
	switch {
	case errors.Is(err, redisclient.ErrNotConfigured):
		log.Info("Redis not configured; using in-process webhook dedupe and rate limits")
	case err != nil:
		log.Warn("Redis unavailable; using in-process webhook dedupe and rate limits", zap.Error(err))
		rdb = nil
	default:
		defer rdb.Close()
	}

	var events domain.WebhookEventStore
	if rdb != nil {
		events = redisrepo.NewEventStore(rdb, cfg.WebhookEventTTL)
	} else {
		events = memory.NewEventStore(cfg.WebhookEventTTL)
	}
	rateLimiter := middleware.NewRateLimiter(rdb, log)
	defer rateLimiter.Stop()

	var uploadQuota domain.UploadQuota
	if rdb != nil {
		uploadQuota = security.NewUploadQuota(rdb, cfg.UploadsPerDay, 24*time.Hour)
	}

	// 6. Setup Payment Gateway
	var gateway domain.PaymentGateway
	stripeGateway, err := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    firstNonEmpty(cfg.CheckoutSuccessURL, cfg.FrontendURL+"/sponsorship/payment/success"),
		CancelURL:     firstNonEmpty(cfg.CheckoutCancelURL, cfg.FrontendURL+"/sponsorship/payment/cancelled"),
	})
	if err != nil {
		log.Warn("Stripe not configured - checkout will be unavailable", zap.Error(err))
		gateway = payment.Unconfigured{}
	} else {
		gateway = stripeGateway
	}

	// 7. Setup Document Storage
	var objectStorage domain.ObjectStorage
	s3Storage, err := storage.NewS3Storage(ctx, storage.Config{
		Provider:        storage.Provider(cfg.S3Provider),
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	})
	if err != nil {
		log.Warn("Document storage not configured - uploads will be unavailable", zap.Error(err))
		objectStorage = storage.Unconfigured{}
	} else {
		objectStorage = s3Storage
	}

	// 8. Setup Notifications
	sender := newEmailSender(ctx, cfg, log)
	dispatcher := usecase.NewNotificationDispatcher(
		email.NewNotifier(sender, cfg.AdminEmail, cfg.FrontendURL),
		cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifyTimeout, log, m)

	// 9. Setup UseCases
	validate := validation.New()
	plans := domain.PlanCatalog{
		"standard": {
			ID:              "standard",
			Name:            "Standard Sponsorship",
			AmountMinor:     int64(cfg.PlanStandardAmount),
			Currency:        cfg.PlanCurrency,
			Duration:        time.Duration(cfg.PlanDurationDays) * 24 * time.Hour,
			ProviderPriceID: cfg.PlanStandardPriceID,
		},
		"premium": {
			ID:              "premium",
			Name:            "Premium Sponsorship",
			AmountMinor:     int64(cfg.PlanPremiumAmount),
			Currency:        cfg.PlanCurrency,
			Duration:        time.Duration(cfg.PlanDurationDays) * 24 * time.Hour,
			ProviderPriceID: cfg.PlanPremiumPriceID,
		},
	}

	accountUC := usecase.NewAccountUsecase(userRepo, cfg.AutoProvision)
	sponsorshipUC := usecase.NewSponsorshipUsecase(usecase.SponsorshipDeps{
		Repo:      sponsorshipRepo,
		Users:     userRepo,
		Validator: usecase.NewSectionValidator(validate),
		Notifier:  dispatcher,
		Metrics:   m,
		Logger:    log,
	})
	paymentUC := usecase.NewPaymentUsecase(usecase.PaymentDeps{
		Repo:     sponsorshipRepo,
		Users:    userRepo,
		Gateway:  gateway,
		Events:   events,
		Notifier: dispatcher,
		Plans:    plans,
		Timeout:  cfg.PaymentTimeout,
		Metrics:  m,
		Logger:   log,
	})
	documentUC := usecase.NewDocumentUsecase(sponsorshipRepo, objectStorage, uploadQuota, validate, cfg.UploadURLTTL, log)

	// 10. Setup Auth Provider (JWKS)
	var jwksProvider *auth.Provider
	if cfg.JWKSURL != "" {
		jwksProvider = auth.NewProvider(cfg.JWKSURL, nil)
	}

	// 11. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		SponsorshipUC: sponsorshipUC,
		PaymentUC:     paymentUC,
		DocumentUC:    documentUC,
		AccountUC:     accountUC,
		Auth:          middleware.AuthConfig{JWTSecret: cfg.JWTSecret, JWKS: jwksProvider},
		RateLimiter:   rateLimiter,
		RateLimit: v1.RateLimitSettings{
			Window:          time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
			GlobalThreshold: cfg.RateLimitGlobalThreshold,
			WriteThreshold:  cfg.RateLimitWriteThreshold,
		},
		Gatherer:       registry,
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: strings.Split(cfg.FrontendURL, ","),
		AllowLocalhost: !cfg.IsProduction(),
	})

	// 12. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Listen failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// Queued emails are flushed after the last request finished.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn("Pending notifications dropped", zap.Error(err))
	}

	log.Info("Server exiting")
}

func newEmailSender(ctx context.Context, cfg *config.Config, log *zap.Logger) email.Sender {
	switch cfg.EmailProvider {
	case "smtp":
		sender := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
		if sender.IsConfigured() {
			return sender
		}
		log.Warn("SMTP not fully configured - emails will only be logged")
	case "ses":
		sender, err := email.NewSESSender(ctx, cfg.SESRegion, cfg.EmailFrom)
		if err == nil {
			return sender
		}
		log.Warn("SES unavailable - emails will only be logged", zap.Error(err))
	}
	return email.NewLogSender(log)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
