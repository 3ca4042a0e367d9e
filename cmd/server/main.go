package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/cache"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/handler"
	"github.com/makkenzo/entitlement-service/internal/notify"
	"github.com/makkenzo/entitlement-service/internal/payment"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/internal/storage/redis"
	"github.com/makkenzo/entitlement-service/internal/tasks"
	"github.com/makkenzo/entitlement-service/internal/worker"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()
	sugarLogger.Infof("Starting entitlement service (log level %s)", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(appCtx, cfg, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open storage: %v", err)
	}
	defer st.Close()

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	catalog, err := buildCatalog(cfg.Products)
	if err != nil {
		sugarLogger.Fatalf("Invalid product catalog: %v", err)
	}

	redisOpt := redis.AsynqOpt(&cfg.Redis)
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	var payments service.PaymentProvider
	if c := payment.NewClient(&cfg.Payment, appLogger); c != nil {
		payments = c
	} else {
		sugarLogger.Warn("Payment provider API is not configured; subscription cancellation is disabled")
	}

	validationCache := cache.NewLicenseCache(cfg.Cache.ValidationSize, cfg.Cache.ValidationTTL)
	notifier := notify.NewQueueNotifier(queueClient, cfg.Email.MaxRetry, appLogger)
	guard := ratelimit.NewGuard(
		ratelimit.NewLimiter(redisClient, cfg.RateLimit.IPSalt),
		ratelimit.PoliciesFromConfig(cfg.RateLimit),
		appLogger,
	)

	licenseService := service.NewLicenseService(st.licenses, validationCache, payments, appLogger)
	deviceService := service.NewDeviceService(st.licenses, validationCache, appLogger)
	trialService := service.NewTrialService(st.trials, cfg.Trial.DurationDays, appLogger)
	apiKeyService := service.NewAPIKeyService(st.apiKeys, appLogger)
	identityService := service.NewIdentityService(appCtx, &cfg.Identity, st.licenses, appLogger)
	credentialService, err := service.NewCredentialService(st.licenses, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize credential service: %v", err)
	}
	sessionService, err := service.NewSessionService(&cfg.Session, st.licenses, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize session service: %v", err)
	}
	webhookService := service.NewWebhookService(
		st.licenses, st.events, st.trials, catalog, notifier, validationCache,
		service.WebhookConfig{ClaimTTL: cfg.Webhook.ClaimTTL, PurchaseTemplate: cfg.Email.PurchaseTemplate},
		appLogger,
	)

	var webhookHandler *handler.WebhookHandler
	if cfg.Webhook.Secret != "" {
		verifier, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
		if err != nil {
			sugarLogger.Fatalf("Invalid webhook secret: %v", err)
		}
		webhookHandler = handler.NewWebhookHandler(verifier, webhookService, appLogger)
	} else {
		sugarLogger.Warn("Webhook secret is not configured; payment webhooks are disabled")
	}

	checks := map[string]handler.PingFunc{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if st.ping != nil {
		checks["database"] = st.ping
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterConfig{
		AllowOrigins:      cfg.Server.AllowOrigins,
		SessionCookieName: cfg.Session.CookieName,
		AccessLog:         cfg.Log.Level == "debug",
	}, handler.Handlers{
		Health:   handler.NewHealthHandler(checks, appLogger),
		License:  handler.NewLicenseHandler(licenseService, guard, appLogger),
		Device:   handler.NewDeviceHandler(deviceService, guard, appLogger),
		Trial:    handler.NewTrialHandler(trialService, appLogger),
		Auth:     handler.NewAuthHandler(credentialService, identityService, sessionService, cfg.Session, appLogger),
		Account:  handler.NewAccountHandler(licenseService, deviceService, identityService, guard, appLogger),
		Webhook:  webhookHandler,
		APIKey:   handler.NewAPIKeyHandler(apiKeyService, appLogger),
		Sessions: sessionService,
		APIKeys:  apiKeyService,
		Guard:    guard,
	}, appLogger)

	workerHandlers := worker.Handlers{
		Email:        tasks.NewEmailHandler(notify.NewLoopsClient(&cfg.Email, appLogger), appLogger),
		GraceExpire:  tasks.NewLicenseGraceExpireHandler(licenseService, appLogger),
		TrialPurge:   tasks.NewTrialPurgeHandler(trialService, cfg.Trial.Retention, appLogger),
		WebhookPurge: tasks.NewWebhookPurgeHandler(webhookService, cfg.Webhook.Retention, appLogger),
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(groupCtx, redisOpt, &cfg.Worker, workerHandlers, appLogger); err != nil {
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal or component error...")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with error: %v", err)
		return
	}
	sugarLogger.Info("Application shutdown successfully.")
}

func buildCatalog(products []config.ProductConfig) (*license.Catalog, error) {
	plans := make(map[string]license.Plan, len(products))
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("products[%d]: id is required", i)
		}
		if _, dup := plans[p.ID]; dup {
			return nil, fmt.Errorf("products[%d]: duplicate id %q", i, p.ID)
		}
		plans[p.ID] = license.Plan{Type: license.LicenseType(p.LicenseType), MaxDevices: p.MaxDevices}
	}
	return license.NewCatalog(plans)
}
