package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"raildrops/config"
	"raildrops/database"
	"raildrops/handlers"
	"raildrops/metrics"
	"raildrops/middleware"
	"raildrops/services"
	"raildrops/utils"
	"raildrops/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	defer logger.Init("raildrops", true, false, io.Discard).Close()

	cfg := config.Load()
	if cfg.ServiceToken == "" {
		logger.Fatal("❌ RAILDROPS_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var uploader handlers.ImageUploader
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			logger.Fatalf("failed to initialize R2 client: %v", err)
		}
		uploader = r2
	} else {
		logger.Warning("⚠️  R2 credentials not set, image uploads are disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter := metrics.NewExporter(reg)

	giveawayService := services.NewGiveawayService(db)
	businessService := services.NewBusinessService(db)
	entryService := services.NewEntryService(db)
	winnerService := services.NewWinnerService(db)

	dispatcher := workers.NewDispatcher(db, winnerService, workers.DispatcherOptions{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		MaxRetries: cfg.ChunkMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		Exporter:   exporter,
	})
	dispatcher.Start(ctx)

	scheduler, err := workers.NewScheduler(cfg, winnerService, dispatcher)
	if err != nil {
		logger.Fatalf("failed to create scheduler: %v", err)
	}
	if err := scheduler.Start(ctx, cfg); err != nil {
		logger.Fatalf("failed to start scheduler: %v", err)
	}

	if cfg.AccountSyncURL != "" {
		workers.NewAccountSyncWorker(db, cfg.AccountSyncURL, cfg.AccountSyncPath, cfg.AccountSyncToken, cfg.AccountSyncInterval).Start(ctx)
	} else {
		logger.Warning("⚠️  ACCOUNT_SYNC_URL not set, profile cities will not be mirrored")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuth(cfg.ServiceToken))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Account-Kind",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContext())

	handlers.SetupGiveawayRoutes(app, giveawayService, entryService, winnerService, uploader)
	handlers.SetupBusinessRoutes(app, businessService, uploader)
	handlers.SetupAdminRoutes(app, winnerService, dispatcher, exporter, cfg.ChunkSize)
	handlers.SetupMetricsRoute(app, reg)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Errorf("Server error: %v", err)
		}
	}()

	logger.Infof("✅ Server running on http://localhost:%s", cfg.Port)
	logger.Infof("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Errorf("Scheduler shutdown error: %v", err)
	}
	if err := dispatcher.Wait(); err != nil {
		logger.Errorf("Dispatcher shutdown error: %v", err)
	}
}
