package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"danceportal_go/config"
	"danceportal_go/database"
	"danceportal_go/database/memory"
	"danceportal_go/database/seeders"
	"danceportal_go/middleware"
	"danceportal_go/repository"
	"danceportal_go/routes"
	"danceportal_go/services"
	"danceportal_go/services/billing"
	"danceportal_go/services/events"
	"danceportal_go/services/processor"
	"danceportal_go/services/websocket"
	"danceportal_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const appVersion = "1.0.0"

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig
	setupLogging(cfg)

	// Billing store: SQL through gorm, or in memory for demos
	var store repository.Store
	if cfg.StoreDriver == "memory" {
		database.ConnectRedis()
		store = memory.NewStore()
		logrus.Warn("Using in-memory store; data is lost on restart")
	} else {
		database.Connect()
		store = database.NewGormStore(database.DB)
	}
	defer database.Close()

	if cfg.SeedOnStart {
		if err := seeders.SeedAll(context.Background(), store); err != nil {
			log.Fatal(err)
		}
	}

	// Payment processor
	var proc processor.Processor = processor.Disabled{}
	if cfg.StripeSecretKey != "" {
		proc = processor.NewStripeProcessor(cfg.StripeSecretKey)
	} else {
		logrus.Warn("STRIPE_SECRET_KEY not set; processor payments are disabled")
	}

	// Ledger events: websocket fan-out, Kafka when configured
	wsHub := websocket.NewHub()
	go wsHub.Run()

	publishers := events.Multi{events.NewHubPublisher(wsHub), events.Logging{}}
	var kafka *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaLedgerTopic)
		publishers = append(publishers, kafka)
	}

	posting, err := billing.ParsePostingPolicy(cfg.LedgerPosting)
	if err != nil {
		log.Fatal(err)
	}
	billingService := billing.NewService(billing.Options{
		Store:            store,
		Processor:        proc,
		Locker:           database.NewLocker(),
		Publisher:        publishers,
		ProcessorTimeout: cfg.ProcessorTimeout,
		Posting:          posting,
		Currency:         cfg.Currency,
	})

	// Archive bucket
	var objects storage.ObjectStore
	if cfg.S3BucketName != "" {
		s3Store, err := storage.NewS3Store(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			log.Fatal("Failed to configure S3:", err)
		}
		objects = s3Store
	} else {
		logrus.Info("S3_BUCKET not set; statement and log archiving disabled")
	}

	exports := services.NewExportService(objects, cfg.S3ArchivePrefix, database.DB)
	adminService := services.NewAdminService(billingService, exports)
	portalService := services.NewPortalService(billingService, exports)

	var archiver *services.LogArchiveService
	if database.DB != nil {
		archiver = services.NewLogArchiveService(database.DB, database.GetRedisClient(), objects, cfg.S3ArchivePrefix)
	}

	scheduler, err := services.NewScheduler(services.SchedulerConfig{
		AutopayCron:    cfg.AutopayCron,
		LogFlushCron:   flushSpec(cfg),
		LogArchiveCron: cfg.LogArchiveCron,
	}, billingService, archiver)
	if err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	healthService := services.NewHealthService("Dance Portal API", appVersion, cfg.AppEnv, services.HealthDeps{
		DB:               database.DB,
		DBDriver:         cfg.DBDriver,
		Redis:            database.GetRedisClient(),
		KafkaBrokers:     cfg.KafkaBrokers,
		Posting:          string(posting),
		StoreDriver:      cfg.StoreDriver,
		ProcessorEnabled: cfg.StripeSecretKey != "",
		ArchiveBucket:    cfg.S3BucketName,
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		AppName:      "Dance Portal API " + appVersion,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,Idempotency-Key,X-Request-ID",
	}))

	// Custom middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	routes.SetupRoutes(app, routes.Dependencies{
		Store:    store,
		Revoker:  middleware.NewRevoker(database.GetRedisClient()),
		Admin:    adminService,
		Portal:   portalService,
		Health:   healthService,
		Archiver: archiver,
		Hub:      wsHub,
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	// Start server and wait for a shutdown signal
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"env":     cfg.AppEnv,
			"posting": posting,
			"store":   cfg.StoreDriver,
		}).Info("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("Shutting down")
	scheduler.Stop()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	wsHub.Stop()
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close Kafka writer")
		}
	}
}

// flushSpec disables the flush job when Redis is not connected.
func flushSpec(cfg *config.Config) string {
	if database.GetRedisClient() == nil {
		return ""
	}
	return cfg.LogFlushCron
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":      err.Error(),
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"status":     code,
		"request_id": middleware.GetRequestID(c),
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
