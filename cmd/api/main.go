package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/config"
	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/handler"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/router"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/storage"
	cloud "github.com/noah-isme/gema-classroom-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level).With().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, 5*time.Second)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; auto-close sweeps run without a distributed lock")
		} else {
			defer redisClient.Close()
			probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}

	natsConn, err := events.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable; submission events go to redis only")
	}
	if natsConn != nil {
		defer natsConn.Drain()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	var publisher events.Publisher = events.Nop{}
	if redisClient != nil || natsConn != nil {
		publisher = events.NewBus(redisClient, natsConn, cfg.EventsChannel, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    handler.BodyLimit(cfg.UploadMaxFileSizeMB),
	})

	var uploader service.FileUploader
	if cfg.CloudinaryEnabled() {
		cloudinaryService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = cloudinaryService
		probes["storage"] = cloudinaryService.Ping
	} else {
		local, err := storage.NewLocal(cfg.UploadDir, "/uploads", logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare upload directory")
		}
		app.Static(local.Prefix(), local.Dir())
		uploader = local
		logger.Warn().Str("dir", local.Dir()).Msg("cloudinary not configured; storing uploads on local disk")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	clk := clock.System()

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activity := service.NewActivityRecorder(activityRepo, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, rosterRepo, validate, uploader, activity, clk, logger)
	submissionService := service.NewSubmissionService(assignmentRepo, submissionRepo, rosterRepo, uploader, publisher, clk, service.SubmissionConfig{
		DefaultMaxFileSizeMB: cfg.UploadMaxFileSizeMB,
	}, logger)
	gradingService := service.NewGradingService(assignmentRepo, submissionRepo, rosterRepo, validate, activity, publisher, clk, logger)
	autoCloseService := service.NewAutoCloseService(assignmentRepo, submissionRepo, rosterRepo, activity, publisher, redisClient, clk, service.AutoCloseConfig{
		Interval: cfg.AutoCloseInterval,
		LockTTL:  cfg.AutoCloseLockTTL,
	}, logger)

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
	})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, middleware.RateLimit("submit", cfg.SubmitRateLimit, time.Minute), logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, autoCloseService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:      probes,
		Clock:             clk,
	})

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	sweepsDone := make(chan struct{})
	go func() {
		defer close(sweepsDone)
		autoCloseService.Run(sweepCtx)
	}()

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	stopSweeps()
	<-sweepsDone
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
