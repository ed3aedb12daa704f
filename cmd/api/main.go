package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/config"
	"github.com/noah-isme/admission-ledger-api/internal/database"
	"github.com/noah-isme/admission-ledger-api/internal/handler"
	"github.com/noah-isme/admission-ledger-api/internal/middleware"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
	"github.com/noah-isme/admission-ledger-api/internal/router"
	"github.com/noah-isme/admission-ledger-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().Str("service", cfg.AppName).Logger()

	store, err := openLedgerStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open ledger store")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := service.NewLedgerEventHub(redisClient, cfg.EventsChannel, natsConn, logger)
	hub.Start(rootCtx)

	var writerLock service.WriterLock
	if redisClient != nil {
		writerLock = service.NewRedisWriterLock(redisClient, cfg.EventsChannel+":writer", cfg.RedisLockTTL, cfg.RedisLockWait)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	school := service.SchoolProfile{Name: cfg.SchoolName, AdmissionYear: cfg.AdmissionYear}

	ledger := service.NewAdmissionService(store, validate, writerLock, hub, school, logger)
	if err := ledger.Load(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load roster")
	}
	transfer := service.NewRosterTransfer(ledger, logger)
	summaries := service.NewCachedLedgerSummary(ledger, redisClient, cfg.SummaryCacheTTL, cfg.EventsChannel, logger)

	mutationLimiter := middleware.RateLimit("ledger", cfg.RateLimitMax, cfg.RateLimitWindow)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.ImportMaxBytes + 64<<10,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: !cfg.IsProduction()})
	router.Register(app, cfg, router.Dependencies{
		Ledger:           ledger,
		AdmissionHandler: handler.NewAdmissionHandler(ledger, mutationLimiter, logger),
		AnalyticsHandler: handler.NewAnalyticsHandler(ledger, summaries, logger),
		TransferHandler:  handler.NewTransferHandler(transfer, int64(cfg.ImportMaxBytes), mutationLimiter, logger),
		EventsHandler:    handler.NewLedgerEventsHandler(hub, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cancel, logger)
}

func openLedgerStore(cfg config.Config) (repository.LedgerStore, error) {
	if cfg.StoreBackend == config.BackendSQL {
		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repository.MigrateLedger(db); err != nil {
			return nil, err
		}
		return repository.NewGormLedgerStore(db, cfg.StrictDates), nil
	}

	return repository.NewCSVLedgerStore(repository.CSVLedgerStoreConfig{
		RosterPath:    cfg.RosterPath(),
		TcArchivePath: cfg.TcArchivePath(),
		StrictDates:   cfg.StrictDates,
	})
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
