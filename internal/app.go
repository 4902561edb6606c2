package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stored-file-api/config"
	"stored-file-api/internal/application/events"
	"stored-file-api/internal/application/ports"
	"stored-file-api/internal/application/services"
	domain "stored-file-api/internal/domain/stored_file"
	"stored-file-api/internal/infrastructure/clamav"
	memorystore "stored-file-api/internal/infrastructure/db/memory/stored_file"
	"stored-file-api/internal/infrastructure/db/postgres"
	pgstore "stored-file-api/internal/infrastructure/db/postgres/stored_file"
	"stored-file-api/internal/infrastructure/jwt"
	"stored-file-api/internal/infrastructure/metrics"
	"stored-file-api/internal/infrastructure/mimedetect"
	"stored-file-api/internal/infrastructure/mq"
	"stored-file-api/internal/infrastructure/storage/filesystem"
	"stored-file-api/internal/infrastructure/thumbnail"
	"stored-file-api/internal/interface/api/rest"
	"stored-file-api/internal/interface/api/rest/middleware"
	"stored-file-api/pkg/rmqconsumer"
)

const RepositoryMemory = "memory"

// recordStore is the record repository together with its outbox.
type recordStore interface {
	domain.Repository
	domain.Outbox
}

type App struct {
	logger       *zap.Logger
	cfg          config.Config
	db           *pgxpool.Pool
	repo         recordStore
	storage      *filesystem.Storage
	scanner      *clamav.Client
	httpSrv      *http.Server
	router       *gin.Engine
	mCounter     *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	mq           ports.RabbitMQ
	mqConsumer   ports.RMQConsumer
}

func NewApp(ctx context.Context) (*App, error) {
	// logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("cannot initialize zap logger: %v", err)
	}
	defer logger.Sync()

	// config
	if err = godotenv.Load(".env"); err != nil {
		logger.Warn("no .env file loaded, using process environment", zap.Error(err))
	}
	cfg := config.Load()

	// metrics
	mCounter := metrics.NewCounter()
	scanDuration := metrics.NewScanDuration()

	// router
	switch cfg.App.Env {
	case gin.ReleaseMode, "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogGin(logger, mCounter))

	// httpServer
	httpSrv := &http.Server{
		Addr:              cfg.App.Host + ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// records
	var (
		dbPool *pgxpool.Pool
		repo   recordStore
	)
	if cfg.App.Repository == RepositoryMemory {
		logger.Warn("using in-memory repository, records are lost on restart")
		repo = memorystore.NewRepository()
	} else {
		dbDsn, err := cfg.DBDSN()
		if err != nil {
			logger.Fatal("DB config error", zap.Error(err))
		}
		dbPool, err = postgres.New(ctx, logger, dbDsn)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		repo = pgstore.NewRepository(dbPool)
	}

	// blobs
	storage, err := filesystem.New(cfg.Storage.Root, logger)
	if err != nil {
		logger.Fatal("failed to init file storage", zap.Error(err))
	}

	// scan daemon
	scanner := clamav.New(cfg.Scan, logger)
	if err = scanner.Ping(ctx); err != nil {
		// not fatal: uploads are accepted and scanned once clamd is back
		logger.Warn("clamd is not reachable", zap.String("address", cfg.Scan.Address), zap.Error(err))
	}

	return &App{
		logger:       logger,
		cfg:          cfg,
		db:           dbPool,
		repo:         repo,
		storage:      storage,
		scanner:      scanner,
		httpSrv:      httpSrv,
		router:       r,
		mCounter:     mCounter,
		scanDuration: scanDuration,
	}, nil
}

// InitMQ wires the pipeline to the broker. The consumer queue is declared
// and bound before the publisher starts so that no event is unroutable.
func (a *App) InitMQ(ctx context.Context) error {
	rabbitDsn, err := a.cfg.AMQPDSN()
	if err != nil {
		return fmt.Errorf("rabbitMQ config: %w", err)
	}

	pipeline := services.NewStoredFilePipeline(
		a.repo,
		a.storage,
		a.scanner,
		mimedetect.New(0),
		thumbnail.New(domain.DefaultDecodeLimits),
		ports.SystemClock,
		a.logger,
		a.mCounter,
		a.scanDuration,
	)
	registry := events.NewRegistry()
	events.RegisterPipeline(registry, pipeline)

	// rmqConsumer
	rmqConsumer := rmqconsumer.New(a.cfg.MQ, a.logger, registry, registry.Names()...)
	if err = rmqConsumer.Connect(rabbitDsn); err != nil {
		return fmt.Errorf("connect rabbitMQ consumer: %w", err)
	}
	if err = rmqConsumer.Init(); err != nil {
		_ = rmqConsumer.Close()
		return fmt.Errorf("init rabbitMQ consumer: %w", err)
	}
	a.mqConsumer = rmqConsumer

	// rabbitMQ outbox relay
	rbMQ := mq.New(a.cfg.MQ, a.logger, a.repo, a.mCounter)
	if err = rbMQ.Connect(ctx, rabbitDsn); err != nil {
		return fmt.Errorf("connect rabbitMQ: %w", err)
	}
	if err = rbMQ.Init(); err != nil {
		return fmt.Errorf("init rabbitMQ: %w", err)
	}
	a.mq = rbMQ

	return nil
}

func (a *App) Close() {
	if a.mqConsumer != nil {
		_ = a.mqConsumer.Close()
	}
	if a.mq != nil && a.mq.GetConn() != nil {
		_ = a.mq.GetConn().Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Run - The central place to launch and manage our application and
// parallel processes through a single context.
func (a *App) Run(ctx context.Context) error {
	// context with os signals cancel chan
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting "+a.cfg.App.Name, zap.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server "+a.cfg.App.Name+" error: %w", err)
		}

		return nil
	})

	if a.mq != nil {
		g.Go(func() error {
			a.mq.PublisherWorker(ctx)
			return nil
		})
	}

	if a.mqConsumer != nil {
		g.Go(func() error {
			// a closed delivery channel stops the service so that the
			// orchestrator restarts it with a fresh connection
			return a.mqConsumer.DeliveryWorker(ctx)
		})
	}

	<-ctx.Done()

	a.logger.Info("shutting down " + a.cfg.App.Name + " gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown "+a.cfg.App.Name+" error", zap.Error(err))
			return err
		}
	}

	if err := g.Wait(); err != nil {
		a.logger.Error(a.cfg.App.Name+" returning an error", zap.Error(err))
		return err
	}

	a.logger.Info(a.cfg.App.Name + " gracefully stopped")

	return nil
}

func (a *App) InitControllers() {
	// services
	jwtService := jwt.New(a.cfg.App.JWTSecret)
	storedFileService := services.NewStoredFileService(
		a.repo,
		a.storage,
		ports.SystemClock,
		a.logger,
		a.mCounter,
	)

	// controllers
	rest.NewStoredFileController(a.router, storedFileService, a.logger, jwtService, a.cfg.Upload.MaxBodyBytes)

	// ops
	rest.NewOpsController(
		a.router,
		a.logger,
		rest.ReadinessCheck{Name: "repository", Check: a.repo.Ping},
		rest.ReadinessCheck{Name: "clamd", Check: a.scanner.Ping},
	)
}

func (a *App) Logger() *zap.Logger { return a.logger }
