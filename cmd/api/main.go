package main

import (
	"context"
	"errors"
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

	"github.com/noah-isme/gema-review-api/internal/config"
	"github.com/noah-isme/gema-review-api/internal/database"
	"github.com/noah-isme/gema-review-api/internal/handler"
	"github.com/noah-isme/gema-review-api/internal/middleware"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/internal/router"
	"github.com/noah-isme/gema-review-api/internal/service"
	"github.com/noah-isme/gema-review-api/internal/worker"
	"github.com/noah-isme/gema-review-api/pkg/ai"
	"github.com/noah-isme/gema-review-api/pkg/media"
	"github.com/noah-isme/gema-review-api/pkg/storage"
)

type revisionQueue interface {
	service.RevisionQueue
	worker.Source
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}
	healthChecks := map[string]handler.DependencyCheck{
		"database": sqlDB.PingContext,
	}

	var guard service.SubmissionGuard = service.NoopSubmissionGuard{}
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		guard = service.NewRedisSubmissionGuard(redisClient, cfg.SubmissionGuardTTL, logger)
		healthChecks["redis"] = func(ctx context.Context) error { return redisPing(ctx, redisClient) }
	} else {
		logger.Warn().Msg("redis not configured, concurrent submissions rely on the database unique index")
	}

	var queue revisionQueue
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Close()
		queue = worker.NewNATSQueue(conn, cfg.NATSSubject, cfg.WorkerConcurrency*4, logger)
		healthChecks["nats"] = func(context.Context) error { return natsStatus(conn) }
	} else {
		logger.Warn().Msg("nats not configured, revision jobs stay in process")
		queue = worker.NewMemoryQueue(cfg.WorkerConcurrency * 4)
	}

	completer, closeCompleter, err := newCompleter(rootCtx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to create ai client: %v", err)
	}
	defer closeCompleter()

	store, err := newObjectStorage(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create object storage: %v", err)
	}

	transcoder := media.NewTranscoder(media.Config{
		FFmpegPath:     cfg.FFmpegPath,
		FFprobePath:    cfg.FFprobePath,
		WorkDir:        cfg.MediaWorkDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxDuration:    cfg.MaxVideoDuration,
		Timeout:        cfg.PipelineTimeout,
	}, logger)
	if err := transcoder.AssertReady(); err != nil {
		log.Fatalf("media tooling unavailable: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	transactor := repository.NewTransactor(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	callLogRepo := repository.NewCallLogRepository(db)

	retryPolicy := pipeline.ExponentialRetryPolicy(cfg.EvaluationMaxRetry, cfg.EvaluationBackoff, 30*time.Second)
	mediaStage := service.NewMediaStage(transcoder, store, mediaRepo, callLogRepo, cfg.StorageKeyPrefix, logger)
	evaluationStage := service.NewEvaluationStage(completer, retryPolicy, callLogRepo, logger)

	reviewService := service.NewReviewService(submissionRepo, callLogRepo, mediaStage, evaluationStage, guard, validate, logger)
	revisionService := service.NewRevisionService(transactor, submissionRepo, mediaRepo, revisionRepo, callLogRepo, evaluationStage, logger)

	revisionWorker := worker.NewRevisionWorker(revisionService, cfg.WorkerConcurrency, cfg.PipelineTimeout, logger)
	if err := revisionWorker.Start(rootCtx, queue); err != nil {
		log.Fatalf("failed to start revision worker: %v", err)
	}
	if cfg.SweepInterval > 0 {
		sweeper := worker.NewSweeper(submissionRepo, queue, cfg.SweepInterval, cfg.SweepBatch, logger)
		go sweeper.Start(rootCtx)
	}

	reviewHandler := handler.NewReviewHandler(reviewService, revisionService, queue, validate, handler.ReviewHandlerConfig{
		UploadDir:      transcoder.WorkDir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Timeout:        cfg.PipelineTimeout,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ReviewHandler: reviewHandler,
		HealthChecks:  healthChecks,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(rootCtx, app)
}

func newCompleter(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Completer, func(), error) {
	switch cfg.AIProvider {
	case "gemini":
		completer, err := ai.NewGeminiCompleter(ctx, ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return completer, func() {
			if err := completer.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close gemini client")
			}
		}, nil
	default:
		completer, err := ai.NewOpenAICompleter(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return completer, func() {}, nil
	}
}

func newObjectStorage(cfg config.Config, logger zerolog.Logger) (service.ObjectStorage, error) {
	if cfg.StorageProvider == "cloudinary" {
		if cloudinaryIgnoresExpiry(cfg) {
			logger.Warn().
				Dur("signed_url_expiry", cfg.SignedURLExpiry).
				Msg("cloudinary signed urls do not expire; storage.signed_url_expiry is ignored")
		}
		return storage.NewCloudinaryStore(storage.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	}

	return storage.NewMinioStore(
		storage.WithEndpoint(cfg.MinioEndpoint),
		storage.WithBucket(cfg.MinioBucket),
		storage.WithCredentials(cfg.MinioAccessKey, cfg.MinioSecretKey),
		storage.WithSSL(cfg.MinioUseSSL),
		storage.WithSignedURLExpiry(cfg.SignedURLExpiry),
		storage.WithLogger(logger),
	)
}

// cloudinaryIgnoresExpiry reports a configured expiry that the cloudinary store cannot honour.
func cloudinaryIgnoresExpiry(cfg config.Config) bool {
	return cfg.StorageProvider == "cloudinary" &&
		cfg.SignedURLExpiry > 0 &&
		cfg.SignedURLExpiry != storage.DefaultSignedURLExpiry
}

func redisPing(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

func natsStatus(conn *nats.Conn) error {
	if status := conn.Status(); status != nats.CONNECTED {
		return errors.New("nats " + status.String())
	}
	return nil
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
