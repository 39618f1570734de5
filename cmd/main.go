package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/config"
	"github.com/andressep95/nfc-access-service/internal/database"
	"github.com/andressep95/nfc-access-service/internal/handler"
	"github.com/andressep95/nfc-access-service/internal/handler/middleware"
	"github.com/andressep95/nfc-access-service/internal/notifier"
	"github.com/andressep95/nfc-access-service/internal/repository"
	"github.com/andressep95/nfc-access-service/internal/repository/memory"
	"github.com/andressep95/nfc-access-service/internal/repository/postgres"
	"github.com/andressep95/nfc-access-service/internal/service"
	"github.com/andressep95/nfc-access-service/pkg/jwt"
	"github.com/andressep95/nfc-access-service/pkg/logger"
	"github.com/andressep95/nfc-access-service/pkg/ratelimit"
	"github.com/andressep95/nfc-access-service/pkg/validator"
)

type repositories struct {
	tokens   repository.TokenRepository
	sessions repository.SessionRepository
	entities repository.EntityRepository
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	checks := map[string]handler.Check{}

	// Storage
	var repos repositories
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		db, err := initDB(cfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Error("Error closing database connection", zap.Error(err))
			}
		}()
		zapLogger.Info("Database connection established")

		if err := database.RunMigrations(db.DB, zapLogger); err != nil {
			zapLogger.Fatal("Failed to run migrations", zap.Error(err))
		}

		repos = repositories{
			tokens:   postgres.NewTokenRepository(db),
			sessions: postgres.NewSessionRepository(db),
			entities: postgres.NewEntityRepository(db),
		}
		checks["database"] = db.PingContext
	case config.StorageDriverMemory:
		entities := memory.NewEntityRepository()
		if cfg.Storage.SeedFile != "" {
			n, err := entities.LoadSeed(cfg.Storage.SeedFile)
			if err != nil {
				zapLogger.Fatal("Failed to load memory seed", zap.Error(err))
			}
			zapLogger.Info("Memory storage seeded", zap.Int("entities", n))
		}
		repos = repositories{
			tokens:   memory.NewTokenRepository(),
			sessions: memory.NewSessionRepository(),
			entities: entities,
		}
		zapLogger.Warn("Using in-memory storage, data is lost on restart")
	}

	// Admission control
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		redisClient, err := initRedis(cfg)
		if err != nil {
			zapLogger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Error("Error closing Redis connection", zap.Error(err))
			}
		}()
		zapLogger.Info("Redis connection established")

		limiter = ratelimit.NewRedisLimiter(redisClient, "resolve", cfg.RateLimit.Limit, cfg.RateLimit.Window)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		zapLogger.Warn("Rate limiting disabled")
	}

	// Admin token verification
	var verifier *jwt.Verifier
	if cfg.Admin.PublicKeyPath != "" {
		publicKey, err := os.ReadFile(cfg.Admin.PublicKeyPath)
		if err != nil {
			zapLogger.Fatal("Failed to read admin public key", zap.Error(err))
		}
		verifier, err = jwt.NewVerifier(publicKey, cfg.Admin.Issuer)
		if err != nil {
			zapLogger.Fatal("Failed to parse admin public key", zap.Error(err))
		}
		zapLogger.Info("Admin token verification enabled")
	} else {
		zapLogger.Warn("ADMIN_JWT_PUBLIC_KEY_PATH not set, admin routes will reject every request")
	}

	// Realtime notifier
	hub := notifier.NewHub()
	sinks := []notifier.Sink{hub}
	kafkaPublisher := notifier.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ScanTopic)
	if kafkaPublisher != nil {
		sinks = append(sinks, kafkaPublisher)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				zapLogger.Error("Error closing Kafka writer", zap.Error(err))
			}
		}()
		zapLogger.Info("Kafka scan events enabled", zap.String("topic", cfg.Kafka.ScanTopic))
	}
	dispatcher := notifier.NewDispatcher(0, logger.WithComponent(zapLogger, "notifier"), sinks...)

	// Services
	validate := validator.NewValidator()
	tokenService := service.NewTokenService(repos.tokens, nil, logger.WithComponent(zapLogger, "tokens"))
	sessionService := service.NewSessionService(repos.sessions, nil, logger.WithComponent(zapLogger, "sessions"))
	scanService := service.NewScanService(repos.entities, cfg.Tokens.HistoryCap, nil, logger.WithComponent(zapLogger, "scans"))
	resolutionService := service.NewResolutionService(
		tokenService,
		repos.entities,
		scanService,
		sessionService,
		dispatcher,
		nil,
		logger.WithComponent(zapLogger, "resolution"),
	)
	provisioningService := service.NewProvisioningService(tokenService, repos.entities, logger.WithComponent(zapLogger, "provisioning"))
	sweeper := service.NewSweeper(sessionService, tokenService, service.SweeperConfig{
		Interval:         cfg.Sweeper.Interval,
		StaleAfter:       cfg.Sessions.StaleAfter,
		SessionRetention: cfg.Sessions.Retention,
	}, logger.WithComponent(zapLogger, "sweeper"))

	if _, ok := checks["database"]; !ok {
		checks["storage"] = repos.entities.Ping
	}

	// Handlers
	handlers := handler.Handlers{
		Profile:  handler.NewProfileHandler(resolutionService, zapLogger),
		Session:  handler.NewSessionHandler(sessionService, validate, zapLogger),
		Admin:    handler.NewAdminHandler(tokenService, provisioningService, sessionService, scanService, validate, zapLogger),
		Realtime: handler.NewRealtimeHandler(hub, zapLogger),
		Health:   handler.NewHealthHandler(checks),
	}

	// Create Fiber app
	app := handler.NewApp(handler.AppConfig{
		Name:         "NFC Access Service",
		Quiet:        cfg.IsProduction(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ProxyHeader:  fiber.HeaderXForwardedFor,
	}, zapLogger)

	// Setup global middlewares
	app.Use(middleware.RecoveryMiddleware(zapLogger))
	app.Use(middleware.TraceID())
	app.Use(middleware.LoggerMiddleware(zapLogger))
	app.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	handler.SetupRoutes(
		app,
		handlers,
		middleware.RateLimit(limiter, zapLogger),
		middleware.AdminAuth(verifier, cfg.Admin.Role, zapLogger),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go dispatcher.Run(ctx)
	if cfg.Sweeper.Enabled {
		go sweeper.Run(ctx)
	}

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		zapLogger.Info("Server starting",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("storage", cfg.Storage.Driver))
		if err := app.Listen(addr); err != nil {
			zapLogger.Error("Server failed to start", zap.Error(err))
			stop()
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	zapLogger.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server stopped")
}

// initDB initializes PostgreSQL database connection with retry logic
func initDB(cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := cfg.Database.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		logger.Warn("Failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis initializes Redis client and verifies connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
