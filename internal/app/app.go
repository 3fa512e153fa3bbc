package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/gje4/vercel-bigcommerce/internal/commerce"
	"github.com/gje4/vercel-bigcommerce/internal/config"
	"github.com/gje4/vercel-bigcommerce/internal/event"
	"github.com/gje4/vercel-bigcommerce/internal/generator"
	handler "github.com/gje4/vercel-bigcommerce/internal/handler/http"
	"github.com/gje4/vercel-bigcommerce/internal/pipeline"
	"github.com/gje4/vercel-bigcommerce/internal/repository"
	"github.com/gje4/vercel-bigcommerce/internal/repository/postgres"
	redisrepo "github.com/gje4/vercel-bigcommerce/internal/repository/redis"
	"github.com/gje4/vercel-bigcommerce/internal/service"
	"github.com/gje4/vercel-bigcommerce/internal/storage"
	"github.com/gje4/vercel-bigcommerce/internal/storage/memory"
	s3storage "github.com/gje4/vercel-bigcommerce/internal/storage/s3"
	"github.com/gje4/vercel-bigcommerce/migrations"
	"github.com/gje4/vercel-bigcommerce/pkg/database"
	"github.com/gje4/vercel-bigcommerce/pkg/health"
	"github.com/gje4/vercel-bigcommerce/pkg/httpclient"
	pkgkafka "github.com/gje4/vercel-bigcommerce/pkg/kafka"
	"github.com/gje4/vercel-bigcommerce/pkg/tracing"
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	redis           *redis.Client
	producer        *pkgkafka.Producer
	pipelines       *service.PipelineService
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Tracing.
	traceCfg := tracing.DefaultConfig(cfg.ServiceName)
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTelEndpoint
	traceCfg.SampleRate = cfg.OTelSampleRate
	traceCfg.Enabled = cfg.OTelEnabled
	traceCfg.Insecure = !cfg.IsProduction()
	tracingShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		URL:             cfg.PostgresURL,
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		_ = tracingShutdown(context.Background())
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		_ = tracingShutdown(context.Background())
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Redis backs idempotency keys. The service falls back to the run table
	// when it is unreachable.
	var idem *redisrepo.IdempotencyStore
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{URL: cfg.RedisURL})
	if err != nil {
		logger.Warn("redis unavailable, idempotency keys resolved from postgres",
			slog.String("error", err.Error()),
		)
	} else {
		idem = redisrepo.NewIdempotencyStore(redisClient)
		logger.Info("connected to Redis")
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Generative model.
	var model generator.Model = generator.UnavailableModel{}
	if cfg.GeneratorAPIKey != "" {
		genModel, err := generator.NewGenAIModel(ctx, generator.GenAIConfig{
			APIKey:  cfg.GeneratorAPIKey,
			BaseURL: cfg.GeneratorBaseURL,
			Timeout: cfg.GeneratorTimeout,
		})
		if err != nil {
			logger.Warn("generative model unavailable, runs will use synthetic content",
				slog.String("error", err.Error()),
			)
		} else {
			model = genModel
		}
	} else {
		logger.Warn("AI_GATEWAY_API_KEY not set, runs will use synthetic content")
	}
	gen := generator.New(model, generator.Options{
		Model:         cfg.GeneratorModel,
		MaxAttempts:   cfg.GeneratorMaxAttempts,
		RatePerMinute: cfg.GeneratorRatePerMin,
	}, logger)

	// Commerce admin API. Writes are not idempotent, so the client never
	// retries; the breaker stops hammering a failing store.
	httpClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.CommerceTimeout,
		MaxRetries:      0,
		MaxConnsPerHost: 10,
	})
	breaker := httpclient.NewCircuitBreakerClient(httpClient, httpclient.DefaultCircuitBreakerConfig("commerce"), logger)
	commerceClient := commerce.NewClient(commerce.Credentials{
		StoreDomain: cfg.CommerceStoreDomain,
		AccessToken: cfg.CommerceAccessToken,
		APIVersion:  cfg.CommerceAPIVersion,
		BaseURL:     cfg.CommerceBaseURL,
	}, breaker, logger)
	if err := commerceClient.Credentials().Validate(); err != nil {
		logger.Warn("commerce credentials incomplete, runs will fail at the create stage",
			slog.String("error", err.Error()),
		)
	}

	// Image archive.
	store, err := newStorage(ctx, cfg)
	if err != nil {
		closeAll(pool, redisClient, producer, logger)
		_ = tracingShutdown(context.Background())
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Build the dependency graph.
	repo := postgres.NewRunRepository(pool)
	orchestrator := pipeline.NewOrchestrator(
		gen,
		commerce.NewCreator(commerceClient, cfg.CommerceVendor, logger),
		commerce.NewPublisher(commerceClient, logger),
		repo,
		storage.NewArchiver(store),
		logger,
	)
	eventProducer := event.NewProducer(producer, logger)

	var idemStore repository.IdempotencyStore
	if idem != nil {
		idemStore = idem
	}
	pipelineService := service.NewPipelineService(orchestrator, repo, idemStore, eventProducer, cfg.IdempotencyTTL, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("kafka", producer.Ping)
	healthHandler.RegisterNonCritical("commerce", breaker.HealthCheck)

	// HTTP router.
	router := handler.NewRouter(pipelineService, healthHandler, handler.RouterConfig{
		ServiceName:  cfg.ServiceName,
		MaxBodyBytes: cfg.MaxBodyBytes,
		PprofCIDRs:   cfg.PprofCIDRs,
		CORSOrigins:  cfg.CORSOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		redis:           redisClient,
		producer:        producer,
		pipelines:       pipelineService,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return s3storage.New(ctx, s3storage.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return memory.New(""), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.cfg.ResumeOnStartup {
		go a.resumeUnfinished(ctx)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

func (a *App) resumeUnfinished(ctx context.Context) {
	n, err := a.pipelines.ResumeUnfinished(ctx)
	if err != nil {
		a.logger.Error("resume unfinished runs", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		a.logger.Info("resumed unfinished runs", slog.Int("count", n))
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	closeAll(a.pool, a.redis, a.producer, a.logger)

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func closeAll(pool *pgxpool.Pool, redisClient *redis.Client, producer *pkgkafka.Producer, logger *slog.Logger) {
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	pool.Close()
}
