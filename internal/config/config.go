package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pkgconfig "github.com/gje4/vercel-bigcommerce/pkg/config"
)

// Storage backends for the generated image archive.
const (
	StorageMemory = "memory"
	StorageS3     = "s3"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"storefront"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"8388608"`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL. PostgresURL wins over the individual fields when set.
	PostgresURL  string `env:"DATABASE_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis (idempotency keys)
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Generative content service
	GeneratorAPIKey      string        `env:"AI_GATEWAY_API_KEY"`
	GeneratorModel       string        `env:"GENERATOR_MODEL" envDefault:"gemini-2.5-flash-image-preview"`
	GeneratorBaseURL     string        `env:"GENERATOR_BASE_URL"`
	GeneratorMaxAttempts int           `env:"GENERATOR_MAX_ATTEMPTS" envDefault:"3"`
	GeneratorRatePerMin  float64       `env:"GENERATOR_RATE_PER_MINUTE" envDefault:"30"`
	GeneratorTimeout     time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"2m"`

	// Commerce admin API. Credentials may be empty at startup; the pipeline
	// reports a configuration error when a run reaches the create stage.
	CommerceStoreDomain string        `env:"SHOPIFY_STORE_DOMAIN"`
	CommerceAccessToken string        `env:"SHOPIFY_ACCESS_TOKEN"`
	CommerceAPIVersion  string        `env:"SHOPIFY_API_VERSION" envDefault:"2024-01"`
	CommerceBaseURL     string        `env:"COMMERCE_BASE_URL"`
	CommerceVendor      string        `env:"COMMERCE_VENDOR" envDefault:"AI Storefront"`
	CommerceTimeout     time.Duration `env:"COMMERCE_TIMEOUT" envDefault:"30s"`

	// Image archive
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3PublicURL    string `env:"S3_PUBLIC_URL"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Resume runs left in the running state by a previous process.
	ResumeOnStartup bool `env:"RESUME_ON_STARTUP" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort))
	}
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.GeneratorMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("GENERATOR_MAX_ATTEMPTS must be at least 1, got %d", c.GeneratorMaxAttempts))
	}
	if c.GeneratorRatePerMin <= 0 {
		errs = append(errs, errors.New("GENERATOR_RATE_PER_MINUTE must be positive"))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %g", c.OTelSampleRate))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("HTTP_MAX_BODY_BYTES must be positive"))
	}
	if c.CommerceBaseURL != "" {
		u, err := url.Parse(c.CommerceBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("COMMERCE_BASE_URL %q is not an absolute URL", c.CommerceBaseURL))
		}
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be one of %s, %s; got %q", StorageMemory, StorageS3, c.StorageBackend))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
