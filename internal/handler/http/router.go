package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gje4/vercel-bigcommerce/internal/service"
	"github.com/gje4/vercel-bigcommerce/pkg/health"
	"github.com/gje4/vercel-bigcommerce/pkg/middleware"
)

// RouterConfig holds the knobs of the HTTP surface.
type RouterConfig struct {
	ServiceName  string
	MaxBodyBytes int64
	PprofCIDRs   []string
	// CORSOrigins defaults to any origin when empty.
	CORSOrigins  []string
}

// NewRouter creates a chi router with all pipeline routes registered.
func NewRouter(
	pipelineService *service.PipelineService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORSOrigins
	}
	corsCfg.ExposedHeaders = append(corsCfg.ExposedHeaders, RunIDHeader, ReplayedHeader)

	// Global middleware
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Pipeline API endpoints
	pipelineHandler := NewPipelineHandler(pipelineService, logger)

	r.Route("/api/v1/pipelines", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)
		r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

		r.Post("/", pipelineHandler.CreatePipeline)
		r.Get("/", pipelineHandler.ListPipelines)
		r.Get("/{id}", pipelineHandler.GetPipeline)
		r.Post("/{id}/resume", pipelineHandler.ResumePipeline)
	})

	return r
}
