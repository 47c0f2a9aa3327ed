package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/shopindex/internal/reindex"
	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/pkg/health"
	"github.com/utafrali/shopindex/pkg/middleware"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Records   *service.Records
	Search    *service.SearchService
	Reindexer *reindex.Reindexer
	Health    *health.Handler
}

// RouterConfig holds the HTTP-level settings.
type RouterConfig struct {
	ServiceName       string
	JWTSecret         string
	CORSOrigins       []string
	PprofAllowedCIDRs []string
	RequestTimeout    time.Duration
}

// NewRouter creates a chi router with every shopindex route registered.
func NewRouter(svc Services, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cors))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", svc.Health.LivenessHandler())
	r.Get("/health/ready", svc.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofAllowedCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	searchHandler := NewSearchHandler(svc.Search, logger)
	reindexHandler := NewReindexHandler(svc.Reindexer, logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/_search/{resource}", func(r chi.Router) {
			r.Get("/", searchHandler.Search)
			r.Get("/projection", searchHandler.SearchProjection)
		})

		r.Route("/mass/index", func(r chi.Router) {
			r.Use(middleware.Auth(middleware.HMACValidator(cfg.JWTSecret)))
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.Post("/", reindexHandler.Trigger)
			r.Get("/", reindexHandler.Latest)
			r.Get("/{id}", reindexHandler.Get)
		})

		r.Route("/customers", NewRecordHandler(svc.Records.Customers, logger).Routes)
		r.Route("/addresses", NewRecordHandler(svc.Records.Addresses, logger).Routes)
		r.Route("/wish-lists", NewRecordHandler(svc.Records.WishLists, logger).Routes)
		r.Route("/products", NewRecordHandler(svc.Records.Products, logger).Routes)
		r.Route("/categories", NewRecordHandler(svc.Records.Categories, logger).Routes)
	})

	return r
}
