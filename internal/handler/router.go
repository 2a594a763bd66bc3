package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/port"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// health may be nil when the backend cannot be pinged. A nil verifier
// leaves the customer routes unauthenticated.
func NewRouter(svc *service.ReportService, health port.HealthChecker, verifier *service.TokenVerifier, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(health))
	r.Get("/readyz", readyzHandler(health, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/reports", reportMetricsHandler(metrics))

		// =============================================
		// Preview: caller-supplied transactions
		// POST /v1/reports/preview
		// =============================================
		r.Post("/reports/preview", previewReportHandler(svc, logger))

		// =============================================
		// Customer reports
		// GET /v1/customers/{customerId}/reports/cashflow
		// GET /v1/customers/{customerId}/reports/categories
		// GET /v1/customers/{customerId}/financial/summary
		// =============================================
		r.Route("/customers/{customerId}", func(r chi.Router) {
			if verifier != nil {
				r.Use(JWTAuthMiddleware(verifier, logger))
				r.Use(RequireCustomerMatch(logger))
			}
			r.Get("/reports/cashflow", cashflowReportHandler(svc, logger))
			r.Get("/reports/categories", categoryReportHandler(svc, logger))
			r.Get("/financial/summary", financialSummaryHandler(svc, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(health port.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if health != nil {
			start := time.Now()
			err := health.Ping(r.Context())
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "transactions-store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(health port.HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
