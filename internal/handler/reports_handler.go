package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"
	"github.com/boddenberg/cashflow-reports-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxPreviewBody caps POST /v1/reports/preview payloads.
const maxPreviewBody = 4 << 20

// ============================================================
// Cashflow & category reports
// ============================================================

func cashflowReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/reports/cashflow")
		defer span.End()

		customerID := chi.URLParam(r, "customerId")
		req, err := parseReportRequest(r, svc.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("customer.id", customerID))

		report, err := svc.GetCashflowReport(ctx, customerID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func categoryReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/reports/categories")
		defer span.End()

		customerID := chi.URLParam(r, "customerId")
		req, err := parseReportRequest(r, svc.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		report, err := svc.GetCategoryReport(ctx, customerID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// ============================================================
// Financial summary
// ============================================================

func financialSummaryHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/financial/summary")
		defer span.End()

		customerID := chi.URLParam(r, "customerId")
		req, err := parseReportRequest(r, svc.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		summary, err := svc.GetFinancialSummary(ctx, customerID, req.Period, req.ReferenceDate)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Preview
// ============================================================

func previewReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reports/preview")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxPreviewBody)
		var req domain.PreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		report, err := svc.Preview(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// ============================================================
// Metrics snapshot
// ============================================================

func reportMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetReportSnapshot())
	}
}
