package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ReportMetrics is returned by GET /v1/metrics/reports.
type ReportMetrics struct {
	TotalRequests      int64   `json:"totalRequests"`
	ErrorRate          float64 `json:"errorRate"`
	CacheHitRate       float64 `json:"cacheHitRate"`
	OrphanedTotal      int64   `json:"orphanedTransactions"`
	StoreErrors        int64   `json:"storeErrors"`
	AvgBucketsPerBuild float64 `json:"avgBucketsPerBuild"`
	Period             string  `json:"period"`
}
