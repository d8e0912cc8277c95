package slo

import "time"

// MetricSnapshot is a point-in-time capture of the client runtime's
// performance signals. Immutable once produced by the collector.
type MetricSnapshot struct {
	UIResponseTimeMs       float64   `json:"ui_response_time_ms"`
	EventProcessingDelayMs float64   `json:"event_processing_delay_ms"`
	CrashFreeSessionsPct   float64   `json:"crash_free_sessions_pct"`
	MemoryUsageMb          float64   `json:"memory_usage_mb"`
	CPUUsagePct            float64   `json:"cpu_usage_pct"`
	CollectedAt            time.Time `json:"collected_at"`
}

// CostUtilization describes telemetry spend relative to the monthly quota.
type CostUtilization struct {
	MonthlyUtilization float64 `json:"monthly_utilization"` // fraction of budget consumed, [0,1]
	DailyEventCount    int64   `json:"daily_event_count"`
	DataIngestionGb    float64 `json:"data_ingestion_gb"`
}

// Environment identifies the deployment environment a decision applies to.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
)

// Valid reports whether the environment tag is one of the known values.
func (e Environment) Valid() bool {
	switch e {
	case EnvProduction, EnvStaging, EnvDevelopment:
		return true
	default:
		return false
	}
}

func (e Environment) String() string {
	return string(e)
}
