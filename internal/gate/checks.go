package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
)

// ProbeFunc queries one external collaborator and reports its health.
type ProbeFunc func(ctx context.Context) (CheckResult, error)

type probeCheck struct {
	name string
	fn   ProbeFunc
}

// NewProbeCheck adapts an external collaborator's probe into a gate check.
func NewProbeCheck(name string, fn ProbeFunc) Check {
	return &probeCheck{name: name, fn: fn}
}

func (c *probeCheck) Name() string { return c.name }

func (c *probeCheck) Run(ctx context.Context) (CheckResult, error) {
	return c.fn(ctx)
}

// NewTrackerEndpointCheck probes the error tracker's ingest endpoint. An
// unreachable tracker is a release blocker: crash telemetry would be blind.
func NewTrackerEndpointCheck(endpoint string, client *http.Client) Check {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}

	return NewProbeCheck("tracker-endpoint", func(ctx context.Context) (CheckResult, error) {
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return CheckResult{}, fmt.Errorf("malformed tracker endpoint: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return CheckResult{}, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return CheckResult{}, fmt.Errorf("tracker unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return CheckResult{
				Score: 30,
				Findings: []Finding{{
					Severity:       SeverityHigh,
					Message:        fmt.Sprintf("tracker endpoint returned %d", resp.StatusCode),
					Recommendation: "check error-tracker service status before releasing",
				}},
			}, nil
		}

		return CheckResult{Score: 100}, nil
	})
}

// NewTrackerQuotaCheck audits telemetry spend headroom. Releasing while the
// quota is nearly exhausted risks dropping the release's own diagnostics.
func NewTrackerQuotaCheck(cost func(ctx context.Context) (slo.CostUtilization, error)) Check {
	return NewProbeCheck("tracker-quota", func(ctx context.Context) (CheckResult, error) {
		c, err := cost(ctx)
		if err != nil {
			return CheckResult{}, fmt.Errorf("quota lookup failed: %w", err)
		}

		switch {
		case c.MonthlyUtilization >= 0.95:
			return CheckResult{
				Score: 40,
				Findings: []Finding{{
					Severity:       SeverityHigh,
					Message:        fmt.Sprintf("telemetry quota at %.0f%% of monthly budget", c.MonthlyUtilization*100),
					Recommendation: "raise the quota or lower the base sample rate before releasing",
				}},
			}, nil
		case c.MonthlyUtilization >= 0.8:
			return CheckResult{
				Score: 75,
				Findings: []Finding{{
					Severity:       SeverityMedium,
					Message:        fmt.Sprintf("telemetry quota at %.0f%% of monthly budget", c.MonthlyUtilization*100),
					Recommendation: "monitor ingestion for the first hours after release",
				}},
			}, nil
		default:
			return CheckResult{Score: 100}, nil
		}
	})
}

// NewConfigCheck validates the injected control-plane configuration.
func NewConfigCheck(validate func() error) Check {
	return NewProbeCheck("config-validation", func(ctx context.Context) (CheckResult, error) {
		if err := validate(); err != nil {
			return CheckResult{
				Score: 0,
				Findings: []Finding{{
					Severity:       SeverityCritical,
					Message:        fmt.Sprintf("configuration invalid: %v", err),
					Recommendation: "fix the configuration; releasing with bad thresholds disables the control loop",
				}},
			}, nil
		}
		return CheckResult{Score: 100}, nil
	})
}

// NewLoggingHealthCheck inspects the log-sink circuit breaker and local
// buffer depth, feeding resilience state into the gate verdict.
func NewLoggingHealthCheck(breakers *resilience.Registry, resource string, buffered func() int, bufferCap int) Check {
	return NewProbeCheck("logging-health", func(ctx context.Context) (CheckResult, error) {
		snap := breakers.Get(resource).Snapshot()

		switch snap.State {
		case resilience.StateOpen:
			return CheckResult{
				Score: 30,
				Findings: []Finding{{
					Severity:       SeverityHigh,
					Message:        fmt.Sprintf("log sink breaker open, retrying at %s", snap.NextRetryAt.Format(time.RFC3339)),
					Recommendation: "restore the log sink; decisions are buffering locally",
				}},
			}, nil
		case resilience.StateHalfOpen:
			return CheckResult{
				Score: 70,
				Findings: []Finding{{
					Severity:       SeverityMedium,
					Message:        "log sink breaker half-open, recovery unconfirmed",
					Recommendation: "wait for the breaker to close before releasing",
				}},
			}, nil
		}

		if bufferCap > 0 && buffered != nil {
			if depth := buffered(); depth*100 >= bufferCap*80 {
				return CheckResult{
					Score: 60,
					Findings: []Finding{{
						Severity:       SeverityMedium,
						Message:        fmt.Sprintf("log buffer at %d of %d entries", depth, bufferCap),
						Recommendation: "drain the local buffer before it overflows",
					}},
				}, nil
			}
		}

		return CheckResult{Score: 100}, nil
	})
}
