package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skyoxu/myguild-sub003/internal/application/usecase"
	"github.com/skyoxu/myguild-sub003/internal/domain/sampling"
	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/infrastructure/collector"
	wsInfra "github.com/skyoxu/myguild-sub003/internal/infrastructure/notification/websocket"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/handler"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// staticProvider keeps API tests independent of host readings.
type staticProvider struct {
	snapshot slo.MetricSnapshot
	cost     slo.CostUtilization
}

func (p *staticProvider) Snapshot(ctx context.Context) (slo.MetricSnapshot, error) {
	return p.snapshot, nil
}

func (p *staticProvider) Cost(ctx context.Context) (slo.CostUtilization, error) {
	return p.cost, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *resilience.Orchestrator) {
	t.Helper()

	log := logger.New("error")

	breakers := resilience.NewRegistry(resilience.BreakerConfig{})
	orch := resilience.NewOrchestrator(resilience.OrchestratorConfig{RetryBaseDelay: 1}, breakers, log)
	t.Cleanup(orch.Close)
	orch.RegisterAction(resilience.FailureUnknown,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			return nil
		}))

	controller, err := sampling.NewController(slo.DefaultTargets(), sampling.DefaultStrategy())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	signals := collector.NewSignalStore()
	provider := &staticProvider{
		snapshot: slo.MetricSnapshot{
			UIResponseTimeMs:       50,
			EventProcessingDelayMs: 20,
			CrashFreeSessionsPct:   99.9,
			MemoryUsageMb:          256,
			CPUUsagePct:            20,
		},
		cost: slo.CostUtilization{MonthlyUtilization: 0.3},
	}

	samplingUC := usecase.NewEvaluateSamplingUseCase(
		provider, controller, nil, nil, nil, orch, slo.EnvProduction, log)

	engine := gate.NewEngine(gate.EngineConfig{}, log,
		gate.NewConfigCheck(func() error { return nil }),
	)
	gateUC := usecase.NewRunGateUseCase(engine, nil, nil, nil, nil, nil, nil, log)
	runner := gate.NewRunner(gateUC, log, time.Minute)

	hub := wsInfra.NewHub(log)
	go hub.Run()

	router := NewRouter(
		handler.NewOpsHandler(orch, samplingUC, controller, signals, log),
		handler.NewGateAPIHandler(runner, log),
		handler.NewWebSocketHandler(hub, []string{"*"}, log),
		nil,
		log,
	)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)

	return server, orch
}

func getJSON(t *testing.T, url string, dest interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	var health resilience.SystemHealth
	if status := getJSON(t, server.URL+"/api/v1/ops/health", &health); status != http.StatusOK {
		t.Fatalf("/api/v1/ops/health status = %d", status)
	}
	if health.OverallStatus != resilience.StatusHealthy {
		t.Errorf("overall status = %s, want healthy", health.OverallStatus)
	}
}

func TestSamplingDecisionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	var decision sampling.Decision
	if status := getJSON(t, server.URL+"/api/v1/ops/sampling/decision", &decision); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	if decision.Rate < sampling.MinRate || decision.Rate > sampling.MaxRate {
		t.Errorf("rate %v outside bounds", decision.Rate)
	}
	if decision.SLOScore != 100 {
		t.Errorf("slo score = %d, want 100", decision.SLOScore)
	}

	// Critical transaction floors the rate.
	if status := getJSON(t, server.URL+"/api/v1/ops/sampling/decision?transaction=guild.battle.resolve", &decision); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !decision.CriticalOverride {
		t.Error("expected critical override")
	}
}

func TestFailureReportEndpoint(t *testing.T) {
	server, orch := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/ops/failures",
		`{"type":"unknown_error","component":"test-component","detail":"boom"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var failure resilience.ActiveFailure
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !failure.Resolved {
		t.Error("expected failure resolved by the registered action")
	}

	if len(orch.Health().ActiveFailures) == 0 {
		t.Error("failure not tracked by the orchestrator")
	}

	// Types outside the taxonomy are the caller's bug.
	resp = postJSON(t, server.URL+"/api/v1/ops/failures",
		`{"type":"gremlins","component":"test-component"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/api/v1/ops/failures", `{"type":"unknown_error"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing component status = %d, want 400", resp.StatusCode)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/ops/signals",
		`{"signals":{"ui_response_time_ms":120,"event_processing_delay_ms":40,"crash_free_sessions_pct":99.2},"cost":{"monthly_utilization":0.6}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/api/v1/ops/signals", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestStrategyUpdateEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	body := `{"base_sample_rate":0.2,"environment_multipliers":{"production":1.0},"critical_transactions":["checkout"],"critical_min_rate":0.6}`
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/ops/sampling/strategy", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Invalid strategies are rejected without replacing the active one.
	bad := `{"base_sample_rate":2.0,"environment_multipliers":{"production":1.0},"critical_min_rate":0.6}`
	req, _ = http.NewRequest(http.MethodPut, server.URL+"/api/v1/ops/sampling/strategy", strings.NewReader(bad))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid strategy status = %d, want 400", resp.StatusCode)
	}
}

func TestGateEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/gate/run", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/v1/gate/run status = %d", resp.StatusCode)
	}

	var result gate.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Recommendation != gate.RecommendProceed {
		t.Errorf("recommendation = %s, want proceed", result.Recommendation)
	}

	var snapshot gate.Snapshot
	if status := getJSON(t, server.URL+"/api/v1/gate/summary", &snapshot); status != http.StatusOK {
		t.Fatalf("/api/v1/gate/summary status = %d", status)
	}
	if snapshot.LastResult == nil {
		t.Error("summary missing last result")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/ops/health", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST health status = %d, want 405", resp.StatusCode)
	}

	resp2, err := http.Get(server.URL + "/api/v1/gate/run")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET gate run status = %d, want 405", resp2.StatusCode)
	}
}
