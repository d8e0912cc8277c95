package config

import (
	"testing"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("server port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Control.Environment != slo.EnvProduction {
		t.Errorf("environment = %s, want production", cfg.Control.Environment)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("failure threshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Sampling.BaseSampleRate != 0.1 {
		t.Errorf("base sample rate = %v, want 0.1", cfg.Sampling.BaseSampleRate)
	}
	if len(cfg.Sampling.CriticalTransactions) != 3 {
		t.Errorf("critical transactions = %v", cfg.Sampling.CriticalTransactions)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("CONTROL_ENVIRONMENT", "qa")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestLoadRejectsOutOfRangeSampleRate(t *testing.T) {
	t.Setenv("SAMPLING_BASE_RATE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for base rate above 1.0")
	}
}

func TestLoadRejectsMalformedInterval(t *testing.T) {
	t.Setenv("CONTROL_EVALUATION_INTERVAL", "fast")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed interval")
	}
}

func TestToStrategyOverrides(t *testing.T) {
	t.Setenv("SAMPLING_BASE_RATE", "0.2")
	t.Setenv("SAMPLING_CRITICAL_TRANSACTIONS", "payment.checkout")
	t.Setenv("SAMPLING_CRITICAL_MIN_RATE", "0.8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	strategy := cfg.ToStrategy()
	if strategy.BaseSampleRate != 0.2 {
		t.Errorf("base rate = %v, want 0.2", strategy.BaseSampleRate)
	}
	if len(strategy.CriticalTransactions) != 1 || strategy.CriticalTransactions[0] != "payment.checkout" {
		t.Errorf("critical transactions = %v", strategy.CriticalTransactions)
	}
	if strategy.CriticalMinRate != 0.8 {
		t.Errorf("critical min rate = %v, want 0.8", strategy.CriticalMinRate)
	}
	// Environment multipliers stay at their defaults.
	if strategy.EnvironmentMultipliers[slo.EnvProduction] != 1.0 {
		t.Errorf("production multiplier = %v, want 1.0", strategy.EnvironmentMultipliers[slo.EnvProduction])
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"plain", "a,b,c", 3},
		{"spaces", " a , b ", 2},
		{"empty", "", 0},
		{"trailing comma", "a,", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitCSV(tt.raw); len(got) != tt.want {
				t.Errorf("splitCSV(%q) = %v, want %d items", tt.raw, got, tt.want)
			}
		})
	}
}
