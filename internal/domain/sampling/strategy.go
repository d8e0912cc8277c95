package sampling

import (
	"fmt"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

// Bounds every computed rate is clamped to.
const (
	MinRate = 0.01
	MaxRate = 1.0
)

// Strategy is the mutable sampling configuration. The controller owns the
// active copy; updates replace the whole structure atomically.
type Strategy struct {
	BaseSampleRate         float64                     `json:"base_sample_rate"`
	EnvironmentMultipliers map[slo.Environment]float64 `json:"environment_multipliers"`
	CriticalTransactions   []string                    `json:"critical_transactions"`
	CriticalMinRate        float64                     `json:"critical_min_rate"`
}

// DefaultStrategy returns the stock strategy: conservative in production,
// oversampled in pre-production environments.
func DefaultStrategy() Strategy {
	return Strategy{
		BaseSampleRate: 0.1,
		EnvironmentMultipliers: map[slo.Environment]float64{
			slo.EnvProduction:  1.0,
			slo.EnvStaging:     3.0,
			slo.EnvDevelopment: 10.0,
		},
		CriticalTransactions: []string{"ai.decision", "guild.battle", "app.startup"},
		CriticalMinRate:      0.5,
	}
}

// Validate rejects malformed strategies before they can replace the active one.
func (s Strategy) Validate() error {
	if s.BaseSampleRate < MinRate || s.BaseSampleRate > MaxRate {
		return fmt.Errorf("base sample rate %g outside [%g,%g]", s.BaseSampleRate, MinRate, MaxRate)
	}

	if s.CriticalMinRate < MinRate || s.CriticalMinRate > MaxRate {
		return fmt.Errorf("critical min rate %g outside [%g,%g]", s.CriticalMinRate, MinRate, MaxRate)
	}

	if len(s.EnvironmentMultipliers) == 0 {
		return fmt.Errorf("environment multipliers cannot be empty")
	}

	for env, mult := range s.EnvironmentMultipliers {
		if !env.Valid() {
			return fmt.Errorf("unknown environment %q in multipliers", env)
		}
		if mult <= 0 {
			return fmt.Errorf("environment multiplier for %q must be positive, got %g", env, mult)
		}
	}

	return nil
}

// clone returns a deep copy so callers can never mutate the active strategy.
func (s Strategy) clone() Strategy {
	c := s
	c.EnvironmentMultipliers = make(map[slo.Environment]float64, len(s.EnvironmentMultipliers))
	for env, mult := range s.EnvironmentMultipliers {
		c.EnvironmentMultipliers[env] = mult
	}
	c.CriticalTransactions = append([]string(nil), s.CriticalTransactions...)
	return c
}
