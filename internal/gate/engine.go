package gate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// Verdict confidences are fixed by the decision rule, not computed.
const (
	confidenceBlock   = 0.95
	confidenceWarning = 0.75
	confidenceProceed = 0.9
)

// EngineConfig controls check dispatch and the decision rule.
type EngineConfig struct {
	// CheckTimeout bounds each check individually. Default 5s.
	CheckTimeout time.Duration

	// StrictMode escalates P1 findings from warning to block.
	StrictMode bool

	// Sequential disables concurrent dispatch. Output is identical either
	// way: results are merged by check index, not arrival order.
	Sequential bool
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	return c
}

// Engine runs the configured checks and aggregates their findings into a
// single prioritized verdict. It keeps no state across runs; a dependency
// failure inside a check degrades the answer, it never escapes as an error.
type Engine struct {
	cfg    EngineConfig
	log    *logger.Logger
	checks []Check
}

// NewEngine builds an engine over a fixed check set.
func NewEngine(cfg EngineConfig, log *logger.Logger, checks ...Check) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		log:    log,
		checks: checks,
	}
}

// Run executes every check and returns the aggregated gate result.
func (e *Engine) Run(ctx context.Context) *Result {
	started := time.Now()

	results := make([]CheckResult, len(e.checks))
	if e.cfg.Sequential {
		for i, check := range e.checks {
			results[i] = e.runCheck(ctx, check)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(e.checks))
		for i, check := range e.checks {
			go func(slot int, c Check) {
				defer wg.Done()
				results[slot] = e.runCheck(ctx, c)
			}(i, check)
		}
		wg.Wait()
	}

	result := aggregate(results, e.cfg.StrictMode)
	result.GeneratedAt = started
	result.Duration = time.Since(started)

	e.log.Info("Gate run completed",
		"run_id", result.RunID,
		"score", result.OverallScore,
		"grade", result.Grade,
		"recommendation", string(result.Recommendation),
		"p0", len(result.Issues[P0]),
		"p1", len(result.Issues[P1]),
	)

	return result
}

// runCheck races the check against its timeout. A timed-out, failed or
// panicking check scores 0 and records a synthetic P0 finding; it is never a
// silent omission. A late result from an abandoned check is discarded.
func (e *Engine) runCheck(ctx context.Context, check Check) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, e.cfg.CheckTimeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("check panicked: %v", r)
			}
		}()

		res, err := check.Run(checkCtx)
		if err != nil {
			errCh <- err
			return
		}
		res.Name = check.Name()
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case err := <-errCh:
		e.log.Warn("Gate check failed", "check", check.Name(), "error", err.Error())
		return failedCheck(check.Name(), err)
	case <-checkCtx.Done():
		e.log.Warn("Gate check timed out", "check", check.Name(), "timeout", e.cfg.CheckTimeout.String())
		return failedCheck(check.Name(), checkCtx.Err())
	}
}

// failedCheck is the synthetic result for an unavailable subsystem.
func failedCheck(name string, cause error) CheckResult {
	return CheckResult{
		Name:  name,
		Score: 0,
		Findings: []Finding{{
			Severity:       SeverityCritical,
			Message:        fmt.Sprintf("%s check failed: %v", name, cause),
			Recommendation: "investigate the unavailable subsystem before releasing",
		}},
	}
}

// aggregate buckets findings by priority, averages scores and applies the
// decision rule.
func aggregate(results []CheckResult, strict bool) *Result {
	issues := map[Priority][]Finding{P0: {}, P1: {}, P2: {}}

	total := 0
	for _, res := range results {
		total += res.Score
		for _, finding := range res.Findings {
			p := finding.Severity.Priority()
			issues[p] = append(issues[p], finding)
		}
	}

	score := 0
	if len(results) > 0 {
		score = int(math.Round(float64(total) / float64(len(results))))
	}

	recommendation, confidence := decide(len(issues[P0]), len(issues[P1]), strict)

	return &Result{
		RunID:          uuid.New().String(),
		OverallScore:   score,
		Grade:          gradeFor(score),
		Recommendation: recommendation,
		Confidence:     confidence,
		Issues:         issues,
		Checks:         results,
	}
}

// decide applies the verdict rule: any P0 blocks; P1 warns, or blocks in
// strict mode; otherwise proceed.
func decide(p0, p1 int, strict bool) (Recommendation, float64) {
	switch {
	case p0 > 0 || (strict && p1 > 0):
		return RecommendBlock, confidenceBlock
	case p1 > 0:
		return RecommendWarning, confidenceWarning
	default:
		return RecommendProceed, confidenceProceed
	}
}
