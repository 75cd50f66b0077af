package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/deepdive/config"
)

// Telemetry provides monitoring and LLM cost tracking for analysis runs.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	// Per-specialist metrics
	SpecialistExecutions   map[string]int64
	SpecialistSuccessRates map[string]float64
	SpecialistAverageTimes map[string]time.Duration

	// Per-stage metrics
	StageExecutions map[string]int64
	StageFailures   map[string]int64

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// CostTracker tracks costs across models and stages.
type CostTracker struct {
	ModelCosts  map[string]float64
	StageCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// RunEvent represents one full pipeline run.
type RunEvent struct {
	ID         string
	Query      string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	Confidence float64
}

// SpecialistEvent represents one specialist execution.
type SpecialistEvent struct {
	Role       string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// StageEvent represents one sequential stage invocation (planning, synthesis,
// reflection).
type StageEvent struct {
	Stage      string
	Duration   time.Duration
	Success    bool
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			SpecialistExecutions:   make(map[string]int64),
			SpecialistSuccessRates: make(map[string]float64),
			SpecialistAverageTimes: make(map[string]time.Duration),
			StageExecutions:        make(map[string]int64),
			StageFailures:          make(map[string]int64),
			LLMRequests:            make(map[string]int64),
			LLMTokensUsed:          make(map[string]int64),
		},
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
			StageCosts: make(map[string]float64),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsReporting()
	}

	return t
}

// RecordRunEvent records a complete pipeline run.
func (t *Telemetry) RecordRunEvent(ctx context.Context, event RunEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Run Event: ID=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.ID, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordSpecialistEvent records one specialist execution.
func (t *Telemetry) RecordSpecialistEvent(ctx context.Context, event SpecialistEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.SpecialistExecutions[event.Role]++
	executions := t.metrics.SpecialistExecutions[event.Role]

	successes := t.metrics.SpecialistSuccessRates[event.Role] * float64(executions-1)
	if event.Success {
		successes += 1.0
	}
	t.metrics.SpecialistSuccessRates[event.Role] = successes / float64(executions)

	currentAvg := t.metrics.SpecialistAverageTimes[event.Role]
	if executions == 1 {
		t.metrics.SpecialistAverageTimes[event.Role] = event.Duration
	} else {
		total := currentAvg * time.Duration(executions-1)
		t.metrics.SpecialistAverageTimes[event.Role] = (total + event.Duration) / time.Duration(executions)
	}

	t.metrics.LLMRequests[event.ModelUsed]++
	t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
	t.costTracker.ModelCosts[event.ModelUsed] += event.Cost

	t.logger.Printf("Specialist Event: Role=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.Role, event.Success, event.Duration, event.Cost)
}

// RecordStageEvent records a sequential stage invocation.
func (t *Telemetry) RecordStageEvent(ctx context.Context, event StageEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StageExecutions[event.Stage]++
	if !event.Success {
		t.metrics.StageFailures[event.Stage]++
	}
	t.metrics.LLMRequests[event.ModelUsed]++
	t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
	t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
	t.costTracker.StageCosts[event.Stage] += event.Cost
}

// GetMetrics returns a metrics snapshot safe to read concurrently.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.SpecialistExecutions = copyInt64Map(t.metrics.SpecialistExecutions)
	metrics.SpecialistSuccessRates = copyFloatMap(t.metrics.SpecialistSuccessRates)
	metrics.SpecialistAverageTimes = copyDurationMap(t.metrics.SpecialistAverageTimes)
	metrics.StageExecutions = copyInt64Map(t.metrics.StageExecutions)
	metrics.StageFailures = copyInt64Map(t.metrics.StageFailures)
	metrics.LLMRequests = copyInt64Map(t.metrics.LLMRequests)
	metrics.LLMTokensUsed = copyInt64Map(t.metrics.LLMTokensUsed)
	return metrics
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  copyFloatMap(t.costTracker.ModelCosts),
		StageCosts:  copyFloatMap(t.costTracker.StageCosts),
	}
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
	StageCosts  map[string]float64
}

func (t *Telemetry) startMetricsReporting() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()
		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns,
			metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)
	}
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Runs: %d
  Successful: %d
  Failed: %d
  Average Run Time: %v
  Total Cost: $%.4f
  Total Tokens: %d

Specialist Performance:
`, metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns,
		metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)

	for role, executions := range metrics.SpecialistExecutions {
		successRate := metrics.SpecialistSuccessRates[role]
		avgTime := metrics.SpecialistAverageTimes[role]
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			role, executions, successRate*100, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	return report
}

// Shutdown logs the final performance report.
func (t *Telemetry) Shutdown() {
	t.logger.Print(t.GetPerformanceReport())
}

func copyInt64Map(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyFloatMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyDurationMap(in map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
