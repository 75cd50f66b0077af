package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepdive/config"
)

func enabledConfig() config.TelemetryConfig {
	return config.TelemetryConfig{Enabled: true, CostTracking: true}
}

func TestRecordRunEventAggregates(t *testing.T) {
	tele := NewTelemetry(enabledConfig())
	ctx := context.Background()

	tele.RecordRunEvent(ctx, RunEvent{ID: "r1", Success: true, Duration: 2 * time.Second, Cost: 0.25, TokensUsed: 1000})
	tele.RecordRunEvent(ctx, RunEvent{ID: "r2", Success: false, Duration: 4 * time.Second, Cost: 0.5, TokensUsed: 500})

	m := tele.GetMetrics()
	if m.TotalRuns != 2 || m.SuccessfulRuns != 1 || m.FailedRuns != 1 {
		t.Fatalf("run counts: total=%d ok=%d failed=%d", m.TotalRuns, m.SuccessfulRuns, m.FailedRuns)
	}
	if m.AverageRunTime != 3*time.Second {
		t.Fatalf("average run time = %v", m.AverageRunTime)
	}
	costs := tele.GetCostSummary()
	if costs.TotalCost != 0.75 || costs.TotalTokens != 1500 {
		t.Fatalf("cost summary: $%.4f, %d tokens", costs.TotalCost, costs.TotalTokens)
	}
}

func TestRecordSpecialistEventTracksRates(t *testing.T) {
	tele := NewTelemetry(enabledConfig())
	ctx := context.Background()

	tele.RecordSpecialistEvent(ctx, SpecialistEvent{Role: "research", Success: true, Duration: time.Second, ModelUsed: "gpt-4o-mini", TokensUsed: 200, Cost: 0.002})
	tele.RecordSpecialistEvent(ctx, SpecialistEvent{Role: "research", Success: false, Duration: 3 * time.Second, ModelUsed: "gpt-4o-mini", TokensUsed: 100, Cost: 0.001})

	m := tele.GetMetrics()
	if m.SpecialistExecutions["research"] != 2 {
		t.Fatalf("executions = %d", m.SpecialistExecutions["research"])
	}
	if m.SpecialistSuccessRates["research"] != 0.5 {
		t.Fatalf("success rate = %f", m.SpecialistSuccessRates["research"])
	}
	if m.SpecialistAverageTimes["research"] != 2*time.Second {
		t.Fatalf("average time = %v", m.SpecialistAverageTimes["research"])
	}
	if m.LLMTokensUsed["gpt-4o-mini"] != 300 {
		t.Fatalf("tokens = %d", m.LLMTokensUsed["gpt-4o-mini"])
	}
}

func TestRecordDisabledIsNoop(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: false})
	tele.RecordRunEvent(context.Background(), RunEvent{ID: "r1", Success: true})
	if m := tele.GetMetrics(); m.TotalRuns != 0 {
		t.Fatalf("disabled telemetry recorded a run")
	}
}

func TestPerformanceReportContents(t *testing.T) {
	tele := NewTelemetry(enabledConfig())
	ctx := context.Background()
	tele.RecordRunEvent(ctx, RunEvent{ID: "r1", Success: true, Duration: time.Second, Cost: 0.05, TokensUsed: 2000})
	tele.RecordSpecialistEvent(ctx, SpecialistEvent{Role: "verification", Success: true, Duration: time.Second, ModelUsed: "gpt-4o", TokensUsed: 400, Cost: 0.01})

	report := tele.GetPerformanceReport()
	for _, want := range []string{"Total Runs: 1", "verification", "gpt-4o", "$0.0500"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}
