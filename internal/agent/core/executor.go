package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var executorTracer trace.Tracer = otel.Tracer("deepdive/internal/agent/executor")

// ParallelExecutor runs every specialist concurrently and settles all of them
// before returning. A failed call becomes a Failed result in the mapping; it
// never aborts the other specialists or the run.
type ParallelExecutor struct {
	cfg       *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	roles     []Role
}

// NewParallelExecutor creates an executor over an immutable role set.
func NewParallelExecutor(cfg *config.Config, llm LLMProvider, tele *telemetry.Telemetry, roles []Role) *ParallelExecutor {
	return &ParallelExecutor{
		cfg:       cfg,
		llm:       llm,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
		roles:     roles,
	}
}

// Execute fans out one specialist call per role. The returned mapping always
// contains an entry for every role, completed or failed. There is no early
// exit: the executor waits for every task to settle.
func (e *ParallelExecutor) Execute(ctx context.Context, query string, qs QuestionSet, reporter ProgressReporter) map[string]SpecialistResult {
	results := make(map[string]SpecialistResult, len(e.roles))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, role := range e.roles {
		wg.Add(1)
		go func(r Role) {
			defer wg.Done()
			res := e.runSpecialist(ctx, r, query, qs.Question(r.Name), reporter)
			mu.Lock()
			results[r.Name] = res
			mu.Unlock()
		}(role)
	}
	wg.Wait()

	return results
}

func (e *ParallelExecutor) runSpecialist(ctx context.Context, role Role, query, question string, reporter ProgressReporter) SpecialistResult {
	start := time.Now()
	taskCtx, span := executorTracer.Start(ctx, "specialist.execute",
		trace.WithAttributes(attribute.String("specialist.role", role.Name)))
	defer span.End()

	if timeout := e.cfg.Pipeline.SpecialistTimeout; timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, timeout)
		defer cancel()
	}

	report(reporter, SpecialistEventType(role.Name, PhaseStarted), role.Name+" analyzing...")

	model := e.cfg.LLM.Routing.ModelFor("specialist")
	prompt := specialistPrompt(role, query, question)
	out, inTok, outTok, err := e.llm.GenerateWithTokens(taskCtx, prompt, model, map[string]interface{}{
		"temperature": 0.4,
		"max_tokens":  1200,
	})

	result := SpecialistResult{
		Role:           role.Name,
		Question:       question,
		ModelUsed:      model,
		TokensUsed:     inTok + outTok,
		Cost:           e.llm.CalculateCost(inTok, outTok, model),
		ProcessingTime: time.Since(start),
	}
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		report(reporter, SpecialistEventType(role.Name, PhaseFailed), err.Error())
		e.logger.Printf("%s specialist failed after %v: %v", role.Name, result.ProcessingTime, err)
	} else {
		result.Status = StatusCompleted
		result.Findings = out
		span.SetStatus(codes.Ok, "completed")
		report(reporter, SpecialistEventType(role.Name, PhaseCompleted), role.Name+" completed")
		e.logger.Printf("%s specialist completed in %v (%d tokens)", role.Name, result.ProcessingTime, result.TokensUsed)
	}
	span.SetAttributes(
		attribute.Bool("specialist.success", result.Completed()),
		attribute.Int64("specialist.tokens", result.TokensUsed),
		attribute.Float64("specialist.cost_usd", result.Cost),
	)

	if e.telemetry != nil {
		e.telemetry.RecordSpecialistEvent(taskCtx, telemetry.SpecialistEvent{
			Role:       role.Name,
			Duration:   result.ProcessingTime,
			Success:    result.Completed(),
			Error:      result.Error,
			Cost:       result.Cost,
			TokensUsed: result.TokensUsed,
			ModelUsed:  model,
		})
	}
	return result
}
