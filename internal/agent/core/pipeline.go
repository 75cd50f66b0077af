package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var pipelineTracer trace.Tracer = otel.Tracer("deepdive/internal/agent/pipeline")

// Pipeline coordinates the full multi-stage analysis: question decomposition,
// bounded parallel specialist execution, synthesis, and reflection. Each run
// is independent; nothing is shared across queries except the configuration
// and the provider.
type Pipeline struct {
	cfg       *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	llm       LLMProvider
	roles     []Role

	planner    *QuestionPlanner
	executor   *ParallelExecutor
	synthesis  *SynthesisStage
	reflection *ReflectionStage

	// in-flight run tracking
	running map[string]*RunStatus
	mu      sync.RWMutex

	// bounds concurrent analyses, not the specialist fan-out inside one
	semaphore chan struct{}
}

// NewPipeline builds a pipeline with the default role set and an LLM provider
// created from configuration.
func NewPipeline(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry) (*Pipeline, error) {
	llm, err := NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return NewPipelineWithProvider(cfg, logger, tele, llm, RolesFromConfig(cfg))
}

// NewPipelineWithProvider wires explicit dependencies; tests use it to
// substitute fake providers and role sets.
func NewPipelineWithProvider(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, llm LLMProvider, roles []Role) (*Pipeline, error) {
	if err := ValidateRoles(roles); err != nil {
		return nil, fmt.Errorf("invalid role set: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	maxRuns := cfg.Pipeline.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 4
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		telemetry:  tele,
		llm:        llm,
		roles:      roles,
		planner:    NewQuestionPlanner(cfg, llm, tele, roles),
		executor:   NewParallelExecutor(cfg, llm, tele, roles),
		synthesis:  NewSynthesisStage(cfg, llm, tele, roles),
		reflection: NewReflectionStage(cfg, llm, tele, roles),
		running:    make(map[string]*RunStatus),
		semaphore:  make(chan struct{}, maxRuns),
	}, nil
}

// RolesFromConfig applies configured instruction overrides to DefaultRoles.
func RolesFromConfig(cfg *config.Config) []Role {
	roles := DefaultRoles()
	for i, r := range roles {
		if ov, ok := cfg.Pipeline.Roles[r.Name]; ok {
			if ov.Instruction != "" {
				roles[i].Instruction = ov.Instruction
			}
			if ov.Focus != "" {
				roles[i].Focus = ov.Focus
			}
		}
	}
	return roles
}

// Roles returns the pipeline's immutable role set.
func (p *Pipeline) Roles() []Role {
	out := make([]Role, len(p.roles))
	copy(out, p.roles)
	return out
}

// RunAnalysis executes the whole pipeline for one query. The reporter may be
// nil. The caller receives either a complete ReflectionOutput or one terminal
// error; individual specialist failures surface only through reduced
// confidence and progress events.
func (p *Pipeline) RunAnalysis(ctx context.Context, query string, reporter ProgressReporter) (ReflectionOutput, error) {
	return p.RunAnalysisWithID(ctx, uuid.NewString(), query, reporter)
}

// RunAnalysisWithID is RunAnalysis with a caller-chosen run ID, so callers that
// archive or stream a run can know its ID before the pipeline finishes.
func (p *Pipeline) RunAnalysisWithID(ctx context.Context, runID, query string, reporter ProgressReporter) (ReflectionOutput, error) {
	startTime := time.Now()

	ctx, span := pipelineTracer.Start(ctx, "pipeline.run_analysis",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	status := &RunStatus{
		RunID:       runID,
		Query:       query,
		Stage:       StagePlanning,
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}
	p.mu.Lock()
	p.running[runID] = status
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, runID)
		p.mu.Unlock()
	}()

	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return ReflectionOutput{}, ctx.Err()
	}

	runEvent := telemetry.RunEvent{ID: runID, Query: query, StartTime: startTime}
	defer func() {
		runEvent.EndTime = time.Now()
		runEvent.Duration = runEvent.EndTime.Sub(runEvent.StartTime)
		if p.telemetry != nil {
			p.telemetry.RecordRunEvent(ctx, runEvent)
		}
	}()

	p.logger.Printf("starting analysis %s", runID)

	// Stage 1: question decomposition
	report(reporter, EventQuestionGeneration, "Generating specialized research questions...")
	qs, err := p.planner.Plan(ctx, query)
	if err != nil {
		return ReflectionOutput{}, p.fail(span, status, &runEvent, err)
	}
	report(reporter, EventQuestionsGenerated, qs)
	span.AddEvent("questions.generated", trace.WithAttributes(attribute.Int("question_count", len(qs.Questions))))

	// Stage 2: parallel specialists. Failures here are absorbed into the
	// result mapping; this stage cannot fail the run.
	p.updateStatus(status, StageParallelExecution, "")
	report(reporter, EventParallelExecution, "Starting parallel specialist execution...")
	results := p.executor.Execute(ctx, query, qs, reporter)

	var totalCost float64
	var totalTokens int64
	modelSet := map[string]bool{}
	var modelsUsed []string
	for _, res := range results {
		totalCost += res.Cost
		totalTokens += res.TokensUsed
		if res.ModelUsed != "" && !modelSet[res.ModelUsed] {
			modelSet[res.ModelUsed] = true
			modelsUsed = append(modelsUsed, res.ModelUsed)
		}
	}

	// Stage 3: synthesis
	p.updateStatus(status, StageSynthesizing, "")
	report(reporter, EventSynthesis, "Synthesizing comprehensive analysis...")
	synthesized, err := p.synthesis.Synthesize(ctx, query, qs, results)
	if err != nil {
		return ReflectionOutput{}, p.fail(span, status, &runEvent, err)
	}

	// Stage 4: deep reflection. Replaces the synthesis output wholesale.
	p.updateStatus(status, StageReflecting, "")
	report(reporter, EventDeepReflection, "Deep reflection and insights enhancement...")
	enhanced, err := p.reflection.Reflect(ctx, query, synthesized, results)
	if err != nil {
		return ReflectionOutput{}, p.fail(span, status, &runEvent, err)
	}

	final := ReflectionOutput{
		ComprehensiveAnalysis: enhanced.ComprehensiveAnalysis,
		KeyInsights:           enhanced.KeyInsights,
		ConfidenceScore:       enhanced.ConfidenceScore,
		Sources:               enhanced.Sources,
		RunID:                 runID,
		Query:                 query,
		ProcessingTime:        time.Since(startTime),
		CostEstimate:          totalCost,
		TokensUsed:            totalTokens,
		ModelsUsed:            modelsUsed,
		CreatedAt:             time.Now(),
	}

	p.updateStatus(status, StageDone, "")
	report(reporter, EventComplete, final)

	runEvent.Success = true
	runEvent.Cost = totalCost
	runEvent.TokensUsed = totalTokens
	runEvent.Confidence = final.ConfidenceScore
	span.SetAttributes(
		attribute.Float64("run.cost_usd", totalCost),
		attribute.Int64("run.tokens", totalTokens),
		attribute.Float64("run.confidence", final.ConfidenceScore),
	)
	span.SetStatus(codes.Ok, "completed")
	p.logger.Printf("completed analysis %s in %v", runID, time.Since(startTime))

	return final, nil
}

// GetStatus returns the current stage of an in-flight run.
func (p *Pipeline) GetStatus(runID string) (RunStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status, ok := p.running[runID]
	if !ok {
		return RunStatus{}, fmt.Errorf("run not found: %s", runID)
	}
	return *status, nil
}

func (p *Pipeline) fail(span trace.Span, status *RunStatus, runEvent *telemetry.RunEvent, err error) error {
	p.updateStatus(status, StageFailed, err.Error())
	runEvent.Success = false
	runEvent.Error = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Printf("analysis %s failed: %v", status.RunID, err)
	return err
}

func (p *Pipeline) updateStatus(status *RunStatus, stage, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status.Stage = stage
	status.Error = errMsg
	status.LastUpdated = time.Now()
}
