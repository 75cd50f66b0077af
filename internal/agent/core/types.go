package core

import (
	"context"
	"time"
)

// Role names for the default specialist pool.
const (
	RoleResearch     = "research"
	RoleAnalysis     = "analysis"
	RolePerspective  = "perspective"
	RoleVerification = "verification"
)

// Role binds a specialist name to its instruction template. The role set is
// fixed at pipeline construction and never mutated afterwards.
type Role struct {
	Name        string `json:"name"`
	Focus       string `json:"focus"`
	Instruction string `json:"instruction"`
}

// QuestionSet holds one sub-question per role, produced once by the planner.
type QuestionSet struct {
	Questions map[string]string `json:"questions"` // role name -> question
	Roles     []string          `json:"roles"`     // construction order, for deterministic prompts
}

// Question returns the sub-question for a role.
func (qs QuestionSet) Question(role string) string {
	return qs.Questions[role]
}

// Specialist result statuses. A result is always one of these two; a failed
// specialist keeps its entry in the result map rather than removing it.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SpecialistResult is the settled outcome of one specialist call. It always
// carries the originating question; exactly one of Findings or Error is
// meaningful depending on Status.
type SpecialistResult struct {
	Role           string        `json:"role"`
	Question       string        `json:"question"`
	Status         string        `json:"status"`
	Findings       string        `json:"findings,omitempty"`
	Error          string        `json:"error,omitempty"`
	ModelUsed      string        `json:"model_used,omitempty"`
	TokensUsed     int64         `json:"tokens_used"`
	Cost           float64       `json:"cost"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Completed reports whether the specialist call returned findings.
func (r SpecialistResult) Completed() bool { return r.Status == StatusCompleted }

// Failed reports whether the specialist call ended in error.
func (r SpecialistResult) Failed() bool { return r.Status == StatusFailed }

// SynthesisOutput is the first-pass combination of all specialist findings.
type SynthesisOutput struct {
	ComprehensiveAnalysis string   `json:"comprehensive_analysis"`
	KeyInsights           []string `json:"key_insights"`
	ConfidenceScore       float64  `json:"confidence_score"` // 0.0 to 1.0
	Sources               []string `json:"sources,omitempty"`
}

// ReflectionOutput is the second-pass enhancement of the synthesis and the
// final externally visible result of a run. It shares the synthesis shape and
// replaces it wholesale; only the confidence score is post-processed.
type ReflectionOutput struct {
	ComprehensiveAnalysis string   `json:"comprehensive_analysis"`
	KeyInsights           []string `json:"key_insights"`
	ConfidenceScore       float64  `json:"confidence_score"`
	Sources               []string `json:"sources,omitempty"`

	RunID          string        `json:"run_id"`
	Query          string        `json:"query"`
	ProcessingTime time.Duration `json:"processing_time"`
	CostEstimate   float64       `json:"cost_estimate"`
	TokensUsed     int64         `json:"tokens_used"`
	ModelsUsed     []string      `json:"models_used,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// RunStatus tracks an in-flight analysis for status queries.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	Query       string    `json:"query"`
	Stage       string    `json:"stage"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Pipeline stages, in order. Failed is reachable from planning, synthesizing
// and reflecting only; specialist failures are absorbed by the executor.
const (
	StagePlanning          = "planning"
	StageParallelExecution = "parallel_execution"
	StageSynthesizing      = "synthesizing"
	StageReflecting        = "reflecting"
	StageDone              = "done"
	StageFailed            = "failed"
)

// LLMProvider is the invocation capability every stage calls. The pipeline is
// agnostic to which model or transport backs it.
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns input/output token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	Description     string  `json:"description"`
}
