package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/agent/telemetry"
)

// noResultsPlaceholder stands in for a failed specialist when its findings are
// enumerated for synthesis or reflection. Failures are explicit gaps, never
// silently omitted.
const noResultsPlaceholder = "No results"

// SynthesisStage combines every specialist result, including failures, into a
// single coherent narrative with a confidence estimate.
type SynthesisStage struct {
	cfg       *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	roles     []Role
}

// NewSynthesisStage creates the first-pass combination stage.
func NewSynthesisStage(cfg *config.Config, llm LLMProvider, tele *telemetry.Telemetry, roles []Role) *SynthesisStage {
	return &SynthesisStage{
		cfg:       cfg,
		llm:       llm,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[SYNTHESIS] ", log.LstdFlags),
		roles:     roles,
	}
}

// Synthesize runs the combination call. It fails only when the capability call
// itself fails; failed specialist entries just appear as explicit gaps.
func (s *SynthesisStage) Synthesize(ctx context.Context, query string, qs QuestionSet, results map[string]SpecialistResult) (SynthesisOutput, error) {
	start := time.Now()
	model := s.cfg.LLM.Routing.ModelFor("synthesis")

	prompt := s.buildPrompt(query, qs, results)
	out, inTok, outTok, err := s.llm.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  2000,
	})
	cost := s.llm.CalculateCost(inTok, outTok, model)
	if s.telemetry != nil {
		s.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{
			Stage:      StageSynthesizing,
			Duration:   time.Since(start),
			Success:    err == nil,
			Cost:       cost,
			TokensUsed: inTok + outTok,
			ModelUsed:  model,
		})
	}
	if err != nil {
		return SynthesisOutput{}, SynthesisError{Err: err}
	}

	result := parseAnalysisOutput(out)
	s.logger.Printf("synthesized %d insights, confidence %.2f (%d tokens)", len(result.KeyInsights), result.ConfidenceScore, inTok+outTok)
	return result, nil
}

func (s *SynthesisStage) buildPrompt(query string, qs QuestionSet, results map[string]SpecialistResult) string {
	var b strings.Builder
	b.WriteString("You are a synthesis expert who combines multiple specialist outputs into one comprehensive analysis.\n\n")
	fmt.Fprintf(&b, "Original Query: %s\n\n", query)
	for _, role := range s.roles {
		res := results[role.Name]
		fmt.Fprintf(&b, "%s Question: %s\n", titleCase(role.Name), qs.Question(role.Name))
		fmt.Fprintf(&b, "%s Results: %s\n\n", titleCase(role.Name), findingsOrPlaceholder(res))
	}
	b.WriteString("Combine all perspectives into a coherent narrative, identify key insights and patterns, assess your confidence, and list the contributions you drew on.\n\n")
	b.WriteString(analysisOutputSchema)
	return b.String()
}

// analysisOutputSchema is shared by synthesis and reflection; both produce the
// same fixed-shape record.
const analysisOutputSchema = `Return ONLY strict JSON with keys:
{
  "comprehensive_analysis": string,
  "key_insights": [string],
  "confidence_score": number 0..1,
  "sources": [string]
}`

// findingsOrPlaceholder renders a settled specialist result for a prompt.
func findingsOrPlaceholder(res SpecialistResult) string {
	if res.Completed() && strings.TrimSpace(res.Findings) != "" {
		return res.Findings
	}
	return noResultsPlaceholder
}

// parseAnalysisOutput decodes the fixed-shape JSON both second-stage calls
// return. A response that is not valid JSON is still a successful capability
// call: the raw text becomes the narrative with conservative confidence.
func parseAnalysisOutput(out string) SynthesisOutput {
	var parsed SynthesisOutput
	if err := json.Unmarshal([]byte(extractFirstJSON(out)), &parsed); err != nil || strings.TrimSpace(parsed.ComprehensiveAnalysis) == "" {
		return SynthesisOutput{
			ComprehensiveAnalysis: out,
			ConfidenceScore:       0.5,
		}
	}
	parsed.ConfidenceScore = clamp01(parsed.ConfidenceScore)
	return parsed
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
