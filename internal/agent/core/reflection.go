package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/agent/telemetry"
)

// reflectionConfidenceBoost is added to the reflected confidence score and the
// sum clamped to 1.0, so reflection never reports less confidence than the
// value the reflection call itself returned.
const reflectionConfidenceBoost = 0.1

// ReflectionStage re-presents the synthesis together with the raw specialist
// outputs and asks for a deeper second pass. Its output replaces the synthesis
// wholesale; only the confidence score is post-processed.
type ReflectionStage struct {
	cfg       *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	roles     []Role
}

// NewReflectionStage creates the second-pass enhancement stage.
func NewReflectionStage(cfg *config.Config, llm LLMProvider, tele *telemetry.Telemetry, roles []Role) *ReflectionStage {
	return &ReflectionStage{
		cfg:       cfg,
		llm:       llm,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[REFLECTION] ", log.LstdFlags),
		roles:     roles,
	}
}

// Reflect runs the enhancement call. A capability failure here is terminal;
// there is no fallback to the pre-reflection synthesis.
func (r *ReflectionStage) Reflect(ctx context.Context, query string, synthesis SynthesisOutput, results map[string]SpecialistResult) (SynthesisOutput, error) {
	start := time.Now()
	model := r.cfg.LLM.Routing.ModelFor("reflection")

	prompt := r.buildPrompt(query, synthesis, results)
	out, inTok, outTok, err := r.llm.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.4,
		"max_tokens":  2400,
	})
	cost := r.llm.CalculateCost(inTok, outTok, model)
	if r.telemetry != nil {
		r.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{
			Stage:      StageReflecting,
			Duration:   time.Since(start),
			Success:    err == nil,
			Cost:       cost,
			TokensUsed: inTok + outTok,
			ModelUsed:  model,
		})
	}
	if err != nil {
		return SynthesisOutput{}, ReflectionError{Err: err}
	}

	enhanced := parseAnalysisOutput(out)
	enhanced.ConfidenceScore = boostConfidence(enhanced.ConfidenceScore)
	r.logger.Printf("reflection produced %d insights, confidence %.2f (%d tokens)", len(enhanced.KeyInsights), enhanced.ConfidenceScore, inTok+outTok)
	return enhanced, nil
}

// boostConfidence applies min(score + boost, 1.0).
func boostConfidence(score float64) float64 {
	boosted := score + reflectionConfidenceBoost
	if boosted > 1.0 {
		return 1.0
	}
	return boosted
}

func (r *ReflectionStage) buildPrompt(query string, synthesis SynthesisOutput, results map[string]SpecialistResult) string {
	var b strings.Builder
	b.WriteString("You are an expert in meta-analysis and deep reflection.\n\n")
	b.WriteString("Given an initial synthesis and the raw specialist results, enhance the analysis: find hidden connections and patterns not obvious in the first pass, audit the methodology for blind spots, and propose alternative framings for the findings.\n\n")
	fmt.Fprintf(&b, "ORIGINAL QUERY: %s\n\n", query)
	fmt.Fprintf(&b, "INITIAL SYNTHESIS:\n%s\n\n", synthesis.ComprehensiveAnalysis)
	b.WriteString("KEY INSIGHTS FROM INITIAL SYNTHESIS:\n")
	for _, insight := range synthesis.KeyInsights {
		fmt.Fprintf(&b, "- %s\n", insight)
	}
	fmt.Fprintf(&b, "\nCONFIDENCE SCORE: %.0f%%\n\n", synthesis.ConfidenceScore*100)
	b.WriteString("RAW SPECIALIST RESULTS FOR DEEPER ANALYSIS:\n\n")
	for _, role := range r.roles {
		fmt.Fprintf(&b, "%s FINDINGS:\n%s\n\n", strings.ToUpper(role.Name), findingsOrPlaceholder(results[role.Name]))
	}
	b.WriteString("Perform the reflection now. Look beyond the surface and transform a good analysis into an extraordinary one.\n\n")
	b.WriteString(analysisOutputSchema)
	return b.String()
}
