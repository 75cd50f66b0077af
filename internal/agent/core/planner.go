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

// QuestionPlanner decomposes one user query into exactly one sub-question per
// configured role. A malformed or failed decomposition is a hard stop.
type QuestionPlanner struct {
	cfg       *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	roles     []Role
}

// NewQuestionPlanner creates a planner bound to an immutable role set.
func NewQuestionPlanner(cfg *config.Config, llm LLMProvider, tele *telemetry.Telemetry, roles []Role) *QuestionPlanner {
	return &QuestionPlanner{
		cfg:       cfg,
		llm:       llm,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
		roles:     roles,
	}
}

// Plan generates the role-scoped question set for a query.
func (p *QuestionPlanner) Plan(ctx context.Context, query string) (QuestionSet, error) {
	start := time.Now()
	model := p.cfg.LLM.Routing.ModelFor("planning")

	prompt := p.buildPrompt(query)
	out, inTok, outTok, err := p.llm.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  800,
	})
	cost := p.llm.CalculateCost(inTok, outTok, model)
	if p.telemetry != nil {
		p.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{
			Stage:      StagePlanning,
			Duration:   time.Since(start),
			Success:    err == nil,
			Cost:       cost,
			TokensUsed: inTok + outTok,
			ModelUsed:  model,
		})
	}
	if err != nil {
		return QuestionSet{}, PlanningError{Err: err}
	}

	qs, err := p.parseQuestions(out)
	if err != nil {
		return QuestionSet{}, PlanningError{Err: err}
	}
	p.logger.Printf("generated %d questions for query (%d tokens)", len(qs.Questions), inTok+outTok)
	return qs, nil
}

func (p *QuestionPlanner) buildPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are a question generation expert for deep multi-agent analysis.\n\n")
	fmt.Fprintf(&b, "Given a user query, generate %d specialized research questions, one per role below, that together enable comprehensive analysis from different perspectives:\n\n", len(p.roles))
	for i, r := range p.roles {
		fmt.Fprintf(&b, "%d. %s question: focus on %s\n", i+1, strings.ToUpper(r.Name), r.Focus)
	}
	b.WriteString("\nMake questions specific, actionable, and designed to gather complementary, non-overlapping information. Each question should lead to insights the other roles might miss.\n\n")
	fmt.Fprintf(&b, "USER QUERY: %s\n\n", query)
	b.WriteString("Return ONLY strict JSON of the form {\"questions\": {")
	for i, r := range p.roles {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: string", r.Name)
	}
	b.WriteString("}}")
	return b.String()
}

// parseQuestions validates that the model returned exactly one well-formed
// question per role; anything else is a planning failure.
func (p *QuestionPlanner) parseQuestions(out string) (QuestionSet, error) {
	var parsed struct {
		Questions map[string]string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(out)), &parsed); err != nil {
		return QuestionSet{}, fmt.Errorf("unparseable question set: %w", err)
	}
	if len(parsed.Questions) != len(p.roles) {
		return QuestionSet{}, fmt.Errorf("expected %d questions, got %d", len(p.roles), len(parsed.Questions))
	}
	questions := make(map[string]string, len(p.roles))
	for _, r := range p.roles {
		q := strings.TrimSpace(parsed.Questions[r.Name])
		if q == "" {
			return QuestionSet{}, fmt.Errorf("missing question for role %s", r.Name)
		}
		questions[r.Name] = q
	}
	return QuestionSet{Questions: questions, Roles: roleNames(p.roles)}, nil
}

// extractFirstJSON attempts to find the first top-level JSON object in a string
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
