package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestBoostConfidence(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.0, 0.1},
		{0.5, 0.6},
		{0.85, 0.95},
		{0.95, 1.0},
		{1.0, 1.0},
	}
	for _, tc := range cases {
		if got := boostConfidence(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("boostConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestReflectAppliesBoost(t *testing.T) {
	provider := newFakeProvider()
	provider.reflectionResponse = `{"comprehensive_analysis":"deeper narrative","key_insights":["hidden pattern"],"confidence_score":0.8,"sources":["research findings"]}`
	roles := DefaultRoles()
	stage := NewReflectionStage(testConfig(), provider, nil, roles)

	synthesis := SynthesisOutput{
		ComprehensiveAnalysis: "initial narrative",
		KeyInsights:           []string{"surface insight"},
		ConfidenceScore:       0.7,
	}
	out, err := stage.Reflect(context.Background(), "query", synthesis, map[string]SpecialistResult{})
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if out.ComprehensiveAnalysis != "deeper narrative" {
		t.Fatalf("reflection must replace the synthesis: %+v", out)
	}
	if math.Abs(out.ConfidenceScore-0.9) > 1e-9 {
		t.Fatalf("expected boosted confidence 0.9, got %v", out.ConfidenceScore)
	}
}

func TestReflectFailureIsTerminal(t *testing.T) {
	provider := newFakeProvider()
	provider.reflectionErr = errors.New("context length exceeded")
	stage := NewReflectionStage(testConfig(), provider, nil, DefaultRoles())

	_, err := stage.Reflect(context.Background(), "query", SynthesisOutput{}, map[string]SpecialistResult{})
	var rerr ReflectionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ReflectionError, got %v", err)
	}
}

func TestReflectPromptCarriesSynthesisAndRawResults(t *testing.T) {
	provider := newFakeProvider()
	roles := DefaultRoles()
	stage := NewReflectionStage(testConfig(), provider, nil, roles)

	synthesis := SynthesisOutput{
		ComprehensiveAnalysis: "initial narrative",
		KeyInsights:           []string{"surface insight"},
		ConfidenceScore:       0.7,
	}
	results := map[string]SpecialistResult{
		RoleResearch: {Role: RoleResearch, Status: StatusCompleted, Findings: "raw research output"},
	}
	if _, err := stage.Reflect(context.Background(), "query", synthesis, results); err != nil {
		t.Fatalf("Reflect: %v", err)
	}

	prompts := provider.promptLog()
	prompt := prompts[len(prompts)-1]
	for _, want := range []string{"initial narrative", "surface insight", "raw research output", noResultsPlaceholder} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("reflection prompt missing %q:\n%s", want, prompt)
		}
	}
}
