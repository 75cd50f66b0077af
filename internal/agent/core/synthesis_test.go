package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSynthesizeEnumeratesFindingsAndGaps(t *testing.T) {
	provider := newFakeProvider()
	roles := DefaultRoles()
	stage := NewSynthesisStage(testConfig(), provider, nil, roles)
	qs := testQuestionSet(roles)

	results := map[string]SpecialistResult{}
	for _, r := range roles {
		results[r.Name] = SpecialistResult{
			Role:     r.Name,
			Question: qs.Question(r.Name),
			Status:   StatusCompleted,
			Findings: "findings from " + r.Name,
		}
	}
	results[RolePerspective] = SpecialistResult{
		Role:     RolePerspective,
		Question: qs.Question(RolePerspective),
		Status:   StatusFailed,
		Error:    "boom",
	}

	out, err := stage.Synthesize(context.Background(), "query", qs, results)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.ComprehensiveAnalysis != "combined narrative" {
		t.Fatalf("unexpected narrative: %q", out.ComprehensiveAnalysis)
	}

	prompts := provider.promptLog()
	if len(prompts) != 1 {
		t.Fatalf("expected 1 call, got %d", len(prompts))
	}
	prompt := prompts[0]
	if !strings.Contains(prompt, "findings from research") {
		t.Fatalf("prompt missing completed findings:\n%s", prompt)
	}
	if !strings.Contains(prompt, noResultsPlaceholder) {
		t.Fatalf("prompt missing placeholder for failed role:\n%s", prompt)
	}
	if strings.Contains(prompt, "boom") {
		t.Fatalf("prompt must not leak specialist errors:\n%s", prompt)
	}
}

func TestSynthesizeCapabilityFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.synthesisErr = errors.New("rate limited")
	roles := DefaultRoles()
	stage := NewSynthesisStage(testConfig(), provider, nil, roles)

	_, err := stage.Synthesize(context.Background(), "query", testQuestionSet(roles), map[string]SpecialistResult{})
	var serr SynthesisError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
}

func TestParseAnalysisOutputLenient(t *testing.T) {
	out := parseAnalysisOutput("plain prose, not JSON at all")
	if out.ComprehensiveAnalysis != "plain prose, not JSON at all" {
		t.Fatalf("raw text should become the narrative: %+v", out)
	}
	if out.ConfidenceScore != 0.5 {
		t.Fatalf("fallback confidence should be 0.5, got %v", out.ConfidenceScore)
	}
}

func TestParseAnalysisOutputClampsConfidence(t *testing.T) {
	out := parseAnalysisOutput(`{"comprehensive_analysis":"x","key_insights":[],"confidence_score":1.7}`)
	if out.ConfidenceScore != 1.0 {
		t.Fatalf("confidence should clamp to 1.0, got %v", out.ConfidenceScore)
	}
}

func TestFindingsOrPlaceholder(t *testing.T) {
	completed := SpecialistResult{Status: StatusCompleted, Findings: "real findings"}
	if got := findingsOrPlaceholder(completed); got != "real findings" {
		t.Fatalf("unexpected: %q", got)
	}
	failed := SpecialistResult{Status: StatusFailed, Error: "x"}
	if got := findingsOrPlaceholder(failed); got != noResultsPlaceholder {
		t.Fatalf("unexpected: %q", got)
	}
	empty := SpecialistResult{Status: StatusCompleted, Findings: "   "}
	if got := findingsOrPlaceholder(empty); got != noResultsPlaceholder {
		t.Fatalf("blank findings should use placeholder, got %q", got)
	}
}
