package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/deepdive/config"
)

const testModel = "test-model"

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Fallback: testModel},
		},
		Pipeline: config.PipelineConfig{MaxConcurrentRuns: 2},
	}
}

const defaultPlanJSON = `{"questions": {
  "research": "What are the facts?",
  "analysis": "What is the impact?",
  "perspective": "What are the alternative views?",
  "verification": "Is the information current?"
}}`

const defaultAnalysisJSON = `{
  "comprehensive_analysis": "combined narrative",
  "key_insights": ["first insight", "second insight"],
  "confidence_score": 0.8,
  "sources": ["research findings"]
}`

// fakeProvider scripts responses per pipeline stage. Stages are recognized by
// their prompt preambles; specialists by instruction fragments.
type fakeProvider struct {
	mu      sync.Mutex
	prompts []string

	planResponse string
	planErr      error

	specialistErr map[string]error // prompt fragment -> error

	synthesisResponse string
	synthesisErr      error

	reflectionResponse string
	reflectionErr      error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		planResponse:       defaultPlanJSON,
		synthesisResponse:  defaultAnalysisJSON,
		reflectionResponse: defaultAnalysisJSON,
		specialistErr:      map[string]error{},
	}
}

func (f *fakeProvider) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	out, _, _, err := f.GenerateWithTokens(ctx, prompt, model, options)
	return out, err
}

func (f *fakeProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, "You are a question generation expert"):
		if f.planErr != nil {
			return "", 0, 0, f.planErr
		}
		return f.planResponse, 100, 50, nil
	case strings.HasPrefix(prompt, "You are a synthesis expert"):
		if f.synthesisErr != nil {
			return "", 0, 0, f.synthesisErr
		}
		return f.synthesisResponse, 200, 120, nil
	case strings.HasPrefix(prompt, "You are an expert in meta-analysis"):
		if f.reflectionErr != nil {
			return "", 0, 0, f.reflectionErr
		}
		return f.reflectionResponse, 250, 150, nil
	default:
		for fragment, err := range f.specialistErr {
			if strings.Contains(prompt, fragment) {
				return "", 0, 0, err
			}
		}
		return "specialist findings", 80, 40, nil
	}
}

func (f *fakeProvider) promptLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

func (f *fakeProvider) GetAvailableModels() []string { return []string{testModel} }

func (f *fakeProvider) GetModelInfo(model string) (ModelInfo, error) {
	if model != testModel {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return ModelInfo{Name: testModel, Provider: "fake"}, nil
}

func (f *fakeProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return float64(inputTokens+outputTokens) / 1000.0 * 0.01
}

// recordingReporter collects events synchronously for assertions.
type recordingReporter struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingReporter) Report(eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ProgressEvent{Type: eventType, Payload: payload})
}

func (r *recordingReporter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func indexOf(types []string, target string) int {
	for i, t := range types {
		if t == target {
			return i
		}
	}
	return -1
}
