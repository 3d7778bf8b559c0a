package llm

import (
	"context"
	"sync"
)

// Phase names used with WithPhase by the pipeline stages.
const (
	PhaseQuality   = "quality"
	PhaseDiagnosis = "diagnosis"
	PhasePlanner   = "planner"
)

// FakeClient returns deterministic text per phase for offline runs and tests.
// The canned answers imitate real model output: fenced, chatty, with trailing
// commas and raw newlines inside strings.
type FakeClient struct {
	// Responses overrides the canned answer for a phase.
	Responses map[string]string
	// Err, when set, is returned from every call.
	Err error

	mu      sync.Mutex
	prompts []Prompt
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Err != nil {
		return "", f.Err
	}
	phase := PhaseFrom(ctx)
	if s, ok := f.Responses[phase]; ok {
		return s, nil
	}
	switch phase {
	case PhaseQuality:
		return fakeQuality, nil
	case PhaseDiagnosis:
		return fakeDiagnosis, nil
	case PhasePlanner:
		return fakePlan, nil
	}
	return "{}", nil
}

// Prompts returns a copy of every prompt received so far.
func (f *FakeClient) Prompts() []Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Prompt(nil), f.prompts...)
}

const fakeQuality = "```json\n" + `{"is_plant": true, "is_blurry": false, "quality_score": 0.92, "status": "ok", "reason": "Leaf is in focus", "suggestions": [],}` + "\n```"

const fakeDiagnosis = "Here is my assessment of the photo:\n```json\n" + `{
  "disease": {"name": "Early Blight", "scientific_name": "Alternaria solani", "severity": "moderate",
    "description": "Concentric brown rings on older leaves.
Lesions are surrounded by yellow halos."},
  "danger_if_ignored": "Defoliation and reduced yield within two to three weeks.",
  "confidence_explanation": {"confidence_score": 0.82, "reasoning": "Target-board lesions are characteristic", "when_to_recheck": "3 days"},
  "actions": {
    "immediate": ["Remove and destroy infected lower leaves",],
    "short_term": ["Mulch around the base to limit soil splash"],
    "preventive": ["Rotate away from solanaceous crops for two seasons"],
  },
  "treatments": {
    "organic": ["Copper-based fungicide every 7-10 days"],
    "chemical": ["Chlorothalonil following label rates"]
  },
}` + "\n```\nLet me know if you need anything else."

const fakePlan = "```json\n" + `{
  "summary": "Contain early blight, then protect new growth.",
  "phases": [
    {"id": "phase-1", "title": "Immediate containment", "timeframe": "0-2 days", "priority": "high",
     "goals": ["Stop spread to healthy leaves"],
     "steps": [{"id": "step-1", "title": "Prune infected leaves", "description": "Remove lower leaves with lesions and bag them.", "category": "cultural", "related_recommendation_ids": ["rec-1"]}]},
    {"id": "phase-2", "title": "Protect and monitor", "timeframe": "1-3 weeks", "priority": "medium",
     "goals": ["Keep new foliage clean"],
     "steps": [{"id": "step-2", "title": "Apply copper spray", "description": "Spray every 7-10 days in dry weather.", "category": "organic", "related_recommendation_ids": ["rec-3"]},]}
  ]
}` + "\n```"
