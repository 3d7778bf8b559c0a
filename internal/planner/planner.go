// Package planner turns a diagnosis into a time-phased action plan.
package planner

import (
	"context"
	"fmt"
	"strings"

	"cropdoc/internal/cascade"
	"cropdoc/internal/config"
	"cropdoc/internal/llm"
	"cropdoc/internal/provider"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

const (
	TierCustom = "custom-endpoint"
	TierLLM    = "llm"
	TierMock   = "mock"
)

// LowConfidence is the score under which the LLM is asked to favour monitoring.
const LowConfidence = 60

// Input is everything the planner may sequence. It never re-derives facts the
// diagnosis already established.
type Input struct {
	Diagnosis       *types.Diagnosis       `json:"diagnosis"`
	Recommendations []types.Recommendation `json:"recommendations"`
	RawResponse     map[string]any         `json:"rawResponse,omitempty"`
	Metadata        types.Metadata         `json:"metadata"`
	Weather         *types.WeatherSnapshot `json:"weather,omitempty"`
}

// Planner is the second cascade: custom endpoint, LLM, then a mock plan.
type Planner struct {
	runner *cascade.Runner[Input, *types.ActionPlan]
}

func New(sc config.StageConfig, d cascade.Deps) *Planner {
	ep := provider.NewEndpoint(sc.EndpointURL, sc.EndpointKey, d.HTTP)
	return &Planner{runner: &cascade.Runner[Input, *types.ActionPlan]{
		Stage: "planner",
		Tiers: []cascade.Tier[Input, *types.ActionPlan]{
			&endpointTier{ep: ep},
			&llmTier{client: d.LLM},
		},
		Timeout:      sc.Timeout,
		FallbackName: TierMock,
		Fallback:     MockPlan,
		Log:          d.Log,
		Metrics:      d.Metrics,
	}}
}

// Plan never fails.
func (p *Planner) Plan(ctx context.Context, result *types.DiagnosisResult, meta types.Metadata) *types.ActionPlan {
	in := Input{Metadata: meta}
	if result != nil {
		in.Diagnosis = result.Diagnosis
		in.Recommendations = result.Recommendations
		in.RawResponse = result.RawResponse
		in.Weather = result.Weather
	}
	return p.runner.Run(ctx, in).Value
}

type endpointTier struct {
	ep *provider.Endpoint
}

func (t *endpointTier) Name() string { return TierCustom }

func (t *endpointTier) Attempt(ctx context.Context, in Input) (*types.ActionPlan, error) {
	if t.ep == nil {
		return nil, provider.ErrUnavailable
	}
	raw, err := t.ep.PostJSON(ctx, in)
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.ParseObject(string(raw))
	if err != nil {
		return nil, provider.Wrap(t.ep.Name(), "decode plan", err)
	}
	if inner, ok := obj["actionPlan"].(map[string]any); ok {
		obj = inner
	}
	plan, err := Parse(obj)
	if err != nil {
		return nil, provider.Wrap(t.ep.Name(), "map plan", err)
	}
	plan.Source = types.SourceCustomEndpoint
	plan.Provider = t.ep.Name()
	return plan, nil
}

type llmTier struct {
	client llm.Client
}

func (t *llmTier) Name() string { return TierLLM }

func (t *llmTier) Attempt(ctx context.Context, in Input) (*types.ActionPlan, error) {
	if t.client == nil {
		return nil, provider.ErrUnavailable
	}
	prompt, err := userPrompt(in)
	if err != nil {
		return nil, provider.Wrap(t.client.Name(), "build prompt", err)
	}
	ctx = llm.WithPhase(ctx, llm.PhasePlanner)
	text, err := t.client.Generate(ctx, llm.Prompt{System: planSchemaPrompt, Text: prompt, JSON: true})
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.ParseObject(text)
	if err != nil {
		return nil, provider.Wrap(t.client.Name(), "parse plan", err)
	}
	plan, err := Parse(obj)
	if err != nil {
		return nil, provider.Wrap(t.client.Name(), "map plan", err)
	}
	plan.Source = types.SourceLLM
	plan.Provider = t.client.Name()
	return plan, nil
}

func userPrompt(in Input) (string, error) {
	b, err := jsonutil.MarshalNoEscape(in)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Sequence the following diagnosis and recommendations into a phased plan.\n")
	if in.Diagnosis != nil && in.Diagnosis.Confidence < LowConfidence {
		fmt.Fprintf(&sb, "Diagnosis confidence is %.0f/100, below %d: emphasize monitoring and confirmation before any treatment.\n",
			in.Diagnosis.Confidence, LowConfidence)
	}
	sb.WriteString("\n[DIAGNOSIS]\n")
	sb.Write(b)
	sb.WriteString("\n")
	return sb.String(), nil
}

const planSchemaPrompt = `You turn an existing crop diagnosis into a practical plan for a smallholder farmer.
Do not re-diagnose; only sequence the given recommendations into phases.
Answer with exactly one JSON object and nothing else:
{
  "summary": string,
  "phases": [
    {"id": string, "title": string, "timeframe": string, "priority": "high" | "medium" | "low",
     "goals": [string],
     "steps": [{"id": string, "title": string, "description": string, "category": string,
                "related_recommendation_ids": [string]}]}
  ]
}
Reference recommendation ids exactly as given. When diagnosis confidence is below 60,
emphasize monitoring and confirmation before treatment.`
