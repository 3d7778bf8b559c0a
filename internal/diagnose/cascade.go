// Package diagnose produces a DiagnosisResult from a photo by trying a custom
// inference endpoint, then an LLM, then a deterministic mock.
package diagnose

import (
	"context"
	"strings"

	"cropdoc/internal/cascade"
	"cropdoc/internal/config"
	"cropdoc/internal/llm"
	"cropdoc/internal/promptctx"
	"cropdoc/internal/provider"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

type job struct {
	req     *types.DiagnosisRequest
	weather *types.WeatherSnapshot
}

// Cascade is the diagnosis stage.
type Cascade struct {
	runner *cascade.Runner[job, *types.DiagnosisResult]
}

func New(sc config.StageConfig, d cascade.Deps) *Cascade {
	ep := provider.NewEndpoint(sc.EndpointURL, sc.EndpointKey, d.HTTP)
	return &Cascade{runner: &cascade.Runner[job, *types.DiagnosisResult]{
		Stage: "diagnosis",
		Tiers: []cascade.Tier[job, *types.DiagnosisResult]{
			&endpointTier{ep: ep},
			&llmTier{client: d.LLM},
		},
		Timeout:      sc.Timeout,
		FallbackName: types.SourceMock,
		Fallback:     func(j job) *types.DiagnosisResult { return MockResult(j.req) },
		Log:          d.Log,
		Metrics:      d.Metrics,
	}}
}

// Diagnose never fails. weather is the snapshot already resolved for the
// request and may be nil.
func (c *Cascade) Diagnose(ctx context.Context, req *types.DiagnosisRequest, weather *types.WeatherSnapshot) *types.DiagnosisResult {
	return c.runner.Run(ctx, job{req: req, weather: weather}).Value
}

type endpointTier struct {
	ep *provider.Endpoint
}

func (t *endpointTier) Name() string { return types.SourceCustomEndpoint }

func (t *endpointTier) Attempt(ctx context.Context, j job) (*types.DiagnosisResult, error) {
	if t.ep == nil {
		return nil, provider.ErrUnavailable
	}
	raw, err := t.ep.PostJSON(ctx, envelope{
		Image:    j.req.ImageBase64(),
		MIMEType: j.req.ImageMIME(),
		Metadata: j.req.Metadata,
		Weather:  j.weather,
	})
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.ParseObject(string(raw))
	if err != nil {
		return nil, provider.Wrap(t.ep.Name(), "decode diagnosis", err)
	}
	res, err := FromPayload(obj)
	if err != nil {
		return nil, provider.Wrap(t.ep.Name(), "map diagnosis", err)
	}
	res.Source = types.SourceCustomEndpoint
	if res.Provider == "" {
		res.Provider = t.ep.Name()
	}
	return res, nil
}

// envelope is the single JSON document posted to a custom endpoint.
type envelope struct {
	Image    string                 `json:"image"`
	MIMEType string                 `json:"mimeType"`
	Metadata types.Metadata         `json:"metadata"`
	Weather  *types.WeatherSnapshot `json:"weather,omitempty"`
}

type llmTier struct {
	client llm.Client
}

func (t *llmTier) Name() string { return types.SourceLLM }

func (t *llmTier) Attempt(ctx context.Context, j job) (*types.DiagnosisResult, error) {
	if t.client == nil {
		return nil, provider.ErrUnavailable
	}
	pc := promptctx.Build(j.req.Metadata, j.weather)
	ctx = llm.WithPhase(ctx, llm.PhaseDiagnosis)
	text, err := t.client.Generate(ctx, llm.Prompt{
		System:   diagnosisSchemaPrompt,
		Text:     userPrompt(j.req.Metadata, pc),
		Image:    j.req.Image,
		MIMEType: j.req.ImageMIME(),
		JSON:     true,
	})
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.ParseObject(text)
	if err != nil {
		return nil, provider.Wrap(t.client.Name(), "parse diagnosis", err)
	}
	res, err := FromSchema(obj)
	if err != nil {
		return nil, provider.Wrap(t.client.Name(), "map diagnosis", err)
	}
	res.Source = types.SourceLLM
	res.Provider = providerName(t.client.Name())
	res.ModelVersion = t.client.Name()
	return res, nil
}

// providerName turns "gemini:gemini-2.5-flash" into "gemini".
func providerName(client string) string {
	if i := strings.IndexByte(client, ':'); i > 0 {
		return client[:i]
	}
	return client
}

func userPrompt(meta types.Metadata, pc promptctx.PromptContext) string {
	var b strings.Builder
	b.WriteString("Diagnose the plant problem in the attached photo.\n\n")
	b.WriteString(pc.Render())
	if notes := strings.TrimSpace(meta.Notes); notes != "" {
		b.WriteString("\n[FARMER NOTES]\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}
	return b.String()
}

const diagnosisSchemaPrompt = `You are an agronomist diagnosing crop problems from a single field photo.
Answer with exactly one JSON object following this schema and nothing else:
{
  "disease": {"name": string, "scientific_name": string, "severity": "low" | "moderate" | "high", "description": string},
  "danger_if_ignored": string,
  "confidence_explanation": {"confidence_score": number between 0 and 1, "reasoning": string, "when_to_recheck": string},
  "actions": {"immediate": [string], "short_term": [string], "preventive": [string]},
  "treatments": {"organic": [string], "chemical": [string]}
}
If the plant looks healthy, name it "Healthy" and keep the action lists short.
Prefer low-cost cultural and organic measures before chemical ones.`
