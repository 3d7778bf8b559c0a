// Package quality decides whether a photo is worth a diagnosis call.
package quality

import (
	"context"
	"fmt"

	"cropdoc/internal/cascade"
	"cropdoc/internal/config"
	"cropdoc/internal/llm"
	"cropdoc/internal/provider"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

const (
	TierCustom  = "custom-endpoint"
	TierLLM     = "llm"
	TierDefault = "default"
)

// Gate runs the quality cascade: custom endpoint, then LLM, then the default
// assessment.
type Gate struct {
	runner *cascade.Runner[*types.DiagnosisRequest, types.QualityAssessment]
}

func NewGate(sc config.StageConfig, d cascade.Deps) *Gate {
	ep := provider.NewEndpoint(sc.EndpointURL, sc.EndpointKey, d.HTTP)
	return &Gate{runner: &cascade.Runner[*types.DiagnosisRequest, types.QualityAssessment]{
		Stage: "quality",
		Tiers: []cascade.Tier[*types.DiagnosisRequest, types.QualityAssessment]{
			&endpointTier{ep: ep},
			&llmTier{client: d.LLM},
		},
		Timeout:      sc.Timeout,
		FallbackName: TierDefault,
		Fallback: func(*types.DiagnosisRequest) types.QualityAssessment {
			return types.DefaultQualityAssessment()
		},
		Log:     d.Log,
		Metrics: d.Metrics,
	}}
}

// Assess never fails; when no tier can judge the photo it returns the default
// ok assessment.
func (g *Gate) Assess(ctx context.Context, req *types.DiagnosisRequest) types.QualityAssessment {
	return g.runner.Run(ctx, req).Value
}

type endpointTier struct {
	ep *provider.Endpoint
}

func (t *endpointTier) Name() string { return TierCustom }

func (t *endpointTier) Attempt(ctx context.Context, req *types.DiagnosisRequest) (types.QualityAssessment, error) {
	if t.ep == nil {
		return types.QualityAssessment{}, provider.ErrUnavailable
	}
	raw, err := t.ep.PostJSON(ctx, map[string]any{
		"image":    req.ImageBase64(),
		"mimeType": req.ImageMIME(),
		"metadata": req.Metadata,
	})
	if err != nil {
		return types.QualityAssessment{}, err
	}
	obj, err := jsonutil.ParseObject(string(raw))
	if err != nil {
		return types.QualityAssessment{}, provider.Wrap(t.ep.Name(), "decode assessment", err)
	}
	a := Parse(unwrap(obj))
	a.Source = TierCustom
	return a, nil
}

type llmTier struct {
	client llm.Client
}

func (t *llmTier) Name() string { return TierLLM }

func (t *llmTier) Attempt(ctx context.Context, req *types.DiagnosisRequest) (types.QualityAssessment, error) {
	if t.client == nil {
		return types.QualityAssessment{}, provider.ErrUnavailable
	}
	ctx = llm.WithPhase(ctx, llm.PhaseQuality)
	text, err := t.client.Generate(ctx, llm.Prompt{
		System:   qualitySystemPrompt,
		Text:     qualityUserPrompt(req.Metadata),
		Image:    req.Image,
		MIMEType: req.ImageMIME(),
		JSON:     true,
	})
	if err != nil {
		return types.QualityAssessment{}, err
	}
	obj, err := jsonutil.ParseObject(text)
	if err != nil {
		return types.QualityAssessment{}, provider.Wrap(t.client.Name(), "parse quality answer", err)
	}
	a := Parse(unwrap(obj))
	a.Source = TierLLM
	return a, nil
}

// unwrap accepts answers nested under "assessment" or "quality".
func unwrap(obj map[string]any) map[string]any {
	for _, k := range []string{"assessment", "quality"} {
		if inner, ok := obj[k].(map[string]any); ok {
			return inner
		}
	}
	return obj
}

const qualitySystemPrompt = `You check photo quality only. Do not diagnose.
Answer with one JSON object and nothing else:
{"is_plant": bool, "is_blurry": bool, "quality_score": number between 0 and 1,
 "status": "ok" | "retry" | "reject", "reason": string, "suggestions": [string]}
Use "reject" when the photo does not show a plant, "retry" when a plant is visible
but too dark, blurry or distant to judge. Suggestions tell the farmer how to retake it.`

func qualityUserPrompt(meta types.Metadata) string {
	crop := meta.CropType
	if crop == "" {
		crop = "unknown"
	}
	return fmt.Sprintf("Assess this field photo. Reported crop: %s.", crop)
}
