// Package confidence keeps the diagnosis confidence on one 0-100 integer scale
// and mirrors it into every field downstream readers look at.
package confidence

import (
	"math"
	"strconv"
	"strings"

	"cropdoc/internal/types"
)

const (
	keyExplanation = "confidence_explanation"
	keyScore       = "confidence_score"
	keyReasoning   = "reasoning"
	keyRecheck     = "when_to_recheck"
)

// Normalize maps a provider confidence onto an integer in [0,100]. Values in
// (0,1] are read as fractions.
func Normalize(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	if raw > 0 && raw <= 1 {
		raw *= 100
	}
	v := math.Round(raw)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

// Apply computes the normalized score once and writes it to diag.Confidence,
// result.Diagnosis.Confidence and
// result.RawResponse.confidence_explanation.confidence_score. Missing
// locations are created. The raw value is taken from diag, then
// result.Diagnosis, then the raw payload.
func Apply(result *types.DiagnosisResult, diag *types.Diagnosis) int {
	raw, _ := rawConfidence(result, diag)
	score := Normalize(raw)

	if diag != nil {
		diag.Confidence = float64(score)
	}
	if result == nil {
		return score
	}
	if result.Diagnosis == nil {
		if diag != nil {
			result.Diagnosis = diag
		} else {
			result.Diagnosis = &types.Diagnosis{}
		}
	}
	result.Diagnosis.Confidence = float64(score)

	if result.RawResponse == nil {
		result.RawResponse = map[string]any{}
	}
	expl, ok := result.RawResponse[keyExplanation].(map[string]any)
	if !ok {
		expl = map[string]any{keyReasoning: "", keyRecheck: ""}
		result.RawResponse[keyExplanation] = expl
	}
	if _, ok := expl[keyReasoning]; !ok {
		expl[keyReasoning] = ""
	}
	if _, ok := expl[keyRecheck]; !ok {
		expl[keyRecheck] = ""
	}
	expl[keyScore] = score
	return score
}

// FromRaw reads confidence_explanation.confidence_score out of a raw payload.
func FromRaw(raw map[string]any) (float64, bool) {
	expl, ok := raw[keyExplanation].(map[string]any)
	if !ok {
		return 0, false
	}
	return toFloat(expl[keyScore])
}

func rawConfidence(result *types.DiagnosisResult, diag *types.Diagnosis) (float64, bool) {
	if diag != nil {
		return diag.Confidence, true
	}
	if result == nil {
		return 0, false
	}
	if result.Diagnosis != nil {
		return result.Diagnosis.Confidence, true
	}
	return FromRaw(result.RawResponse)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		return f, err == nil
	}
	return 0, false
}

// Value exposes toFloat for packages mapping provider payloads.
func Value(v any) (float64, bool) { return toFloat(v) }
