package quality

import (
	"fmt"
	"math"
	"strings"

	"cropdoc/internal/confidence"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

// SkipThreshold is the quality score below which inference is not attempted.
const SkipThreshold = 0.3

// Parse maps a decoded answer onto an assessment. Missing fields keep the
// defaults: a plant, not blurry, score 1, status ok, no suggestions.
func Parse(obj map[string]any) types.QualityAssessment {
	a := types.DefaultQualityAssessment()
	a.Source = ""
	if obj == nil {
		return a
	}
	if v, ok := boolField(obj, "is_plant", "isPlant", "plant"); ok {
		a.IsPlant = v
	}
	if v, ok := boolField(obj, "is_blurry", "isBlurry", "blurry"); ok {
		a.IsBlurry = v
	}
	if v, ok := first(obj, "quality_score", "qualityScore", "score"); ok {
		if f, ok := confidence.Value(v); ok {
			a.QualityScore = clampScore(f)
		}
	}
	if v, ok := first(obj, "status"); ok {
		if s, ok := v.(string); ok {
			a.Status = types.ParseQualityStatus(s)
		}
	}
	if v, ok := first(obj, "reason", "message"); ok {
		if s, ok := v.(string); ok {
			a.Reason = strings.TrimSpace(s)
		}
	}
	if v, ok := first(obj, "suggestions", "tips"); ok {
		a.Suggestions = jsonutil.Strings(v)
	}
	return a
}

// clampScore keeps the score in [0,1]. Values of 10 or more are read as
// percentages; anything between 1 and 10 is a slightly overshot fraction.
func clampScore(f float64) float64 {
	if math.IsNaN(f) {
		return 1
	}
	if f >= 10 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f))
}

// ShouldSkipInference is the routing decision after the gate:
//
//	!isPlant || status == reject || score < 0.3 || (isBlurry && score < 0.3)
//
// A non-plant photo always skips; a blurry photo only skips when its score is
// also below the threshold.
func ShouldSkipInference(a types.QualityAssessment) bool {
	if !a.IsPlant {
		return true
	}
	switch a.Status {
	case types.QualityReject:
		return true
	case types.QualityOK, types.QualityRetry:
	default:
		// ParseQualityStatus never yields anything else; unknown means ok.
	}
	if a.QualityScore < SkipThreshold {
		return true
	}
	return a.IsBlurry && a.QualityScore < SkipThreshold
}

// DefaultRetakeSuggestions are used when a rejected assessment carries none.
var DefaultRetakeSuggestions = []string{
	"Retake the photo in daylight or bright, even light.",
	"Hold the camera steady and tap to focus on the affected leaves.",
	"Move closer so the affected plant part fills most of the frame.",
}

// InvalidPhotoResult builds the synthetic result returned instead of a
// diagnosis when the gate rejects a photo.
func InvalidPhotoResult(a types.QualityAssessment) *types.DiagnosisResult {
	suggestions := a.Suggestions
	if len(suggestions) == 0 {
		suggestions = DefaultRetakeSuggestions
	}
	recs := make([]types.Recommendation, 0, len(suggestions))
	for i, s := range suggestions {
		recs = append(recs, types.Recommendation{
			ID:          fmt.Sprintf("retake-%d", i+1),
			Title:       s,
			Description: s,
			Category:    "photo",
			Priority:    "high",
			Timeframe:   "now",
		})
	}
	reason := a.Reason
	if reason == "" {
		reason = "The photo could not be analysed."
	}
	precheck := a
	return &types.DiagnosisResult{
		Source:   types.SourcePrecheckFailure,
		Provider: "quality-gate",
		Diagnosis: &types.Diagnosis{
			Label:       types.InvalidPhotoLabel,
			Confidence:  0,
			Severity:    "unknown",
			Description: reason,
		},
		Recommendations: recs,
		RawResponse: map[string]any{
			"precheck": map[string]any{
				"is_plant":      a.IsPlant,
				"is_blurry":     a.IsBlurry,
				"quality_score": a.QualityScore,
				"status":        string(a.Status),
				"reason":        a.Reason,
			},
		},
		Precheck: &precheck,
	}
}

func first(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func boolField(obj map[string]any, keys ...string) (bool, bool) {
	v, ok := first(obj, keys...)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return b != 0, true
	}
	return false, false
}
