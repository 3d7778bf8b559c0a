package diagnose

import (
	"errors"
	"fmt"
	"strings"

	"cropdoc/internal/confidence"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

var errNoLabel = errors.New("answer names no condition")

// recGroup describes how one list in the model answer becomes recommendations.
type recGroup struct {
	path      []string
	category  string
	priority  string
	timeframe string
}

var recGroups = []recGroup{
	{[]string{"actions", "immediate"}, "immediate-action", "high", "0-2 days"},
	{[]string{"actions", "short_term"}, "short-term", "medium", "1-2 weeks"},
	{[]string{"treatments", "organic"}, "organic-treatment", "medium", "as needed"},
	{[]string{"treatments", "chemical"}, "chemical-treatment", "medium", "as needed"},
	{[]string{"actions", "preventive"}, "prevention", "low", "next season"},
}

// FromSchema maps the LLM diagnostic schema onto the canonical result. The
// decoded answer is kept as RawResponse.
func FromSchema(obj map[string]any) (*types.DiagnosisResult, error) {
	disease, _ := obj["disease"].(map[string]any)
	label := jsonutil.Str(disease, "name")
	if label == "" {
		label = jsonutil.Str(obj, "disease", "diagnosis", "label")
	}
	if label == "" {
		return nil, fmt.Errorf("%w: %w", jsonutil.ErrMalformed, errNoLabel)
	}

	d := &types.Diagnosis{
		Label:       label,
		Severity:    strings.ToLower(jsonutil.Str(disease, "severity")),
		Description: jsonutil.Str(disease, "description"),
	}
	if d.Severity == "" {
		d.Severity = strings.ToLower(jsonutil.Str(obj, "severity"))
	}
	if danger := jsonutil.Str(obj, "danger_if_ignored"); danger != "" {
		if d.Description != "" {
			d.Description += " "
		}
		d.Description += "If ignored: " + danger
	}
	if v, ok := confidence.FromRaw(obj); ok {
		d.Confidence = v
	} else if v, ok := confidence.Value(obj["confidence"]); ok {
		d.Confidence = v
	}

	var recs []types.Recommendation
	for _, g := range recGroups {
		for _, item := range jsonutil.List(jsonutil.Dig(obj, g.path...)) {
			title, desc := itemText(item)
			if title == "" {
				continue
			}
			recs = append(recs, types.Recommendation{
				ID:          fmt.Sprintf("rec-%d", len(recs)+1),
				Title:       title,
				Description: desc,
				Category:    g.category,
				Priority:    g.priority,
				Timeframe:   g.timeframe,
			})
		}
	}
	if recs == nil {
		recs = []types.Recommendation{}
	}
	return &types.DiagnosisResult{
		Diagnosis:       d,
		Recommendations: recs,
		RawResponse:     obj,
	}, nil
}

// FromPayload accepts either the canonical result document or the LLM schema.
// Custom endpoints may answer with either.
func FromPayload(obj map[string]any) (*types.DiagnosisResult, error) {
	diag, ok := obj["diagnosis"].(map[string]any)
	if !ok || jsonutil.Str(diag, "label") == "" {
		return FromSchema(obj)
	}
	// Confidence may arrive as "91%"; decode it separately.
	doc := jsonutil.Clone(obj)
	if d, ok := doc["diagnosis"].(map[string]any); ok {
		delete(d, "confidence")
	}
	var res types.DiagnosisResult
	b, err := jsonutil.MarshalNoEscape(doc)
	if err != nil {
		return nil, err
	}
	if err := jsonutil.UnmarshalSanitized(string(b), &res); err != nil {
		return nil, err
	}
	if res.Diagnosis == nil {
		return nil, fmt.Errorf("%w: %w", jsonutil.ErrMalformed, errNoLabel)
	}
	if v, ok := confidence.Value(diag["confidence"]); ok {
		res.Diagnosis.Confidence = v
	}
	for i := range res.Recommendations {
		if res.Recommendations[i].ID == "" {
			res.Recommendations[i].ID = fmt.Sprintf("rec-%d", i+1)
		}
	}
	if res.Recommendations == nil {
		res.Recommendations = []types.Recommendation{}
	}
	res.Precheck, res.Weather, res.ActionPlan = nil, nil, nil
	res.RawResponse = obj
	return &res, nil
}

// MockResult is the deterministic last tier. It never depends on the photo.
func MockResult(req *types.DiagnosisRequest) *types.DiagnosisResult {
	crop := "the crop"
	if req != nil && strings.TrimSpace(req.Metadata.CropType) != "" {
		crop = strings.TrimSpace(req.Metadata.CropType)
	}
	recs := []types.Recommendation{
		{ID: "rec-1", Title: "Isolate affected plants", Description: "Remove badly affected leaves and keep them away from healthy plants.", Category: "immediate-action", Priority: "high", Timeframe: "0-2 days"},
		{ID: "rec-2", Title: "Scout the field", Description: "Walk the field and count plants of " + crop + " showing the same symptoms.", Category: "monitoring", Priority: "medium", Timeframe: "1 week"},
		{ID: "rec-3", Title: "Ask an extension officer", Description: "Share the photo with a local extension officer to confirm before spraying.", Category: "advice", Priority: "medium", Timeframe: "1 week"},
	}
	return &types.DiagnosisResult{
		Source:       types.SourceMock,
		Provider:     types.SourceMock,
		ModelVersion: "mock-v1",
		Diagnosis: &types.Diagnosis{
			Label:       "Leaf Spot (suspected)",
			Confidence:  0.55,
			Severity:    "moderate",
			Description: "No inference provider was reachable. This is a generic placeholder result.",
		},
		Recommendations: recs,
		RawResponse: map[string]any{
			"disease": map[string]any{"name": "Leaf Spot (suspected)"},
			"confidence_explanation": map[string]any{
				"confidence_score": 0.55,
				"reasoning":        "Offline placeholder",
				"when_to_recheck":  "When a provider is available",
			},
		},
	}
}

// itemText accepts "do x" or {"title": "do x", "description": "..."}.
func itemText(item any) (string, string) {
	switch t := item.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s
	case map[string]any:
		title := jsonutil.Str(t, "title", "action", "name", "product")
		desc := jsonutil.Str(t, "description", "details", "instructions")
		if desc == "" {
			desc = title
		}
		return title, desc
	}
	return "", ""
}
