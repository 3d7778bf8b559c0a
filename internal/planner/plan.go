package planner

import (
	"errors"
	"fmt"
	"strings"

	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

var errNoPhases = errors.New("plan has no phases")

// Parse maps a decoded plan onto the canonical type. Missing ids are filled in
// as phase-N and step-N; related recommendation ids are kept as given.
func Parse(obj map[string]any) (*types.ActionPlan, error) {
	plan := &types.ActionPlan{
		Summary: jsonutil.Str(obj, "summary", "overview"),
		Phases:  []types.Phase{},
	}
	stepN := 0
	for _, item := range jsonutil.List(jsonutil.Dig(obj, "phases")) {
		pm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title := jsonutil.Str(pm, "title", "name")
		if title == "" {
			continue
		}
		ph := types.Phase{
			ID:        jsonutil.Str(pm, "id"),
			Title:     title,
			Timeframe: jsonutil.Str(pm, "timeframe", "time_frame"),
			Priority:  strings.ToLower(jsonutil.Str(pm, "priority")),
			Goals:     jsonutil.Strings(pm["goals"]),
			Steps:     []types.Step{},
		}
		if ph.ID == "" {
			ph.ID = fmt.Sprintf("phase-%d", len(plan.Phases)+1)
		}
		for _, sv := range jsonutil.List(pm["steps"]) {
			st, ok := parseStep(sv)
			if !ok {
				continue
			}
			stepN++
			if st.ID == "" {
				st.ID = fmt.Sprintf("step-%d", stepN)
			}
			ph.Steps = append(ph.Steps, st)
		}
		plan.Phases = append(plan.Phases, ph)
	}
	if len(plan.Phases) == 0 {
		return nil, fmt.Errorf("%w: %w", jsonutil.ErrMalformed, errNoPhases)
	}
	return plan, nil
}

func parseStep(v any) (types.Step, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return types.Step{}, false
		}
		return types.Step{Title: s, RelatedRecommendationIDs: []string{}}, true
	case map[string]any:
		title := jsonutil.Str(t, "title", "action", "name")
		if title == "" {
			return types.Step{}, false
		}
		related := t["related_recommendation_ids"]
		if related == nil {
			related = t["relatedRecommendationIds"]
		}
		return types.Step{
			ID:                       jsonutil.Str(t, "id"),
			Title:                    title,
			Description:              jsonutil.Str(t, "description", "details"),
			Category:                 strings.ToLower(jsonutil.Str(t, "category")),
			RelatedRecommendationIDs: jsonutil.Strings(related),
		}, true
	}
	return types.Step{}, false
}

// MockPlan is the deterministic last tier: a single observation phase with no
// chemical steps. Chemical recommendations are never referenced.
func MockPlan(in Input) *types.ActionPlan {
	label := "the problem"
	if in.Diagnosis != nil && in.Diagnosis.Label != "" {
		label = in.Diagnosis.Label
	}
	related := []string{}
	for _, r := range in.Recommendations {
		if r.ID == "" || strings.Contains(strings.ToLower(r.Category), "chemical") {
			continue
		}
		related = append(related, r.ID)
	}
	return &types.ActionPlan{
		Summary:  fmt.Sprintf("Observe the field and confirm %s before acting further.", label),
		Source:   types.SourceMock,
		Provider: TierMock,
		Phases: []types.Phase{{
			ID:        "phase-1",
			Title:     "Observe the field",
			Timeframe: "next 7 days",
			Priority:  "medium",
			Goals:     []string{"Confirm whether symptoms are spreading", "Collect clear photos for a second opinion"},
			Steps: []types.Step{
				{
					ID:                       "step-1",
					Title:                    "Inspect plants every two days",
					Description:              "Check the same rows each time and note new spots, wilting or pests.",
					Category:                 "monitoring",
					RelatedRecommendationIDs: related,
				},
				{
					ID:                       "step-2",
					Title:                    "Photograph affected plants",
					Description:              "Take close, well-lit photos of the worst leaves and resubmit them.",
					Category:                 "monitoring",
					RelatedRecommendationIDs: []string{},
				},
			},
		}},
	}
}
