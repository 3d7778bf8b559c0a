package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropdoc/internal/cascade"
	"cropdoc/internal/config"
	"cropdoc/internal/llm"
	"cropdoc/internal/types"
	"cropdoc/internal/util/jsonutil"
)

func diagnosed(conf float64) *types.DiagnosisResult {
	return &types.DiagnosisResult{
		Source:   types.SourceLLM,
		Provider: "gemini",
		Diagnosis: &types.Diagnosis{
			Label:      "Early Blight",
			Confidence: conf,
			Severity:   "moderate",
		},
		Recommendations: []types.Recommendation{
			{ID: "rec-1", Title: "Remove infected leaves", Category: "immediate-action", Priority: "high"},
			{ID: "rec-2", Title: "Chlorothalonil spray", Category: "chemical-treatment", Priority: "medium"},
			{ID: "rec-3", Title: "Copper spray", Category: "organic-treatment", Priority: "medium"},
		},
		RawResponse: map[string]any{"disease": map[string]any{"name": "Early Blight"}},
	}
}

func TestPlan_NothingConfiguredReturnsMock(t *testing.T) {
	p := New(config.StageConfig{}, cascade.Deps{})
	plan := p.Plan(context.Background(), diagnosed(82), types.Metadata{})

	require.NotNil(t, plan)
	assert.Equal(t, types.SourceMock, plan.Source)
	require.Len(t, plan.Phases, 1)
	assert.Equal(t, "Observe the field", plan.Phases[0].Title)
	for _, st := range plan.Phases[0].Steps {
		assert.NotContains(t, strings.ToLower(st.Category), "chemical")
		assert.NotContains(t, st.RelatedRecommendationIDs, "rec-2")
	}
	assert.Equal(t, []string{"rec-1", "rec-3"}, plan.Phases[0].Steps[0].RelatedRecommendationIDs)
}

func TestMockPlan_NoDiagnosis(t *testing.T) {
	plan := MockPlan(Input{})
	require.Len(t, plan.Phases, 1)
	assert.Contains(t, plan.Summary, "the problem")
}

func TestPlan_LLMTier(t *testing.T) {
	fake := llm.NewFakeClient()
	p := New(config.StageConfig{Timeout: time.Second}, cascade.Deps{LLM: fake})
	plan := p.Plan(context.Background(), diagnosed(82), types.Metadata{CropType: "tomato"})

	want := &types.ActionPlan{
		Summary:  "Contain early blight, then protect new growth.",
		Source:   types.SourceLLM,
		Provider: "FakeLLM",
		Phases: []types.Phase{
			{
				ID: "phase-1", Title: "Immediate containment", Timeframe: "0-2 days", Priority: "high",
				Goals: []string{"Stop spread to healthy leaves"},
				Steps: []types.Step{{ID: "step-1", Title: "Prune infected leaves", Description: "Remove lower leaves with lesions and bag them.", Category: "cultural", RelatedRecommendationIDs: []string{"rec-1"}}},
			},
			{
				ID: "phase-2", Title: "Protect and monitor", Timeframe: "1-3 weeks", Priority: "medium",
				Goals: []string{"Keep new foliage clean"},
				Steps: []types.Step{{ID: "step-2", Title: "Apply copper spray", Description: "Spray every 7-10 days in dry weather.", Category: "organic", RelatedRecommendationIDs: []string{"rec-3"}}},
			},
		},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, fake.Prompts(), 1)
	prompt := fake.Prompts()[0]
	assert.Empty(t, prompt.Image)
	assert.Contains(t, prompt.Text, `"rec-2"`)
	assert.Contains(t, prompt.Text, `"cropType":"tomato"`)
	assert.NotContains(t, prompt.Text, "emphasize monitoring")
}

func TestPlan_LowConfidencePromptsMonitoring(t *testing.T) {
	fake := llm.NewFakeClient()
	p := New(config.StageConfig{Timeout: time.Second}, cascade.Deps{LLM: fake})
	p.Plan(context.Background(), diagnosed(45), types.Metadata{})

	require.Len(t, fake.Prompts(), 1)
	assert.Contains(t, fake.Prompts()[0].Text, "emphasize monitoring")
}

func TestPlan_LowConfidenceMockIsUnchanged(t *testing.T) {
	p := New(config.StageConfig{}, cascade.Deps{})
	low := p.Plan(context.Background(), diagnosed(10), types.Metadata{})
	high := p.Plan(context.Background(), diagnosed(95), types.Metadata{})
	if diff := cmp.Diff(high, low); diff != "" {
		t.Fatalf("mock plan should not depend on confidence:\n%s", diff)
	}
}

func TestPlan_MalformedLLMFallsToMock(t *testing.T) {
	fake := &llm.FakeClient{Responses: map[string]string{llm.PhasePlanner: `{"summary":"do things","phases":[]}`}}
	p := New(config.StageConfig{Timeout: time.Second}, cascade.Deps{LLM: fake})
	plan := p.Plan(context.Background(), diagnosed(80), types.Metadata{})
	assert.Equal(t, types.SourceMock, plan.Source)

	fake = &llm.FakeClient{Err: errors.New("boom")}
	p = New(config.StageConfig{Timeout: time.Second}, cascade.Deps{LLM: fake})
	plan = p.Plan(context.Background(), diagnosed(80), types.Metadata{})
	assert.Equal(t, types.SourceMock, plan.Source)
}

func TestPlan_CustomEndpoint(t *testing.T) {
	var got Input
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"actionPlan":{"summary":"s","phases":[{"title":"Now","steps":["Prune", {"title":"Spray","relatedRecommendationIds":["rec-9"]}]}]}}`))
	}))
	defer srv.Close()

	p := New(config.StageConfig{EndpointURL: srv.URL, Timeout: time.Second}, cascade.Deps{LLM: llm.NewFakeClient()})
	plan := p.Plan(context.Background(), diagnosed(70), types.Metadata{CropType: "rice"})

	assert.Equal(t, types.SourceCustomEndpoint, plan.Source)
	require.Len(t, plan.Phases, 1)
	ph := plan.Phases[0]
	assert.Equal(t, "phase-1", ph.ID)
	require.Len(t, ph.Steps, 2)
	assert.Equal(t, "step-1", ph.Steps[0].ID)
	assert.Equal(t, "step-2", ph.Steps[1].ID)
	// unknown ids are advisory and pass through untouched
	assert.Equal(t, []string{"rec-9"}, ph.Steps[1].RelatedRecommendationIDs)

	assert.Equal(t, "Early Blight", got.Diagnosis.Label)
	assert.Len(t, got.Recommendations, 3)
	assert.Equal(t, "rice", got.Metadata.CropType)
}

func TestParse(t *testing.T) {
	obj, err := jsonutil.ParseObject("```json\n{\"phases\":[{\"name\":\"A\",\"steps\":[{\"action\":\"x\"},{}]},{\"title\":\"\"},\"junk\"],}\n```")
	require.NoError(t, err)
	plan, err := Parse(obj)
	require.NoError(t, err)
	want := &types.ActionPlan{
		Phases: []types.Phase{{
			ID:    "phase-1",
			Title: "A",
			Goals: []string{},
			Steps: []types.Step{{ID: "step-1", Title: "x", RelatedRecommendationIDs: []string{}}},
		}},
	}
	if diff := cmp.Diff(want, plan, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	_, err = Parse(map[string]any{"summary": "nothing"})
	assert.ErrorIs(t, err, jsonutil.ErrMalformed)
}
