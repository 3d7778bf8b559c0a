package types

import "time"

// Result provenance values for DiagnosisResult.Source.
const (
	SourceCustomEndpoint  = "custom-endpoint"
	SourceLLM             = "llm"
	SourceMock            = "mock"
	SourcePrecheckFailure = "precheck-failure"
)

// InvalidPhotoLabel marks the synthetic result produced for rejected photos.
const InvalidPhotoLabel = "Invalid Photo"

// Diagnosis is the canonical finding. Confidence may hold a provider-native
// scale until it passes through confidence.Apply; afterwards it is an integer
// in [0,100].
type Diagnosis struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Recommendation is one suggested action. IDs are advisory and may repeat.
type Recommendation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Timeframe   string `json:"timeframe,omitempty"`
}

// DiagnosisResult is the document handed to storage and HTTP callers. The
// orchestrator enriches it in place (precheck, weather, plan).
type DiagnosisResult struct {
	ID              string             `json:"id,omitempty"`
	Source          string             `json:"source"`
	Provider        string             `json:"provider"`
	ModelVersion    string             `json:"modelVersion,omitempty"`
	Diagnosis       *Diagnosis         `json:"diagnosis"`
	Recommendations []Recommendation   `json:"recommendations"`
	RawResponse     map[string]any     `json:"rawResponse,omitempty"`
	Precheck        *QualityAssessment `json:"precheck"`
	Weather         *WeatherSnapshot   `json:"weather"`
	ActionPlan      *ActionPlan        `json:"actionPlan,omitempty"`
	ImageKey        string             `json:"imageKey,omitempty"`
	ImageURL        string             `json:"imageUrl,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// IsInvalidPhoto reports whether r is the synthetic precheck-failure result.
func (r *DiagnosisResult) IsInvalidPhoto() bool {
	if r == nil {
		return false
	}
	if r.Source == SourcePrecheckFailure {
		return true
	}
	return r.Diagnosis != nil && r.Diagnosis.Label == InvalidPhotoLabel
}

// ActionPlan sequences recommendations into time-bucketed phases.
type ActionPlan struct {
	Summary  string  `json:"summary"`
	Phases   []Phase `json:"phases"`
	Source   string  `json:"source,omitempty"`
	Provider string  `json:"provider,omitempty"`
}

type Phase struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Timeframe string   `json:"timeframe,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Goals     []string `json:"goals"`
	Steps     []Step   `json:"steps"`
}

// Step is one actionable item. RelatedRecommendationIDs point at
// Recommendation.ID values but are never checked.
type Step struct {
	ID                       string   `json:"id"`
	Title                    string   `json:"title"`
	Description              string   `json:"description,omitempty"`
	Category                 string   `json:"category,omitempty"`
	RelatedRecommendationIDs []string `json:"relatedRecommendationIds"`
}
