package types

import (
	"encoding/json"
	"strings"
)

// QualityStatus is the precheck verdict on a photo.
type QualityStatus string

const (
	QualityOK     QualityStatus = "ok"
	QualityRetry  QualityStatus = "retry"
	QualityReject QualityStatus = "reject"
)

// ParseQualityStatus maps free text onto the closed status set. Anything
// unrecognised, including the empty string, is treated as ok.
func ParseQualityStatus(s string) QualityStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retry":
		return QualityRetry
	case "reject", "rejected":
		return QualityReject
	default:
		return QualityOK
	}
}

func (s *QualityStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = QualityOK
		return nil
	}
	*s = ParseQualityStatus(raw)
	return nil
}

// QualityAssessment is produced once per request by the quality gate.
type QualityAssessment struct {
	IsPlant      bool          `json:"isPlant"`
	IsBlurry     bool          `json:"isBlurry"`
	QualityScore float64       `json:"qualityScore"`
	Status       QualityStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	Suggestions  []string      `json:"suggestions"`
	Source       string        `json:"source,omitempty"`
}

// DefaultQualityAssessment is what the gate returns when nothing could judge
// the photo.
func DefaultQualityAssessment() QualityAssessment {
	return QualityAssessment{
		IsPlant:      true,
		IsBlurry:     false,
		QualityScore: 1,
		Status:       QualityOK,
		Suggestions:  []string{},
		Source:       "default",
	}
}
