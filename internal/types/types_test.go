package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffectedParts_UnmarshalVariants(t *testing.T) {
	cases := map[string]AffectedParts{
		`["leaf","stem"]`:       {"leaf", "stem"},
		`"leaf, stem ,,fruit"`:  {"leaf", "stem", "fruit"},
		`["leaf, stem","root"]`: {"leaf", "stem", "root"},
		`null`:                  nil,
		`""`:                    nil,
		`42`:                    nil,
	}
	for in, want := range cases {
		var got AffectedParts
		require.NoError(t, json.Unmarshal([]byte(in), &got), in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseQualityStatus(t *testing.T) {
	assert.Equal(t, QualityOK, ParseQualityStatus("OK"))
	assert.Equal(t, QualityRetry, ParseQualityStatus(" retry "))
	assert.Equal(t, QualityReject, ParseQualityStatus("REJECT"))
	assert.Equal(t, QualityOK, ParseQualityStatus("maybe"))
	assert.Equal(t, QualityOK, ParseQualityStatus(""))

	var qa QualityAssessment
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Reject","qualityScore":0.2}`), &qa))
	assert.Equal(t, QualityReject, qa.Status)
	require.NoError(t, json.Unmarshal([]byte(`{"status":7}`), &qa))
	assert.Equal(t, QualityOK, qa.Status)
}

func TestImageMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", (&DiagnosisRequest{Image: png}).ImageMIME())
	assert.Equal(t, "image/webp", (&DiagnosisRequest{Image: png, MIMEType: "image/webp"}).ImageMIME())
	assert.Equal(t, "image/jpeg", (&DiagnosisRequest{Image: []byte("hello")}).ImageMIME())
}

func TestIsInvalidPhoto(t *testing.T) {
	assert.True(t, (&DiagnosisResult{Source: SourcePrecheckFailure}).IsInvalidPhoto())
	assert.True(t, (&DiagnosisResult{Diagnosis: &Diagnosis{Label: InvalidPhotoLabel}}).IsInvalidPhoto())
	assert.False(t, (&DiagnosisResult{Source: SourceMock, Diagnosis: &Diagnosis{Label: "Leaf rust"}}).IsInvalidPhoto())
	var nilRes *DiagnosisResult
	assert.False(t, nilRes.IsInvalidPhoto())
}

func TestWeatherSnapshotIsEmpty(t *testing.T) {
	var w *WeatherSnapshot
	assert.True(t, w.IsEmpty())
	assert.True(t, (&WeatherSnapshot{Condition: "  "}).IsEmpty())
	assert.False(t, (&WeatherSnapshot{HeatLevel: "high"}).IsEmpty())
}
