package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropdoc/internal/types"
)

func TestDiagnoseCommand_Offline(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "fake")
	t.Setenv("WEATHER_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	img := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(img, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"diagnose", img, "--crop", "tomato", "--parts", "leaf,stem", "--compact"})
	require.NoError(t, cmd.Execute())

	var res types.DiagnosisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "Early Blight", res.Diagnosis.Label)
	assert.Equal(t, 82.0, res.Diagnosis.Confidence)
	require.NotNil(t, res.ActionPlan)
}

func TestDiagnoseCommand_MissingFile(t *testing.T) {
	t.Setenv("WEATHER_ENABLED", "false")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"diagnose", filepath.Join(t.TempDir(), "nope.jpg")})
	assert.Error(t, cmd.Execute())
}

func TestDiagnoseFlags_Metadata(t *testing.T) {
	f := &diagnoseFlags{crop: " maize ", parts: "leaf, , root", lat: 1.5, lon: 2.5, hasCoord: true}
	m := f.metadata()
	assert.Equal(t, "maize", m.CropType)
	assert.Equal(t, types.AffectedParts{"leaf", "root"}, m.AffectedParts)
	require.True(t, m.HasCoordinates())
	assert.Equal(t, 2.5, *m.Longitude)

	assert.False(t, (&diagnoseFlags{}).metadata().HasCoordinates())
}
