package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv(envMap(nil))
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.True(t, cfg.Pipeline.PrecheckEnabled)
	assert.True(t, cfg.Pipeline.PlannerEnabled)
	assert.Equal(t, ProviderGemini, cfg.Pipeline.LLMProvider)
	assert.Equal(t, 8*time.Second, cfg.Pipeline.Quality.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.Diagnosis.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.Planner.Timeout)
	assert.Empty(t, cfg.Pipeline.Diagnosis.APIKey)
	assert.Empty(t, cfg.Pipeline.Diagnosis.EndpointURL)
	assert.Equal(t, 6*time.Second, cfg.Weather.Timeout)
	assert.False(t, cfg.Store.Artifact.CanUseS3())
}

func TestFromEnv_StageOverridesSharedDefault(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"LLM_API_KEY":               "shared",
		"LLM_MODEL":                 "gemini-2.0-flash",
		"LLM_TIMEOUT_MS":            "9000",
		"PLANNER_API_KEY":           "planner-key",
		"PLANNER_MAX_OUTPUT_TOKENS": "4096",
		"QUALITY_TIMEOUT_MS":        "3000",
		"DIAGNOSIS_ENDPOINT_URL":    "http://vision:9000/diagnose",
		"PRECHECK_ENABLED":          "false",
		"PLANNER_ENABLED":           "nope",
		"PORT":                      "9999",
	}))
	p := cfg.Pipeline
	assert.Equal(t, ":9999", cfg.Port)
	assert.False(t, p.PrecheckEnabled)
	assert.True(t, p.PlannerEnabled, "unparseable bool keeps the default")

	assert.Equal(t, "shared", p.Quality.APIKey)
	assert.Equal(t, "shared", p.Diagnosis.APIKey)
	assert.Equal(t, "planner-key", p.Planner.APIKey)
	assert.Equal(t, "gemini-2.0-flash", p.Planner.Model)
	assert.Equal(t, 4096, p.Planner.MaxOutputTokens)
	assert.Equal(t, 2048, p.Diagnosis.MaxOutputTokens)

	assert.Equal(t, 3*time.Second, p.Quality.Timeout)
	assert.Equal(t, 9*time.Second, p.Diagnosis.Timeout)

	assert.Equal(t, "http://vision:9000/diagnose", p.Diagnosis.EndpointURL)
	assert.Empty(t, p.Quality.EndpointURL)
}

func TestFromEnv_EndpointURLSharedDefault(t *testing.T) {
	p := FromEnv(envMap(map[string]string{
		"LLM_ENDPOINT_URL":       "http://inference:8080/run",
		"PLANNER_ENDPOINT_URL":   "http://planner:8080/plan",
		"DIAGNOSIS_ENDPOINT_KEY": "diag-key",
	})).Pipeline

	assert.Equal(t, "http://inference:8080/run", p.Quality.EndpointURL)
	assert.Equal(t, "http://inference:8080/run", p.Diagnosis.EndpointURL)
	assert.Equal(t, "http://planner:8080/plan", p.Planner.EndpointURL)
	assert.Equal(t, "diag-key", p.Diagnosis.EndpointKey)
	assert.Empty(t, p.Quality.EndpointKey)
}

func TestFromEnv_ProviderSpecificKeys(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{"GEMINI_API_KEY": "g"}))
	assert.Equal(t, "g", cfg.Pipeline.Diagnosis.APIKey)

	cfg = FromEnv(envMap(map[string]string{"LLM_PROVIDER": "OpenAI", "OPENAI_API_KEY": "o"}))
	assert.Equal(t, ProviderOpenAI, cfg.Pipeline.LLMProvider)
	assert.Equal(t, "o", cfg.Pipeline.Planner.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Pipeline.Planner.Model)
}

func TestArtifactConfig_CanUseS3(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"ARTIFACT_S3_ENDPOINT": "minio:9000",
		"MINIO_ROOT_USER":      "u",
		"MINIO_ROOT_PASSWORD":  "p",
	}))
	assert.True(t, cfg.Store.Artifact.CanUseS3())
	assert.Equal(t, "cropdoc-photos", cfg.Store.Artifact.Bucket)
}
