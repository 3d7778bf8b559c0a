package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string
	Pipeline PipelineConfig
	Weather  WeatherConfig
	Store    StoreConfig
}

// PipelineConfig is the immutable slice of configuration threaded through the
// pipeline constructors.
type PipelineConfig struct {
	PrecheckEnabled bool
	PlannerEnabled  bool
	LLMProvider     string
	LLMBaseURL      string
	LLMRPS          float64
	LLMBurst        int
	Quality         StageConfig
	Diagnosis       StageConfig
	Planner         StageConfig
}

// StageConfig holds one stage's provider settings. Empty EndpointURL disables
// the custom-endpoint tier; empty APIKey disables the LLM tier.
type StageConfig struct {
	Name            string
	EndpointURL     string
	EndpointKey     string
	APIKey          string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
}

type WeatherConfig struct {
	Enabled   bool
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	RedisAddr string
	RedisDB   int
}

type StoreConfig struct {
	DatabaseURL string
	CacheSize   int
	Artifact    ArtifactConfig
}

type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether every field needed for the image bucket is set.
func (a ArtifactConfig) CanUseS3() bool {
	return strings.TrimSpace(a.Endpoint) != "" &&
		strings.TrimSpace(a.AccessKey) != "" &&
		strings.TrimSpace(a.SecretKey) != "" &&
		strings.TrimSpace(a.Bucket) != ""
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	// ProviderFake answers with canned text; used for demos and tests.
	ProviderFake = "fake"
)

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv), nil
}

// FromEnv builds a Config from a lookup function, which keeps tests off the
// process environment.
func FromEnv(getenv func(string) string) *Config {
	e := env{get: getenv}

	port := e.str("PORT")
	if port == "" {
		port = ":8080"
	} else if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	provider := strings.ToLower(e.str("LLM_PROVIDER"))
	switch provider {
	case ProviderOpenAI, ProviderFake:
	default:
		provider = ProviderGemini
	}

	return &Config{
		Port:     port,
		Env:      firstNonEmpty(e.str("APP_ENV"), "local"),
		LogLevel: firstNonEmpty(e.str("LOG_LEVEL"), "info"),
		Pipeline: PipelineConfig{
			PrecheckEnabled: e.boolean("PRECHECK_ENABLED", true),
			PlannerEnabled:  e.boolean("PLANNER_ENABLED", true),
			LLMProvider:     provider,
			LLMBaseURL:      e.str("LLM_BASE_URL"),
			LLMRPS:          e.float("LLM_RPS", 0),
			LLMBurst:        e.integer("LLM_BURST", 1),
			Quality:         e.stage("QUALITY", provider, 512, 8*time.Second),
			Diagnosis:       e.stage("DIAGNOSIS", provider, 2048, 20*time.Second),
			Planner:         e.stage("PLANNER", provider, 2048, 20*time.Second),
		},
		Weather: WeatherConfig{
			Enabled:   e.boolean("WEATHER_ENABLED", true),
			BaseURL:   firstNonEmpty(e.str("WEATHER_BASE_URL"), "https://api.open-meteo.com/v1/forecast"),
			Timeout:   e.millis("WEATHER_TIMEOUT_MS", 6*time.Second),
			CacheSize: e.integer("WEATHER_CACHE_SIZE", 512),
			CacheTTL:  e.duration("WEATHER_CACHE_TTL", 30*time.Minute),
			RedisAddr: e.str("REDIS_ADDR"),
			RedisDB:   e.integer("REDIS_DB", 0),
		},
		Store: StoreConfig{
			DatabaseURL: e.str("DATABASE_URL"),
			CacheSize:   e.integer("RESULT_CACHE_SIZE", 1024),
			Artifact: ArtifactConfig{
				Endpoint:  e.str("ARTIFACT_S3_ENDPOINT"),
				Region:    firstNonEmpty(e.str("ARTIFACT_S3_REGION"), "us-east-1"),
				AccessKey: firstNonEmpty(e.str("ARTIFACT_S3_ACCESS_KEY"), e.str("MINIO_ROOT_USER")),
				SecretKey: firstNonEmpty(e.str("ARTIFACT_S3_SECRET_KEY"), e.str("MINIO_ROOT_PASSWORD")),
				Bucket:    firstNonEmpty(e.str("ARTIFACT_S3_BUCKET"), "cropdoc-photos"),
				UseSSL:    e.boolean("ARTIFACT_S3_USE_SSL", true),
			},
		},
	}
}

// DefaultPipeline is the configuration with nothing external wired: every
// stage falls back to its built-in tier.
func DefaultPipeline() PipelineConfig {
	return FromEnv(func(string) string { return "" }).Pipeline
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-2.5-flash"
}

type env struct {
	get func(string) string
}

func (e env) str(key string) string {
	if e.get == nil {
		return ""
	}
	return strings.TrimSpace(e.get(key))
}

// first returns the value of the first prefix that defines prefix+suffix, in
// the same spirit as LLM_/GEMINI_ rate limit lookups.
func (e env) first(suffix string, prefixes ...string) string {
	for _, p := range prefixes {
		if v := e.str(p + suffix); v != "" {
			return v
		}
	}
	return ""
}

func (e env) stage(name, provider string, tokens int, timeout time.Duration) StageConfig {
	prefixes := []string{name + "_", "LLM_"}
	sc := StageConfig{
		Name:            strings.ToLower(name),
		EndpointURL:     e.first("ENDPOINT_URL", prefixes...),
		EndpointKey:     e.first("ENDPOINT_KEY", prefixes...),
		APIKey:          e.first("API_KEY", prefixes...),
		Model:           firstNonEmpty(e.first("MODEL", prefixes...), defaultModel(provider)),
		MaxOutputTokens: tokens,
		Timeout:         timeout,
	}
	if sc.APIKey == "" && provider == ProviderGemini {
		sc.APIKey = firstNonEmpty(e.str("GEMINI_API_KEY"), e.str("GOOGLE_API_KEY"))
	}
	if sc.APIKey == "" && provider == ProviderOpenAI {
		sc.APIKey = e.str("OPENAI_API_KEY")
	}
	if v := e.first("MAX_OUTPUT_TOKENS", prefixes...); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sc.MaxOutputTokens = n
		}
	}
	if v := e.first("TIMEOUT_MS", prefixes...); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sc.Timeout = time.Duration(n) * time.Millisecond
		}
	}
	return sc
}

func (e env) boolean(key string, def bool) bool {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (e env) integer(key string, def int) int {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (e env) float(key string, def float64) float64 {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func (e env) millis(key string, def time.Duration) time.Duration {
	n := e.integer(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (e env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
