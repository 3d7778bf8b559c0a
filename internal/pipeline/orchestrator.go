// Package pipeline sequences one photo through gating, diagnosis,
// confidence normalization and planning.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cropdoc/internal/cascade"
	"cropdoc/internal/confidence"
	"cropdoc/internal/config"
	"cropdoc/internal/diagnose"
	"cropdoc/internal/logging"
	"cropdoc/internal/metrics"
	"cropdoc/internal/quality"
	"cropdoc/internal/types"
	"cropdoc/internal/weather"
)

// Gate judges whether a photo is worth diagnosing.
type Gate interface {
	Assess(ctx context.Context, req *types.DiagnosisRequest) types.QualityAssessment
}

// Diagnoser produces a diagnosis result and never fails.
type Diagnoser interface {
	Diagnose(ctx context.Context, req *types.DiagnosisRequest, w *types.WeatherSnapshot) *types.DiagnosisResult
}

// Planner sequences a diagnosis into an action plan and never fails.
type Planner interface {
	Plan(ctx context.Context, result *types.DiagnosisResult, meta types.Metadata) *types.ActionPlan
}

// Deps are the collaborators of an Orchestrator. Gate may be nil only when
// precheck is disabled; Weather may be nil.
type Deps struct {
	Gate      Gate
	Diagnoser Diagnoser
	Planner   Planner
	Weather   weather.Provider
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

type Orchestrator struct {
	cfg  config.PipelineConfig
	deps Deps
}

func New(cfg config.PipelineConfig, d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Diagnoser == nil {
		// mock tier only
		d.Diagnoser = diagnose.New(config.StageConfig{}, cascade.Deps{Log: d.Log, Metrics: d.Metrics})
	}
	return &Orchestrator{cfg: cfg, deps: d}
}

// Run always reaches Assembled and returns a result. Degradation shows up in
// the result's source and provider, never as an error.
func (o *Orchestrator) Run(ctx context.Context, req *types.DiagnosisRequest) *types.DiagnosisResult {
	if req == nil {
		req = &types.DiagnosisRequest{}
	}
	log := logging.For(ctx, o.deps.Log)
	obs := observerFrom(ctx)

	var precheck *types.QualityAssessment
	skip := false
	if o.cfg.PrecheckEnabled && o.deps.Gate != nil {
		emit(ctx, obs, StateGating, "")
		start := time.Now()
		a := o.deps.Gate.Assess(ctx, req)
		o.deps.Metrics.ObserveStage(StageQuality, time.Since(start))
		precheck = &a
		skip = quality.ShouldSkipInference(a)
	}

	var result *types.DiagnosisResult
	var w *types.WeatherSnapshot
	if skip {
		emit(ctx, obs, StateSkipped, precheck.Reason)
		result = quality.InvalidPhotoResult(*precheck)
		if !req.Metadata.Weather.IsEmpty() {
			w = req.Metadata.Weather
		}
	} else {
		emit(ctx, obs, StateProceeding, "")
		w = o.resolveWeather(ctx, log, req.Metadata)

		emit(ctx, obs, StateDiagnosing, "")
		start := time.Now()
		result = o.deps.Diagnoser.Diagnose(ctx, req, w)
		o.deps.Metrics.ObserveStage(StageDiagnosis, time.Since(start))
		if result == nil {
			// Diagnosers are total; guard anyway so Assembled is always reached.
			result = &types.DiagnosisResult{Source: types.SourceMock, Provider: "mock", Recommendations: []types.Recommendation{}}
		}
	}
	result.Precheck = precheck
	result.Weather = w

	emit(ctx, obs, StateNormalizing, "")
	confidence.Apply(result, result.Diagnosis)

	planned := false
	if o.cfg.PlannerEnabled && o.deps.Planner != nil && !result.IsInvalidPhoto() {
		emit(ctx, obs, StatePlanning, "")
		start := time.Now()
		result.ActionPlan = o.deps.Planner.Plan(ctx, result, req.Metadata)
		o.deps.Metrics.ObserveStage(StagePlanner, time.Since(start))
		planned = result.ActionPlan != nil
	} else {
		emit(ctx, obs, StatePlanningSkipped, "")
	}

	if result.ID == "" {
		result.ID = o.deps.NewID()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = o.deps.Now().UTC()
	}
	o.deps.Metrics.ObserveRun(result.Source, planned)

	label := ""
	if result.Diagnosis != nil {
		label = result.Diagnosis.Label
	}
	log.Info("pipeline run assembled",
		zap.String("result_id", result.ID),
		zap.String("source", result.Source),
		zap.String("provider", result.Provider),
		zap.String("label", label),
		zap.Bool("skipped", skip),
		zap.Bool("planned", planned))
	emit(ctx, obs, StateAssembled, result.ID)
	return result
}

// resolveWeather prefers the snapshot the client sent and otherwise asks the
// weather provider. Any failure yields nil.
func (o *Orchestrator) resolveWeather(ctx context.Context, log *zap.Logger, meta types.Metadata) *types.WeatherSnapshot {
	if !meta.Weather.IsEmpty() {
		return meta.Weather
	}
	if o.deps.Weather == nil || !meta.HasCoordinates() {
		return nil
	}
	start := time.Now()
	w, err := o.deps.Weather.Fetch(ctx, *meta.Latitude, *meta.Longitude)
	o.deps.Metrics.ObserveStage(StageWeather, time.Since(start))
	if err != nil {
		log.Warn("weather lookup failed", zap.Error(err))
		return nil
	}
	if w.IsEmpty() {
		return nil
	}
	return w
}
