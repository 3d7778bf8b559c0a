package pipeline

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"cropdoc/internal/cascade"
	"cropdoc/internal/config"
	"cropdoc/internal/diagnose"
	"cropdoc/internal/llm"
	"cropdoc/internal/metrics"
	"cropdoc/internal/planner"
	"cropdoc/internal/quality"
	"cropdoc/internal/weather"
)

// Built is an Orchestrator together with the resources it owns.
type Built struct {
	*Orchestrator
	closers []func() error
}

// Close releases LLM clients and cache connections.
func (b *Built) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig wires every stage from cfg. Stages without credentials keep
// only their built-in tier.
func NewFromConfig(ctx context.Context, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*Built, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pc := cfg.Pipeline
	b := &Built{}
	opts := llm.Options{Logger: log, Metrics: m, RPS: pc.LLMRPS, Burst: pc.LLMBurst}
	httpClient := &http.Client{}

	deps := func(sc config.StageConfig) (cascade.Deps, error) {
		client, err := llm.FromStage(ctx, pc.LLMProvider, pc.LLMBaseURL, sc, opts)
		if err != nil {
			return cascade.Deps{}, err
		}
		if client != nil {
			b.closers = append(b.closers, client.Close)
			log.Info("llm tier enabled", zap.String("stage", sc.Name), zap.String("client", client.Name()))
		}
		return cascade.Deps{LLM: client, HTTP: httpClient, Log: log, Metrics: m}, nil
	}

	var d Deps
	if pc.PrecheckEnabled {
		qd, err := deps(pc.Quality)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		d.Gate = quality.NewGate(pc.Quality, qd)
	}
	dd, err := deps(pc.Diagnosis)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	d.Diagnoser = diagnose.New(pc.Diagnosis, dd)
	if pc.PlannerEnabled {
		pd, err := deps(pc.Planner)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		d.Planner = planner.New(pc.Planner, pd)
	}

	if cfg.Weather.Enabled {
		var remote weather.RemoteCache
		if cfg.Weather.RedisAddr != "" {
			rc, err := weather.NewRedisCache(ctx, cfg.Weather.RedisAddr, cfg.Weather.RedisDB)
			if err != nil {
				log.Warn("redis weather cache disabled", zap.String("addr", cfg.Weather.RedisAddr), zap.Error(err))
			} else {
				remote = rc
				b.closers = append(b.closers, rc.Close)
			}
		}
		om := weather.NewOpenMeteo(cfg.Weather.BaseURL, cfg.Weather.Timeout)
		d.Weather = weather.NewCached(om, cfg.Weather.CacheSize, cfg.Weather.CacheTTL, remote, log)
	}

	d.Log = log
	d.Metrics = m
	b.Orchestrator = New(pc, d)
	log.Info("pipeline ready",
		zap.Bool("precheck", pc.PrecheckEnabled),
		zap.Bool("planner", pc.PlannerEnabled),
		zap.Bool("weather", d.Weather != nil),
		zap.String("llm_provider", pc.LLMProvider))
	return b, nil
}

