// Package app wires configuration, pipeline, storage and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"cropdoc/internal/config"
	"cropdoc/internal/metrics"
	"cropdoc/internal/pipeline"
	"cropdoc/internal/server"
)

type App struct {
	server   *server.Server
	pipeline *pipeline.Built
	stores   *stores
	log      *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	p, err := pipeline.NewFromConfig(ctx, cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	st, err := initStores(ctx, cfg.Store, log)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	h := server.NewHandler(p, server.Options{
		Results: st.results,
		Images:  st.images,
		Log:     log,
	})
	srv := server.New(cfg.Port, server.NewRouter(h, reg), log)

	return &App{server: srv, pipeline: p, stores: st, log: log}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, then releases pipeline and storage
// resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	return errors.Join(err, a.pipeline.Close(), a.stores.close())
}
