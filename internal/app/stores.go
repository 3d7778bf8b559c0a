package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cropdoc/internal/config"
	"cropdoc/internal/server"
	"cropdoc/internal/store"
)

type stores struct {
	results store.ResultStore
	images  server.ImageSink
	closers []func() error
}

func (s *stores) close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// initStores picks Postgres behind an LRU when DATABASE_URL is set and a
// bounded in-memory store otherwise. Photos go to S3 only when fully
// configured.
func initStores(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*stores, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st := &stores{}
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := store.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open result database: %w", err)
		}
		st.closers = append(st.closers, pg.Close)
		cached, err := store.NewCachedStore(pg, cfg.CacheSize)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		st.results = cached
		log.Info("result store: postgres")
	} else {
		mem, err := store.NewMemoryStore(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		st.results = mem
		log.Info("result store: in-memory", zap.Int("size", cfg.CacheSize))
	}

	if cfg.Artifact.CanUseS3() {
		images, err := store.NewImageStore(cfg.Artifact)
		if err != nil {
			_ = st.close()
			return nil, fmt.Errorf("failed to initialize photo store: %w", err)
		}
		st.images = images
		log.Info("photo store: s3", zap.String("bucket", cfg.Artifact.Bucket), zap.String("endpoint", cfg.Artifact.Endpoint))
	}
	return st, nil
}
