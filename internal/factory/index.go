package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/config"
	"github.com/bondedhq/link-server/internal/retrieval"
)

// NewIndex creates the document index based on config.
// Launches async bootstrap with short timeout; returns the index immediately
// for fast startup.
func NewIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (retrieval.Index, error) {
	if cfg.SearchIndexURL == "" {
		return nil, fmt.Errorf("search index URL not configured - required for service operation")
	}

	idx, err := retrieval.NewWeaviateIndex(cfg.SearchIndexURL)
	if err != nil {
		return nil, err
	}

	go func() {
		bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		defer cancel()
		if err := retrieval.BootstrapWeaviate(bootstrapCtx, cfg.SearchIndexURL); err != nil {
			log.Warn().Err(err).Str("url", cfg.SearchIndexURL).Msg("document index bootstrap failed")
		} else {
			log.Debug().Str("url", cfg.SearchIndexURL).Msg("document index bootstrap completed")
		}
	}()

	return idx, nil
}
