package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/config"
	"github.com/bondedhq/link-server/internal/retrieval"
)

// NewEmbedder creates the embedding provider from config.
// Launches optional async warmup; returns the provider immediately for fast startup.
func NewEmbedder(ctx context.Context, cfg *config.Config, log zerolog.Logger) retrieval.Embeddings {
	provider := retrieval.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel)

	go func() {
		warmupTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		warmupCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
		defer cancel()

		if vec, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).Int("vec_len", len(vec)).
				Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("model", cfg.EmbedModel).Msg("embedding provider warmup completed")
		}
	}()

	return provider
}
