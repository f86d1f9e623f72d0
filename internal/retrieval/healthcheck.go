package retrieval

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/health"
)

// pingHealthChecker monitors a retrieval component via its HealthPing.
// Components without one are reported healthy.
type pingHealthChecker struct {
	name         string
	target       interface{}
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewIndexHealthChecker creates a health checker for the document index.
func NewIndexHealthChecker(idx Index, log zerolog.Logger, probeTimeout time.Duration) health.HealthChecker {
	hc := &pingHealthChecker{name: "index", target: idx, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

// NewEmbedderHealthChecker creates a health checker for the embedding provider.
func NewEmbedderHealthChecker(embed Embeddings, log zerolog.Logger, probeTimeout time.Duration) health.HealthChecker {
	hc := &pingHealthChecker{name: "embedder", target: embed, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0)
	return hc
}

func (hc *pingHealthChecker) Name() string    { return hc.name }
func (hc *pingHealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

func (hc *pingHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		ok := true
		if p, okCast := hc.target.(health.HealthPinger); okCast {
			if err := p.HealthPing(checkCtx); err != nil {
				ok = false
				hc.log.Error().Stack().Str("checker", hc.name).Err(err).Msg("health check failed")
			}
		}
		if ok {
			hc.healthy.Store(1)
		} else {
			hc.healthy.Store(0)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
