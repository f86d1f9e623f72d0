// Package factcache stores and serves time-bounded verified facts.
package factcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/store"
)

// Config carries the write gate and retention policy.
type Config struct {
	WriteThreshold      float64
	EventTTLDays        int
	EventUnknownTTLDays int
	ProfileTTLDays      int
	OutreachTTLDays     int
	LookupLimit         int
}

// Cache is the verified-fact layer over the store. Expired facts are swept
// lazily on lookup and are never served.
type Cache struct {
	facts store.Facts
	cfg   Config
	log   zerolog.Logger
	nowFn func() time.Time
}

func New(facts store.Facts, cfg Config, log zerolog.Logger) *Cache {
	return &Cache{facts: facts, cfg: cfg, log: log, nowFn: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the cache's clock. Test hook.
func (c *Cache) WithClock(fn func() time.Time) *Cache {
	c.nowFn = fn
	return c
}

// Lookup returns unexpired facts matching any of the tags, in discovery
// order, capped at the configured limit. Tags match key or value
// case-insensitively. An empty tag list returns the most recent facts.
func (c *Cache) Lookup(ctx context.Context, universityID string, tags []string) ([]*model.VerifiedFact, error) {
	now := c.nowFn()
	if n, err := c.facts.DeleteExpired(ctx, now); err != nil {
		c.log.Warn().Err(err).Msg("expired fact sweep failed")
	} else if n > 0 {
		c.log.Debug().Int("swept", n).Msg("expired facts removed")
	}

	limit := c.cfg.LookupLimit
	if limit <= 0 {
		limit = 10
	}

	if len(tags) == 0 {
		return c.filterExpired(now, c.list(ctx, universityID, limit))
	}

	seen := make(map[string]bool)
	var out []*model.VerifiedFact
	for _, tag := range tags {
		hits, err := c.facts.Search(ctx, universityID, tag, limit)
		if err != nil {
			return nil, err
		}
		for _, f := range hits {
			if seen[f.FactID] {
				continue
			}
			seen[f.FactID] = true
			out = append(out, f)
			if len(out) >= limit {
				return c.filterExpired(now, out)
			}
		}
	}
	return c.filterExpired(now, out)
}

func (c *Cache) list(ctx context.Context, universityID string, limit int) []*model.VerifiedFact {
	all, err := c.facts.List(ctx, universityID, limit)
	if err != nil {
		c.log.Warn().Err(err).Msg("fact list failed")
		return nil
	}
	return all
}

func (c *Cache) filterExpired(now time.Time, facts []*model.VerifiedFact) ([]*model.VerifiedFact, error) {
	out := facts[:0]
	for _, f := range facts {
		if f.ExpiresAt.After(now) {
			out = append(out, f)
		}
	}
	return out, nil
}

// expiry computes the retention window for a fact. Event facts anchored to a
// known start time live a week past it; events without one get the shorter
// generic window. Profile and club facts are long-lived, outreach summaries
// short-lived.
func (c *Cache) expiry(f *model.VerifiedFact, eventStart *time.Time) time.Time {
	days := func(n int) time.Time { return f.VerifiedAt.AddDate(0, 0, n) }
	switch f.Category {
	case "event":
		if eventStart != nil {
			return eventStart.AddDate(0, 0, c.cfg.EventTTLDays)
		}
		return days(c.cfg.EventUnknownTTLDays)
	case "profile", "club":
		return days(c.cfg.ProfileTTLDays)
	case "outreach":
		return days(c.cfg.OutreachTTLDays)
	}
	return days(c.cfg.EventUnknownTTLDays)
}

// Write persists a fact when its confidence clears the write gate.
// VerifiedAt and ExpiresAt are filled here; eventStart anchors event-fact
// expiry when known. Returns (false, nil) when gated.
func (c *Cache) Write(ctx context.Context, f *model.VerifiedFact, eventStart *time.Time) (bool, error) {
	if f.Confidence < c.cfg.WriteThreshold {
		return false, nil
	}
	f.VerifiedAt = c.nowFn()
	f.ExpiresAt = c.expiry(f, eventStart)
	if _, err := c.facts.Create(ctx, f); err != nil {
		return false, err
	}
	return true, nil
}

// WriteOutreachSummary caches the reconciled result of a finished run.
func (c *Cache) WriteOutreachSummary(ctx context.Context, universityID, runID, summary string, conf float64) (bool, error) {
	return c.Write(ctx, &model.VerifiedFact{
		UniversityID:  universityID,
		SubjectType:   "outreach",
		Category:      "outreach",
		Key:           "outreach_summary",
		Value:         summary,
		Confidence:    conf,
		Source:        "outreach_reply",
		SourceRef:     &runID,
		ConsentStatus: "opt_in",
	}, nil)
}
