package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/store"
)

// Coordinator resolves two-sided consent on a suggested candidate into an
// introduction, a continued search, or a terminal failure.
type Coordinator struct {
	store store.Store
	msg   *messaging.Service
	facts *factcache.Cache
	log   zerolog.Logger
}

func NewCoordinator(s store.Store, msg *messaging.Service, facts *factcache.Cache, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: s, msg: msg, facts: facts, log: log.With().Str("component", "consent").Logger()}
}

// ResolveResult reports the run status after resolution and, on a mutual
// yes, the introduction channel.
type ResolveResult struct {
	Status    model.RunStatus `json:"status"`
	ChannelID string          `json:"channelId,omitempty"`
}

// Resolve applies both consent answers to the run. Resolving an already
// done or failed run is a no-op; the stored outcome is returned unchanged.
func (c *Coordinator) Resolve(ctx context.Context, runID string, requesterOk, targetOk bool) (ResolveResult, error) {
	run, err := c.store.Runs().Get(ctx, runID)
	if err != nil {
		return ResolveResult{}, err
	}
	if run.Status.Terminal() {
		return ResolveResult{Status: run.Status}, nil
	}
	if run.SuggestedCandidate == nil {
		return ResolveResult{}, fmt.Errorf("%w: run %s has no suggested candidate", model.ErrValidation, runID)
	}
	candidateID := *run.SuggestedCandidate

	switch {
	case requesterOk && targetOk:
		return c.connect(ctx, run, candidateID)
	case !requesterOk && !targetOk:
		return c.fail(ctx, run)
	case !requesterOk:
		return c.keepSearching(ctx, run, candidateID,
			"hey! they already found someone, but if you're looking for friends who are into this, lmk and i can help",
			"got it - i'll keep looking for someone else.")
	default: // target declined
		return c.keepSearching(ctx, run, candidateID,
			"",
			"they weren't available, but i'll keep looking.")
	}
}

// connect creates the introduction channel and closes the run.
func (c *Coordinator) connect(ctx context.Context, run *model.OutreachRun, candidateID string) (ResolveResult, error) {
	ch, err := c.store.Channels().GetOrCreateDM(ctx, run.RequesterID, candidateID)
	if err != nil {
		return ResolveResult{}, err
	}
	c.msg.NotifyBestEffort(ctx, ch.ChannelID,
		"intro: you both mentioned you're into this - i'll let you take it from here.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID})

	run.Status = model.RunDone
	if _, err := c.store.Runs().Update(ctx, run); err != nil {
		return ResolveResult{}, err
	}

	c.msg.NotifyBestEffort(ctx, run.ChannelID, "connected - i made a chat.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunDone), TaskState: "done", SuggestedUserID: candidateID})

	c.settleState(ctx, run, model.TaskResolved)

	if c.facts != nil {
		conf := 0.0
		if run.Confidence != nil {
			conf = *run.Confidence
		}
		summary := fmt.Sprintf("connected someone for: %s", run.Query)
		if _, err := c.facts.WriteOutreachSummary(ctx, run.UniversityID, run.RunID, summary, conf); err != nil {
			c.log.Warn().Err(err).Str("runId", run.RunID).Msg("consent fact write failed")
		}
	}

	c.log.Info().Str("runId", run.RunID).Str("candidate", candidateID).Msg("introduction created")
	return ResolveResult{Status: model.RunDone, ChannelID: ch.ChannelID}, nil
}

// keepSearching reverts the run to its pre-suggestion status, marks the
// declined target, and leaves the run open for future candidates.
func (c *Coordinator) keepSearching(ctx context.Context, run *model.OutreachRun, candidateID, candidateNote, requesterNote string) (ResolveResult, error) {
	status := model.RunCollecting
	if run.ForumPostID != nil {
		status = model.RunForumPosted
	}
	run.Status = status
	run.SuggestedCandidate = nil
	if _, err := c.store.Runs().Update(ctx, run); err != nil {
		return ResolveResult{}, err
	}

	c.markTargetDeclined(ctx, run.RunID, candidateID)

	if candidateNote != "" {
		if ch, err := c.msg.DM(ctx, c.msg.AssistantID(), candidateID); err == nil {
			c.msg.NotifyBestEffort(ctx, ch.ChannelID, candidateNote, &model.MessageMeta{ShareType: "text"})
		}
	}
	c.msg.NotifyBestEffort(ctx, run.ChannelID, requesterNote,
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(status)})

	c.settleState(ctx, run, model.TaskDeclined)

	c.log.Info().Str("runId", run.RunID).Str("candidate", candidateID).Str("status", string(status)).Msg("consent declined, run reopened")
	return ResolveResult{Status: status}, nil
}

// fail terminates the run after a double decline.
func (c *Coordinator) fail(ctx context.Context, run *model.OutreachRun) (ResolveResult, error) {
	run.Status = model.RunFailed
	if _, err := c.store.Runs().Update(ctx, run); err != nil {
		return ResolveResult{}, err
	}
	c.msg.NotifyBestEffort(ctx, run.ChannelID, "okay - no connection this time.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunFailed), TaskState: "failed"})
	c.settleState(ctx, run, model.TaskFailed)
	return ResolveResult{Status: model.RunFailed}, nil
}

func (c *Coordinator) markTargetDeclined(ctx context.Context, runID, userID string) {
	targets, err := c.store.Targets().ListByRun(ctx, runID)
	if err != nil {
		c.log.Warn().Err(err).Str("runId", runID).Msg("target list failed while declining")
		return
	}
	for _, t := range targets {
		if t.UserID != userID {
			continue
		}
		t.Status = model.TargetDeclined
		if _, err := c.store.Targets().Update(ctx, t); err != nil {
			c.log.Warn().Err(err).Str("targetId", t.TargetID).Msg("target decline update failed")
		}
		return
	}
}

// settleState clears the requester's pending consent entries for the run,
// clears the active task and appends a task record. Best-effort.
func (c *Coordinator) settleState(ctx context.Context, run *model.OutreachRun, status model.TaskStatus) {
	st, err := c.store.States().GetOrCreate(ctx, run.RequesterID, run.ChannelID)
	if err != nil {
		c.log.Warn().Err(err).Str("runId", run.RunID).Msg("state load failed during consent resolution")
		return
	}

	pending := st.PendingConsents[:0]
	for _, p := range st.PendingConsents {
		if p.RunID != run.RunID {
			pending = append(pending, p)
		}
	}
	st.PendingConsents = pending

	record := model.Task{
		TaskID:    run.RunID,
		Type:      run.Intent,
		Query:     run.Query,
		Status:    status,
		StartedAt: run.CreationTime,
		RunID:     run.RunID,
		Result:    &model.TaskResult{ResolvedAt: time.Now().UTC()},
	}
	if st.ActiveTask != nil {
		record.TaskID = st.ActiveTask.TaskID
		record.Type = st.ActiveTask.Type
		record.StartedAt = st.ActiveTask.StartedAt
	}

	st.Mode = model.ModeConversation
	st.ActiveTask = nil
	st.ResolvedTasks = append(st.ResolvedTasks, record)
	if _, err := c.store.States().Update(ctx, st); err != nil {
		c.log.Warn().Err(err).Str("runId", run.RunID).Msg("state update failed during consent resolution")
	}
}
