package outreach

import (
	"context"
	"errors"
	"testing"

	"github.com/bondedhq/link-server/internal/model"
)

// setupAwaitingConsent drives a run to awaiting_consent with one consenting
// candidate and returns the run plus requester and candidate ids.
func setupAwaitingConsent(t *testing.T, env *testEnv) (*model.OutreachRun, string, string) {
	t.Helper()
	ctx := context.Background()

	requester := env.addProfile(t, "riya")
	candidate := env.addProfile(t, "sam")
	run := env.startRun(t, requester, "who plays chess here", []string{"chess"})
	env.replyAs(t, run, candidate, "yes i play chess every week")

	res, err := env.mgr.Collect(ctx, run.RunID)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != model.RunAwaitingConsent {
		t.Fatalf("setup status = %s", res.Status)
	}
	run, err = env.store.Runs().Get(ctx, run.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	return run, requester, candidate
}

func TestResolve_MutualYesCreatesChannelOnce(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()
	run, requester, candidate := setupAwaitingConsent(t, env)

	res, err := env.coord.Resolve(ctx, run.RunID, true, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != model.RunDone || res.ChannelID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	ch, err := env.store.Channels().Get(ctx, res.ChannelID)
	if err != nil {
		t.Fatalf("get intro channel: %v", err)
	}
	members := map[string]bool{}
	for _, p := range ch.Participants {
		members[p] = true
	}
	if !members[requester] || !members[candidate] {
		t.Fatalf("intro channel participants = %v", ch.Participants)
	}

	st, err := env.store.States().GetOrCreate(ctx, requester, run.ChannelID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Mode != model.ModeConversation || st.ActiveTask != nil || len(st.PendingConsents) != 0 {
		t.Fatalf("state not settled: mode=%s task=%v pending=%d", st.Mode, st.ActiveTask, len(st.PendingConsents))
	}
	if len(st.ResolvedTasks) != 1 || st.ResolvedTasks[0].Status != model.TaskResolved {
		t.Fatalf("resolved task record missing: %+v", st.ResolvedTasks)
	}

	// Resolving a done run again is a no-op and must not mint a second channel.
	again, err := env.coord.Resolve(ctx, run.RunID, true, true)
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if again.Status != model.RunDone || again.ChannelID != "" {
		t.Fatalf("repeat resolve result: %+v", again)
	}
	dm, err := env.store.Channels().GetOrCreateDM(ctx, requester, candidate)
	if err != nil || dm.ChannelID != res.ChannelID {
		t.Fatalf("intro channel duplicated: %v, %v", dm, err)
	}
}

func TestResolve_RequesterDeclinesReopensRun(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()
	run, requester, candidate := setupAwaitingConsent(t, env)

	res, err := env.coord.Resolve(ctx, run.RunID, false, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != model.RunCollecting || res.ChannelID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, _ := env.store.Runs().Get(ctx, run.RunID)
	if got.Status != model.RunCollecting || got.SuggestedCandidate != nil {
		t.Fatalf("run not reverted: status=%s suggested=%v", got.Status, got.SuggestedCandidate)
	}

	targets, _ := env.store.Targets().ListByRun(ctx, run.RunID)
	declined := false
	for _, tg := range targets {
		if tg.UserID == candidate && tg.Status == model.TargetDeclined {
			declined = true
		}
	}
	if !declined {
		t.Fatalf("candidate target not marked declined: %+v", targets)
	}

	st, _ := env.store.States().GetOrCreate(ctx, requester, run.ChannelID)
	if st.ActiveTask != nil || len(st.PendingConsents) != 0 {
		t.Fatalf("state not cleared: task=%v pending=%d", st.ActiveTask, len(st.PendingConsents))
	}
	if len(st.ResolvedTasks) != 1 || st.ResolvedTasks[0].Status != model.TaskDeclined {
		t.Fatalf("declined task record missing: %+v", st.ResolvedTasks)
	}
}

func TestResolve_TargetDeclinesReopensRun(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()
	run, _, candidate := setupAwaitingConsent(t, env)

	res, err := env.coord.Resolve(ctx, run.RunID, true, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != model.RunCollecting {
		t.Fatalf("status = %s, want collecting", res.Status)
	}
	targets, _ := env.store.Targets().ListByRun(ctx, run.RunID)
	for _, tg := range targets {
		if tg.UserID == candidate && tg.Status != model.TargetDeclined {
			t.Fatalf("declining target should be marked declined, got %s", tg.Status)
		}
	}
}

func TestResolve_BothDeclineFailsRun(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()
	run, requester, _ := setupAwaitingConsent(t, env)

	res, err := env.coord.Resolve(ctx, run.RunID, false, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != model.RunFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}

	st, _ := env.store.States().GetOrCreate(ctx, requester, run.ChannelID)
	if len(st.ResolvedTasks) != 1 || st.ResolvedTasks[0].Status != model.TaskFailed {
		t.Fatalf("failed task record missing: %+v", st.ResolvedTasks)
	}
}

func TestResolve_RequiresSuggestedCandidate(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	requester := env.addProfile(t, "riya")
	env.addProfile(t, "sam")
	run := env.startRun(t, requester, "who plays chess here", []string{"chess"})

	if _, err := env.coord.Resolve(ctx, run.RunID, true, true); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
