package assistant

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/outreach"
	"github.com/bondedhq/link-server/internal/reply"
	"github.com/bondedhq/link-server/internal/store"
	"github.com/bondedhq/link-server/internal/store/sqlite"
)

type testEnv struct {
	store store.Store
	msg   *messaging.Service
	mgr   *outreach.Manager
	svc   *Service
	uni   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "link.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	log := zerolog.Nop()
	msg := messaging.New(s, log)
	facts := factcache.New(s.Facts(), factcache.Config{
		WriteThreshold:      0.75,
		EventTTLDays:        7,
		EventUnknownTTLDays: 30,
		ProfileTTLDays:      180,
		OutreachTTLDays:     14,
		LookupLimit:         10,
	}, log)
	interp := reply.NewInterpreter(nil)
	cfg := outreach.Config{
		BatchSize: 5, BatchMax: 10, MaxExpansions: 2, HardCap: 10,
		ForumMinTargets: 10, RecontactCooldown: 7 * 24 * time.Hour, TargetThreshold: 0.75,
	}
	mgr := outreach.NewManager(s, msg, interp, facts, cfg, log)
	coord := outreach.NewCoordinator(s, msg, facts, log)
	return &testEnv{
		store: s,
		msg:   msg,
		mgr:   mgr,
		svc:   New(s, msg, mgr, coord, facts, nil, interp, log),
		uni:   "uni-" + uuid.New().String(),
	}
}

func (e *testEnv) addProfile(t *testing.T, name string) string {
	t.Helper()
	id := "u-" + uuid.New().String()
	_, err := e.store.Profiles().Create(context.Background(), &model.Profile{
		UserID: id, UniversityID: e.uni, FullName: name, Username: name, Active: true,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return id
}

func TestHandle_Greeting(t *testing.T) {
	env := newTestEnv(t)
	user := env.addProfile(t, "riya")

	resp, err := env.svc.Handle(context.Background(), user, "hey")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Mode != model.ModeConversation {
		t.Fatalf("mode = %s, want conversation", resp.Mode)
	}
	if resp.AnswerText == "" {
		t.Fatalf("greeting should get a reply")
	}
	if resp.UI.ShowStatusButton || resp.UI.ShowConsentButtons {
		t.Fatalf("no task controls expected in conversation mode: %+v", resp.UI)
	}
}

func TestHandle_UnknownUserFails(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Handle(context.Background(), "u-"+uuid.New().String(), "hey"); err == nil {
		t.Fatalf("unknown user should fail")
	}
}

func TestHandle_PeopleSearchStartsOutreach(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addProfile(t, "riya")
	env.addProfile(t, "sam")
	env.addProfile(t, "casey")

	resp, err := env.svc.Handle(ctx, user, "anyone down to play chess this week?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Mode != model.ModeOutreach {
		t.Fatalf("mode = %s, want outreach", resp.Mode)
	}
	if resp.RunID == "" || resp.Task == nil || resp.Task.Status != model.TaskOutreachSent {
		t.Fatalf("outreach task not attached: %+v", resp)
	}
	if !resp.UI.ShowStatusButton || !resp.UI.ShowCancelButton {
		t.Fatalf("outreach mode should expose status and cancel: %+v", resp.UI)
	}

	run, err := env.store.Runs().Get(ctx, resp.RunID)
	if err != nil || run.Status != model.RunCollecting {
		t.Fatalf("run not collecting: %+v, %v", run, err)
	}
	targets, _ := env.store.Targets().ListByRun(ctx, resp.RunID)
	if len(targets) != 2 {
		t.Fatalf("expected both other users targeted, got %d", len(targets))
	}

	// A repeated ask reports status on the live run instead of minting a
	// second one.
	again, err := env.svc.Handle(ctx, user, "anyone down to play chess this week?")
	if err != nil {
		t.Fatalf("repeated ask: %v", err)
	}
	if again.Mode != model.ModeOutreach || again.RunID != resp.RunID {
		t.Fatalf("repeated ask should stick to run %s: %+v", resp.RunID, again)
	}
	if !strings.Contains(again.AnswerText, "still asking") {
		t.Fatalf("repeated ask should report progress, got %q", again.AnswerText)
	}
	if latest, err := env.store.Runs().LatestActiveByRequester(ctx, user); err != nil || latest.RunID != resp.RunID {
		t.Fatalf("active run changed: %+v, %v", latest, err)
	}
}

func TestHandle_CachedFactAnswersDirectly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addProfile(t, "riya")

	now := time.Now().UTC()
	if _, err := env.store.Facts().Create(ctx, &model.VerifiedFact{
		UniversityID: env.uni, SubjectType: "campus", Category: "club",
		Key: "chess", Value: "chess club meets tuesdays in the union",
		Confidence: 0.8, Source: "db_record", ConsentStatus: "opt_in",
		VerifiedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed fact: %v", err)
	}

	resp, err := env.svc.Handle(ctx, user, "anyone down to play chess this week?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Mode != model.ModeConversation {
		t.Fatalf("answered query should settle back to conversation, got %s", resp.Mode)
	}
	if resp.RunID != "" {
		t.Fatalf("no outreach should start when facts answer the query")
	}
	if resp.Confidence <= 0 || resp.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", resp.Confidence)
	}
	if len(resp.Citations) == 0 {
		t.Fatalf("fact-grounded answer should cite the fact")
	}

	st, _ := env.store.States().GetOrCreate(ctx, user, mustAssistantChannel(t, env, user))
	if st.ActiveTask != nil {
		t.Fatalf("task should be resolved, still active: %+v", st.ActiveTask)
	}
	if len(st.ResolvedTasks) != 1 || st.ResolvedTasks[0].Status != model.TaskResolved {
		t.Fatalf("resolved task record missing: %+v", st.ResolvedTasks)
	}
}

func TestHandle_CancelFailsActiveRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addProfile(t, "riya")
	env.addProfile(t, "sam")

	started, err := env.svc.Handle(ctx, user, "anyone down to play chess this week?")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := env.svc.Handle(ctx, user, "cancel that")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Mode != model.ModeConversation {
		t.Fatalf("mode after cancel = %s", resp.Mode)
	}
	run, err := env.store.Runs().Get(ctx, started.RunID)
	if err != nil || run.Status != model.RunFailed {
		t.Fatalf("run should be failed after cancel: %+v, %v", run, err)
	}
	st, _ := env.store.States().GetOrCreate(ctx, user, mustAssistantChannel(t, env, user))
	if st.ActiveTask != nil {
		t.Fatalf("active task should be cleared")
	}
}

func TestHandle_ConsentYesConnects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addProfile(t, "riya")
	candidate := env.addProfile(t, "sam")

	started, err := env.svc.Handle(ctx, user, "anyone down to play chess this week?")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// The candidate replies positively in their outreach DM.
	targets, _ := env.store.Targets().ListByRun(ctx, started.RunID)
	var dmChannel string
	for _, tg := range targets {
		if tg.UserID == candidate {
			dmChannel = tg.ChannelID
		}
	}
	if dmChannel == "" {
		t.Fatalf("candidate not targeted")
	}
	if _, err := env.store.Messages().Insert(ctx, &model.Message{
		ChannelID: dmChannel, SenderID: candidate, Body: "yes i play chess every week",
	}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if res, err := env.mgr.Collect(ctx, started.RunID); err != nil || res.Status != model.RunAwaitingConsent {
		t.Fatalf("collect: %+v, %v", res, err)
	}

	resp, err := env.svc.Handle(ctx, user, "yes")
	if err != nil {
		t.Fatalf("consent: %v", err)
	}
	if resp.Mode != model.ModeConversation {
		t.Fatalf("mode after consent = %s", resp.Mode)
	}
	run, _ := env.store.Runs().Get(ctx, started.RunID)
	if run.Status != model.RunDone {
		t.Fatalf("run status = %s, want done", run.Status)
	}
	dm, err := env.store.Channels().GetOrCreateDM(ctx, user, candidate)
	if err != nil {
		t.Fatalf("intro channel: %v", err)
	}
	msgs, err := env.store.Messages().ListSince(ctx, dm.ChannelID, time.Time{}, "", 10)
	if err != nil || len(msgs) == 0 {
		t.Fatalf("introduction message missing: %v, %v", msgs, err)
	}
}

func mustAssistantChannel(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	ch, err := env.store.Channels().GetOrCreateAssistant(context.Background(), userID)
	if err != nil {
		t.Fatalf("assistant channel: %v", err)
	}
	return ch.ChannelID
}
