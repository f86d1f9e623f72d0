package outreach

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bondedhq/link-server/internal/model"
)

func TestSelectTargets_CascadeOrderAndExclusion(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	requester := env.addProfile(t, "riya")
	friend := env.addProfile(t, "friend")
	classmate := env.addProfile(t, "classmate")
	factUser := env.addProfile(t, "factuser")
	plain := env.addProfile(t, "plain")
	excludedFriend := env.addProfile(t, "oldcontact")

	if err := env.store.Profiles().AddFriend(ctx, requester, friend); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	if err := env.store.Profiles().AddFriend(ctx, requester, excludedFriend); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	if err := env.store.Profiles().AddEnrollment(ctx, requester, "cs101"); err != nil {
		t.Fatalf("enroll requester: %v", err)
	}
	if err := env.store.Profiles().AddEnrollment(ctx, classmate, "cs101"); err != nil {
		t.Fatalf("enroll classmate: %v", err)
	}

	now := time.Now().UTC()
	if _, err := env.store.Facts().Create(ctx, &model.VerifiedFact{
		UniversityID: env.uni, SubjectType: "user", SubjectID: &factUser,
		Category: "club", Key: "plays", Value: "chess club regular",
		Confidence: 0.8, Source: "outreach_reply", ConsentStatus: "opt_in",
		VerifiedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("create fact: %v", err)
	}

	chessBio := env.addProfileWithBio(t, "chessbio", "president of the chess society")

	got, err := SelectTargets(ctx, env.store, requester, env.uni, []string{"Chess", "chess", ""}, 4, []string{excludedFriend})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 targets, got %d: %+v", len(got), got)
	}
	reasons := make([]string, 0, len(got))
	for _, c := range got {
		reasons = append(reasons, c.Reason)
		if c.UserID == requester || c.UserID == excludedFriend {
			t.Fatalf("excluded id selected: %+v", c)
		}
	}
	want := strings.Join([]string{ReasonFriend, ReasonClassmate, ReasonCachedFact, ReasonInterestMatch}, ",")
	if strings.Join(reasons, ",") != want {
		t.Fatalf("cascade order = %v, want %s", reasons, want)
	}
	if got[0].UserID != friend || got[1].UserID != classmate || got[2].UserID != factUser || got[3].UserID != chessBio {
		t.Fatalf("unexpected targets: %+v", got)
	}
	_ = plain
}

func TestSelectTargets_FallsBackToActiveProfiles(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	requester := env.addProfile(t, "riya")
	a := env.addProfile(t, "a")
	b := env.addProfile(t, "b")

	got, err := SelectTargets(ctx, env.store, requester, env.uni, nil, 5, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the two active users, got %+v", got)
	}
	seen := map[string]bool{}
	for _, c := range got {
		if c.Reason != ReasonCampusActive {
			t.Fatalf("reason = %q", c.Reason)
		}
		seen[c.UserID] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("missing active users: %+v", got)
	}
}

func TestBuildAskMessage_ContainsConsentPrompt(t *testing.T) {
	msg := BuildAskMessage("who plays chess here", []string{"chess"})
	for _, want := range []string{"who plays chess here", "chess", "YES", "NO"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("ask message missing %q: %s", want, msg)
		}
	}
	if !strings.Contains(BuildAskMessage("q", nil), "do you this?") {
		t.Fatalf("empty tags should fall back to a generic topic")
	}
	if !strings.Contains(BuildConsentRequest([]string{"climb"}), "reply YES or NO") {
		t.Fatalf("consent request missing explicit prompt")
	}
}
