package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	uni := "uni-" + uuid.New().String()
	requester := "u-" + uuid.New().String()
	friend := "u-" + uuid.New().String()
	classmate := "u-" + uuid.New().String()

	// Profiles
	for _, p := range []*model.Profile{
		{UserID: requester, UniversityID: uni, FullName: "Req Uester", Username: "requester", Active: true},
		{UserID: friend, UniversityID: uni, FullName: "Fri End", Username: "friend", Bio: "runs the chess club", Active: true},
		{UserID: classmate, UniversityID: uni, FullName: "Class Mate", Username: "classmate", Major: "CS", Active: true},
	} {
		if _, err := s.Profiles().Create(ctx, p); err != nil {
			t.Fatalf("CreateProfile %s: %v", p.Username, err)
		}
	}
	if got, err := s.Profiles().Get(ctx, requester); err != nil || got.Username != "requester" {
		t.Fatalf("GetProfile: got=%v err=%v", got, err)
	}
	if _, err := s.Profiles().Get(ctx, "nope-"+uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetProfile missing: want ErrNotFound, got %v", err)
	}

	// Friendships and enrollments
	if err := s.Profiles().AddFriend(ctx, requester, friend); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if err := s.Profiles().AddFriend(ctx, requester, friend); err != nil {
		t.Fatalf("AddFriend idempotent: %v", err)
	}
	if fr, err := s.Profiles().Friends(ctx, requester); err != nil || len(fr) != 1 || fr[0].UserID != friend {
		t.Fatalf("Friends: n=%d err=%v", len(fr), err)
	}
	course := "cs101-" + uuid.New().String()
	if err := s.Profiles().AddEnrollment(ctx, requester, course); err != nil {
		t.Fatalf("AddEnrollment: %v", err)
	}
	if err := s.Profiles().AddEnrollment(ctx, classmate, course); err != nil {
		t.Fatalf("AddEnrollment classmate: %v", err)
	}
	if cm, err := s.Profiles().Classmates(ctx, requester); err != nil || len(cm) != 1 || cm[0].UserID != classmate {
		t.Fatalf("Classmates: n=%d err=%v", len(cm), err)
	}
	if hits, err := s.Profiles().SearchText(ctx, uni, "chess", 10); err != nil || len(hits) != 1 || hits[0].UserID != friend {
		t.Fatalf("SearchText: n=%d err=%v", len(hits), err)
	}

	// Channels
	assistant, err := s.Channels().GetOrCreateAssistant(ctx, requester)
	if err != nil {
		t.Fatalf("GetOrCreateAssistant: %v", err)
	}
	if again, err := s.Channels().GetOrCreateAssistant(ctx, requester); err != nil || again.ChannelID != assistant.ChannelID {
		t.Fatalf("GetOrCreateAssistant stable: %v / %v", again, err)
	}
	dm, err := s.Channels().GetOrCreateDM(ctx, requester, friend)
	if err != nil {
		t.Fatalf("GetOrCreateDM: %v", err)
	}
	if rev, err := s.Channels().GetOrCreateDM(ctx, friend, requester); err != nil || rev.ChannelID != dm.ChannelID {
		t.Fatalf("GetOrCreateDM order-independent: %v / %v", rev, err)
	}

	// Messages
	before := time.Now().UTC().Add(-time.Second)
	msg, err := s.Messages().Insert(ctx, &model.Message{ChannelID: dm.ChannelID, SenderID: requester, Body: "anyone know?"})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if got, err := s.Messages().Get(ctx, msg.MessageID); err != nil || got.Body != "anyone know?" {
		t.Fatalf("GetMessage: got=%v err=%v", got, err)
	}
	if _, err := s.Messages().Insert(ctx, &model.Message{ChannelID: dm.ChannelID, SenderID: friend, Body: "yes I do"}); err != nil {
		t.Fatalf("InsertMessage reply: %v", err)
	}
	if lst, err := s.Messages().ListSince(ctx, dm.ChannelID, before, "", 10); err != nil || len(lst) != 2 {
		t.Fatalf("ListSince: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Messages().ListSince(ctx, dm.ChannelID, before, friend, 10); err != nil || len(lst) != 1 || lst[0].SenderID != friend {
		t.Fatalf("ListSince sender filter: n=%d err=%v", len(lst), err)
	}

	// Conversation states
	st, err := s.States().GetOrCreate(ctx, requester, assistant.ChannelID)
	if err != nil {
		t.Fatalf("GetOrCreateState: %v", err)
	}
	if st.Mode != model.ModeIdle {
		t.Fatalf("new state mode: %s", st.Mode)
	}
	st.Mode = model.ModeOutreach
	st.ActiveTask = &model.Task{TaskID: uuid.New().String(), Type: "people_search", Query: "who runs chess club", Status: model.TaskPending, StartedAt: time.Now().UTC()}
	if _, err := s.States().Update(ctx, st); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if again, err := s.States().GetOrCreate(ctx, requester, assistant.ChannelID); err != nil || again.Mode != model.ModeOutreach || again.ActiveTask == nil {
		t.Fatalf("reload state: got=%+v err=%v", again, err)
	}

	// Runs: at most one non-terminal run per requester
	run, err := s.Runs().Create(ctx, &model.OutreachRun{
		RequesterID: requester, UniversityID: uni, ChannelID: assistant.ChannelID,
		Query: "Who runs the chess club?", Intent: "people_search",
		Status: model.RunCollecting, BatchSize: 5, HardCap: 25, TargetThreshold: 0.75,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := s.Runs().Create(ctx, &model.OutreachRun{
		RequesterID: requester, UniversityID: uni, ChannelID: assistant.ChannelID,
		Query: "who runs  the CHESS club?", Intent: "people_search",
		Status: model.RunCollecting, BatchSize: 5, HardCap: 25, TargetThreshold: 0.75,
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate active run: want ErrConflict, got %v", err)
	}
	if _, err := s.Runs().Create(ctx, &model.OutreachRun{
		RequesterID: requester, UniversityID: uni, ChannelID: assistant.ChannelID,
		Query: "anyone playing pickup soccer tonight?", Intent: "people_search",
		Status: model.RunCollecting, BatchSize: 5, HardCap: 25, TargetThreshold: 0.75,
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("second active run with a different query: want ErrConflict, got %v", err)
	}
	if got, err := s.Runs().Get(ctx, run.RunID); err != nil || got.Status != model.RunCollecting {
		t.Fatalf("GetRun: got=%v err=%v", got, err)
	}
	if latest, err := s.Runs().LatestActiveByRequester(ctx, requester); err != nil || latest.RunID != run.RunID {
		t.Fatalf("LatestActiveByRequester: got=%v err=%v", latest, err)
	}

	// Targets
	tgt, err := s.Targets().Create(ctx, &model.OutreachTarget{
		RunID: run.RunID, UserID: friend, ChannelID: dm.ChannelID, MessageID: msg.MessageID,
		Reason: "friend", Status: model.TargetSent,
	})
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if _, err := s.Targets().Create(ctx, &model.OutreachTarget{
		RunID: run.RunID, UserID: friend, ChannelID: dm.ChannelID, MessageID: msg.MessageID,
		Status: model.TargetSent,
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate target: want ErrConflict, got %v", err)
	}
	replyID := uuid.New().String()
	tgt.Status = model.TargetReplied
	tgt.ReplyMessageID = &replyID
	if _, err := s.Targets().Update(ctx, tgt); err != nil {
		t.Fatalf("UpdateTarget: %v", err)
	}
	if lst, err := s.Targets().ListByRun(ctx, run.RunID); err != nil || len(lst) != 1 || lst[0].Status != model.TargetReplied {
		t.Fatalf("ListByRun: n=%d err=%v", len(lst), err)
	}
	if ids, err := s.Targets().RecentTargetUserIDs(ctx, requester, time.Now().UTC().Add(-time.Hour)); err != nil || len(ids) != 1 || ids[0] != friend {
		t.Fatalf("RecentTargetUserIDs: ids=%v err=%v", ids, err)
	}

	// Terminal run frees the uniqueness slot
	run.Status = model.RunDone
	if _, err := s.Runs().Update(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	run2, err := s.Runs().Create(ctx, &model.OutreachRun{
		RequesterID: requester, UniversityID: uni, ChannelID: assistant.ChannelID,
		Query: "who runs the chess club?", Intent: "people_search",
		Status: model.RunCollecting, BatchSize: 5, HardCap: 25, TargetThreshold: 0.75,
	})
	if err != nil {
		t.Fatalf("CreateRun after terminal: %v", err)
	}
	run2.Status = model.RunFailed
	if _, err := s.Runs().Update(ctx, run2); err != nil {
		t.Fatalf("UpdateRun run2: %v", err)
	}

	// Facts
	nowT := time.Now().UTC()
	live, err := s.Facts().Create(ctx, &model.VerifiedFact{
		UniversityID: uni, SubjectType: "user", Category: "outreach",
		Key: "chess club organizer", Value: "friend runs it", Confidence: 0.9,
		Source: "outreach_reply", ConsentStatus: "granted",
		VerifiedAt: nowT, ExpiresAt: nowT.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateFact: %v", err)
	}
	if _, err := s.Facts().Create(ctx, &model.VerifiedFact{
		UniversityID: uni, SubjectType: "event", Category: "event",
		Key: "old event", Value: "gone", Confidence: 0.8,
		Source: "db_record", ConsentStatus: "granted",
		VerifiedAt: nowT.Add(-48 * time.Hour), ExpiresAt: nowT.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("CreateFact expired: %v", err)
	}
	if n, err := s.Facts().DeleteExpired(ctx, nowT); err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
	if hits, err := s.Facts().Search(ctx, uni, "chess", 10); err != nil || len(hits) != 1 || hits[0].FactID != live.FactID {
		t.Fatalf("SearchFacts: n=%d err=%v", len(hits), err)
	}
	if all, err := s.Facts().List(ctx, uni, 10); err != nil || len(all) != 1 {
		t.Fatalf("ListFacts: n=%d err=%v", len(all), err)
	}

	// Forums
	post, err := s.Forums().CreatePost(ctx, &model.ForumPost{
		UniversityID: uni, AuthorID: requester, Title: "Looking for the chess club organizer",
		Body: "Anyone know who runs it?", Anonymous: true,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if got, err := s.Forums().GetPost(ctx, post.PostID); err != nil || !got.Anonymous {
		t.Fatalf("GetPost: got=%v err=%v", got, err)
	}
	if _, err := s.Forums().AddComment(ctx, &model.ForumComment{PostID: post.PostID, AuthorID: classmate, Body: "ask sam"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if cs, err := s.Forums().ListCommentsSince(ctx, post.PostID, before); err != nil || len(cs) != 1 {
		t.Fatalf("ListCommentsSince: n=%d err=%v", len(cs), err)
	}
	if cs, err := s.Forums().ListCommentsSince(ctx, post.PostID, time.Now().UTC().Add(time.Hour)); err != nil || len(cs) != 0 {
		t.Fatalf("ListCommentsSince future: n=%d err=%v", len(cs), err)
	}
}
