package outreach

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/confidence"
	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/reply"
	"github.com/bondedhq/link-server/internal/store"
)

// Config carries the campaign bounds. All values come from service
// configuration; none are product invariants.
type Config struct {
	BatchSize         int
	BatchMax          int
	MaxExpansions     int
	HardCap           int
	ForumMinTargets   int
	RecontactCooldown time.Duration
	TargetThreshold   float64
}

// Manager owns the outreach run lifecycle: target selection, batching,
// reply collection, expansion, forum fallback and termination. It holds no
// in-process campaign state; every call is one synchronous transition
// against the store.
type Manager struct {
	store  store.Store
	msg    *messaging.Service
	interp *reply.Interpreter
	facts  *factcache.Cache
	cfg    Config
	log    zerolog.Logger
}

func NewManager(s store.Store, msg *messaging.Service, interp *reply.Interpreter, facts *factcache.Cache, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{store: s, msg: msg, interp: interp, facts: facts, cfg: cfg, log: log.With().Str("component", "outreach").Logger()}
}

// StartParams describe a new campaign request.
type StartParams struct {
	RequesterID  string
	UniversityID string
	ChannelID    string // requester's assistant channel
	Query        string
	Intent       string
	Tags         []string
}

// Start creates a run, messages the first target batch and notifies the
// requester that collection has begun. A second active run for the same
// requester and query fails with model.ErrConflict.
func (m *Manager) Start(ctx context.Context, p StartParams) (*model.OutreachRun, error) {
	batch := m.cfg.BatchSize
	if batch > m.cfg.BatchMax {
		batch = m.cfg.BatchMax
	}

	run, err := m.store.Runs().Create(ctx, &model.OutreachRun{
		RequesterID:     p.RequesterID,
		UniversityID:    p.UniversityID,
		ChannelID:       p.ChannelID,
		Query:           p.Query,
		Intent:          p.Intent,
		Tags:            p.Tags,
		Status:          model.RunCollecting,
		BatchNumber:     1,
		BatchSize:       batch,
		HardCap:         m.cfg.HardCap,
		TargetThreshold: m.cfg.TargetThreshold,
	})
	if err != nil {
		return nil, err
	}

	recent, err := m.store.Targets().RecentTargetUserIDs(ctx, p.RequesterID, time.Now().UTC().Add(-m.cfg.RecontactCooldown))
	if err != nil {
		return nil, err
	}

	selected, err := SelectTargets(ctx, m.store, p.RequesterID, p.UniversityID, p.Tags, batch, recent)
	if err != nil {
		return nil, err
	}

	sent := m.sendBatch(ctx, run, selected, nil)
	m.msg.NotifyBestEffort(ctx, run.ChannelID,
		"not sure yet - i'll ask a few people and report back.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunCollecting), AskedCount: sent, TaskState: "collecting"})

	m.log.Info().Str("runId", run.RunID).Int("targets", sent).Msg("outreach run started")
	return run, nil
}

// sendBatch DMs each candidate and records a target row. Duplicate targets
// within the run are skipped rather than failed.
func (m *Manager) sendBatch(ctx context.Context, run *model.OutreachRun, cands []Candidate, sourceCommentID *string) int {
	askText := BuildAskMessage(run.Query, run.Tags)
	sent := 0
	for _, cand := range cands {
		ch, err := m.msg.DM(ctx, m.msg.AssistantID(), cand.UserID)
		if err != nil {
			m.log.Warn().Err(err).Str("userId", cand.UserID).Msg("dm channel unavailable, skipping target")
			continue
		}
		msg, err := m.msg.SendAssistant(ctx, ch.ChannelID, askText, &model.MessageMeta{ShareType: "text", RunID: run.RunID})
		if err != nil {
			m.log.Warn().Err(err).Str("userId", cand.UserID).Msg("outreach dm failed, skipping target")
			continue
		}
		_, err = m.store.Targets().Create(ctx, &model.OutreachTarget{
			RunID:           run.RunID,
			UserID:          cand.UserID,
			ChannelID:       ch.ChannelID,
			MessageID:       msg.MessageID,
			SourceCommentID: sourceCommentID,
			Reason:          cand.Reason,
			Status:          model.TargetSent,
			SentAt:          msg.SentAt,
		})
		if err != nil {
			// Already targeted in this run.
			continue
		}
		sent++
	}
	return sent
}

// CollectResult reports the outcome of one collection pass.
type CollectResult struct {
	Status     model.RunStatus        `json:"status"`
	Confidence *float64               `json:"confidence,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Candidates []model.CandidateScore `json:"candidates,omitempty"`
}

// Collect runs one poll-driven pass over the run: pull new replies, recruit
// forum commenters, rescore candidates from all replies so far, then either
// hand off to consent, expand, fall back to the forum, or terminate.
// Collecting on a terminal run is a no-op.
func (m *Manager) Collect(ctx context.Context, runID string) (CollectResult, error) {
	run, err := m.store.Runs().Get(ctx, runID)
	if err != nil {
		return CollectResult{}, err
	}
	if run.Status.Terminal() {
		return CollectResult{Status: run.Status, Message: "run already resolved"}, nil
	}
	if run.Status == model.RunAwaitingConsent {
		return CollectResult{Status: run.Status, Confidence: run.Confidence, Message: "waiting on consent"}, nil
	}

	targets, err := m.store.Targets().ListByRun(ctx, runID)
	if err != nil {
		return CollectResult{}, err
	}

	for _, t := range targets {
		if t.Status != model.TargetSent {
			continue
		}
		replies, err := m.msg.RepliesSince(ctx, t.ChannelID, t.SentAt, t.UserID, 5)
		if err != nil {
			m.log.Warn().Err(err).Str("targetId", t.TargetID).Msg("reply poll failed")
			continue
		}
		if len(replies) == 0 {
			continue
		}
		t.ReplyMessageID = &replies[0].MessageID
		t.Status = model.TargetReplied
		if _, err := m.store.Targets().Update(ctx, t); err != nil {
			m.log.Warn().Err(err).Str("targetId", t.TargetID).Msg("target update failed")
		}
	}

	if run.ForumPostID != nil {
		recruited := m.recruitCommenters(ctx, run, targets)
		if recruited > 0 {
			targets, err = m.store.Targets().ListByRun(ctx, runID)
			if err != nil {
				return CollectResult{}, err
			}
		}
	}

	candidates, replyTexts := m.scoreCandidates(ctx, targets)
	runConf := confidence.OutreachRun(replyTexts)
	run.RepliesReceived = len(replyTexts)
	run.PositiveReplies = positiveCount(candidates)
	run.Confidence = &runConf
	if run, err = m.store.Runs().Update(ctx, run); err != nil {
		return CollectResult{}, err
	}

	if best := qualifying(candidates, run.TargetThreshold); best != nil {
		return m.suggestCandidate(ctx, run, best, runConf, candidates)
	}

	contacted := len(targets)
	canExpand := run.Expansions < m.cfg.MaxExpansions && contacted < run.HardCap

	if canExpand {
		added, err := m.expand(ctx, run, targets)
		if err != nil {
			return CollectResult{}, err
		}
		if added > 0 {
			return CollectResult{Status: run.Status, Confidence: &runConf, Message: "still collecting replies", Candidates: candidates}, nil
		}
		// Nothing left to select; treat the expansion budget as spent.
	}

	if len(replyTexts) == 0 {
		if run.ForumPostID != nil {
			return CollectResult{Status: run.Status, Confidence: &runConf, Message: "waiting on forum replies"}, nil
		}
		if contacted >= m.cfg.ForumMinTargets {
			return m.postToForum(ctx, run, runConf)
		}
		return m.expire(ctx, run, runConf)
	}

	// Replies arrived but nobody qualifies and the budget is spent: close
	// the run with a summary of what came back.
	return m.finishWithSummary(ctx, run, candidates, replyTexts, runConf)
}

// scoreCandidates folds every reply received so far into per-candidate
// scores. Every reply from a target counts: the first sets the base score,
// each further one corroborates. Candidates are recomputed from scratch each
// pass.
func (m *Manager) scoreCandidates(ctx context.Context, targets []*model.OutreachTarget) ([]model.CandidateScore, []string) {
	byUser := make(map[string]*model.CandidateScore)
	order := make([]string, 0)
	var replyTexts []string

	for _, t := range targets {
		if t.Status != model.TargetReplied {
			continue
		}
		replies, err := m.msg.RepliesSince(ctx, t.ChannelID, t.SentAt, t.UserID, 5)
		if err != nil {
			m.log.Warn().Err(err).Str("targetId", t.TargetID).Msg("reply fetch failed")
			continue
		}
		for _, msg := range replies {
			replyTexts = append(replyTexts, msg.Body)

			in := m.interp.Interpret(ctx, msg.Body)
			if in.Kind == reply.KindUnknown {
				continue
			}
			c, ok := byUser[t.UserID]
			if !ok {
				byUser[t.UserID] = &model.CandidateScore{
					UserID:       t.UserID,
					Confidence:   confidence.ReplyScore(in.Kind, in.Consent),
					Evidence:     in.Evidence,
					SupportCount: 1,
					Consent:      in.Consent == reply.ConsentYes,
				}
				order = append(order, t.UserID)
				continue
			}
			c.SupportCount++
			c.Confidence = confidence.Corroborate(c.Confidence)
			c.Evidence = unionEvidence(c.Evidence, in.Evidence)
			c.Consent = c.Consent || in.Consent == reply.ConsentYes
		}
	}

	out := make([]model.CandidateScore, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, replyTexts
}

func unionEvidence(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func positiveCount(candidates []model.CandidateScore) int {
	n := 0
	for _, c := range candidates {
		n += c.SupportCount
	}
	return n
}

// qualifying returns the best candidate at or above the threshold,
// preferring one that has already consented.
func qualifying(candidates []model.CandidateScore, threshold float64) *model.CandidateScore {
	var fallback *model.CandidateScore
	for i := range candidates {
		c := &candidates[i]
		if c.Confidence < threshold {
			continue
		}
		if c.Consent {
			return c
		}
		if fallback == nil {
			fallback = c
		}
	}
	return fallback
}

func (m *Manager) suggestCandidate(ctx context.Context, run *model.OutreachRun, best *model.CandidateScore, runConf float64, candidates []model.CandidateScore) (CollectResult, error) {
	run.Status = model.RunAwaitingConsent
	run.SuggestedCandidate = &best.UserID
	run, err := m.store.Runs().Update(ctx, run)
	if err != nil {
		return CollectResult{}, err
	}

	now := time.Now().UTC()
	if st, err := m.store.States().GetOrCreate(ctx, run.RequesterID, run.ChannelID); err == nil {
		st.Mode = model.ModeAwaitingConsent
		st.PendingConsents = append(st.PendingConsents,
			model.ConsentEntry{RunID: run.RunID, Role: "requester", UserID: run.RequesterID, RequestedAt: now, Response: "pending"},
			model.ConsentEntry{RunID: run.RunID, Role: "target", UserID: best.UserID, RequestedAt: now, Response: "pending"},
		)
		if _, err := m.store.States().Update(ctx, st); err != nil {
			m.log.Warn().Err(err).Str("runId", run.RunID).Msg("state update failed after candidate found")
		}
	} else {
		m.log.Warn().Err(err).Str("runId", run.RunID).Msg("state load failed after candidate found")
	}

	if ch, err := m.msg.DM(ctx, m.msg.AssistantID(), best.UserID); err == nil {
		m.msg.NotifyBestEffort(ctx, ch.ChannelID, BuildConsentRequest(run.Tags),
			&model.MessageMeta{ShareType: "text", RunID: run.RunID})
	}
	m.msg.NotifyBestEffort(ctx, run.ChannelID, "want me to connect you?",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, SuggestedUserID: best.UserID, TaskState: "awaiting_consent"})

	m.log.Info().Str("runId", run.RunID).Str("candidate", best.UserID).Float64("confidence", best.Confidence).Msg("candidate found")
	return CollectResult{Status: model.RunAwaitingConsent, Confidence: &runConf, Candidates: candidates}, nil
}

// expand sends one more batch through the same cascade and bumps the
// expansion counter. Returns the number of new targets actually contacted.
func (m *Manager) expand(ctx context.Context, run *model.OutreachRun, targets []*model.OutreachTarget) (int, error) {
	additional := run.BatchSize
	if room := run.HardCap - len(targets); room < additional {
		additional = room
	}
	if additional <= 0 {
		return 0, nil
	}

	excluded := make([]string, 0, len(targets))
	for _, t := range targets {
		excluded = append(excluded, t.UserID)
	}
	recent, err := m.store.Targets().RecentTargetUserIDs(ctx, run.RequesterID, time.Now().UTC().Add(-m.cfg.RecontactCooldown))
	if err != nil {
		return 0, err
	}
	excluded = append(excluded, recent...)

	more, err := SelectTargets(ctx, m.store, run.RequesterID, run.UniversityID, run.Tags, additional, excluded)
	if err != nil {
		return 0, err
	}
	sent := m.sendBatch(ctx, run, more, nil)
	if sent == 0 {
		return 0, nil
	}

	run.Expansions++
	run.BatchNumber++
	if _, err := m.store.Runs().Update(ctx, run); err != nil {
		return 0, err
	}
	m.msg.NotifyBestEffort(ctx, run.ChannelID, "still waiting on replies - i asked a few more people.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(run.Status), AskedCount: len(targets) + sent, TaskState: "collecting"})
	m.log.Info().Str("runId", run.RunID).Int("added", sent).Int("expansions", run.Expansions).Msg("outreach expanded")
	return sent, nil
}

// postToForum publishes the one anonymous fallback post for the run.
func (m *Manager) postToForum(ctx context.Context, run *model.OutreachRun, runConf float64) (CollectResult, error) {
	title, body := BuildForumPost(run.Query)
	post, err := m.store.Forums().CreatePost(ctx, &model.ForumPost{
		UniversityID: run.UniversityID,
		AuthorID:     run.RequesterID,
		Title:        title,
		Body:         body,
		Tags:         run.Tags,
		Anonymous:    true,
	})
	if err != nil {
		return CollectResult{}, err
	}

	now := time.Now().UTC()
	run.Status = model.RunForumPosted
	run.ForumPostID = &post.PostID
	run.ForumPostedAt = &now
	if _, err := m.store.Runs().Update(ctx, run); err != nil {
		return CollectResult{}, err
	}

	m.msg.NotifyBestEffort(ctx, run.ChannelID,
		"i couldn't find anyone yet, so i made an anonymous forum post. i'll let you know if anyone replies.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunForumPosted), ForumPostID: post.PostID})
	m.log.Info().Str("runId", run.RunID).Str("postId", post.PostID).Msg("forum fallback posted")
	return CollectResult{Status: model.RunForumPosted, Confidence: &runConf, Message: "posted to forum"}, nil
}

// recruitCommenters turns each new commenter on the run's forum post into a
// regular one-on-one target.
func (m *Manager) recruitCommenters(ctx context.Context, run *model.OutreachRun, targets []*model.OutreachTarget) int {
	after := run.CreationTime
	if run.ForumPostedAt != nil {
		after = *run.ForumPostedAt
	}
	comments, err := m.store.Forums().ListCommentsSince(ctx, *run.ForumPostID, after)
	if err != nil {
		m.log.Warn().Err(err).Str("runId", run.RunID).Msg("forum comment poll failed")
		return 0
	}

	existing := make(map[string]struct{}, len(targets)+1)
	existing[run.RequesterID] = struct{}{}
	for _, t := range targets {
		existing[t.UserID] = struct{}{}
	}

	recruited := 0
	contacted := len(targets)
	for _, c := range comments {
		if contacted+recruited >= run.HardCap {
			break
		}
		if c.AuthorID == "" {
			continue
		}
		if _, ok := existing[c.AuthorID]; ok {
			continue
		}
		existing[c.AuthorID] = struct{}{}
		commentID := c.CommentID
		recruited += m.sendBatch(ctx, run, []Candidate{{UserID: c.AuthorID, Reason: "forum_comment"}}, &commentID)
	}
	if recruited > 0 {
		m.log.Info().Str("runId", run.RunID).Int("recruited", recruited).Msg("forum commenters recruited")
	}
	return recruited
}

func (m *Manager) expire(ctx context.Context, run *model.OutreachRun, runConf float64) (CollectResult, error) {
	run.Status = model.RunExpired
	if _, err := m.store.Runs().Update(ctx, run); err != nil {
		return CollectResult{}, err
	}
	m.msg.NotifyBestEffort(ctx, run.ChannelID, "i asked around but couldn't find anyone this time.",
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunExpired), TaskState: "expired"})
	m.closeRequesterTask(ctx, run, model.TaskFailed, "no qualifying replies")
	return CollectResult{Status: model.RunExpired, Confidence: &runConf}, nil
}

// finishWithSummary closes a run whose replies never produced a qualifying
// candidate but still carry information worth relaying.
func (m *Manager) finishWithSummary(ctx context.Context, run *model.OutreachRun, candidates []model.CandidateScore, replyTexts []string, runConf float64) (CollectResult, error) {
	summary := summarizeReplies(replyTexts)
	run.Status = model.RunDone
	if _, err := m.store.Runs().Update(ctx, run); err != nil {
		return CollectResult{}, err
	}

	if m.facts != nil {
		if _, err := m.facts.WriteOutreachSummary(ctx, run.UniversityID, run.RunID, summary, runConf); err != nil {
			m.log.Warn().Err(err).Str("runId", run.RunID).Msg("outreach fact write failed")
		}
	}

	m.msg.NotifyBestEffort(ctx, run.ChannelID, summary,
		&model.MessageMeta{ShareType: "text", RunID: run.RunID, RunStatus: string(model.RunDone), TaskState: "done", Confidence: &runConf})
	m.closeRequesterTask(ctx, run, model.TaskResolved, summary)

	m.log.Info().Str("runId", run.RunID).Float64("confidence", runConf).Msg("outreach run closed with summary")
	return CollectResult{Status: model.RunDone, Confidence: &runConf, Message: summary, Candidates: candidates}, nil
}

func summarizeReplies(replies []string) string {
	if len(replies) == 0 {
		return "here's what i heard back."
	}
	first := replies[0]
	if r := []rune(first); len(r) > 140 {
		first = string(r[:140])
	}
	if len(replies) == 1 {
		return fmt.Sprintf("here's what i heard back: %q", first)
	}
	return fmt.Sprintf("here's what i heard back: %q (and %d more replies)", first, len(replies)-1)
}

// closeRequesterTask clears the requester's active task and appends a
// resolution record. Best-effort.
func (m *Manager) closeRequesterTask(ctx context.Context, run *model.OutreachRun, status model.TaskStatus, summary string) {
	st, err := m.store.States().GetOrCreate(ctx, run.RequesterID, run.ChannelID)
	if err != nil {
		m.log.Warn().Err(err).Str("runId", run.RunID).Msg("state load failed on run close")
		return
	}
	now := time.Now().UTC()
	done := model.Task{
		TaskID:    run.RunID,
		Type:      run.Intent,
		Query:     run.Query,
		Status:    status,
		StartedAt: run.CreationTime,
		RunID:     run.RunID,
		Result:    &model.TaskResult{Summary: summary, ResolvedAt: now},
	}
	if st.ActiveTask != nil {
		done.TaskID = st.ActiveTask.TaskID
		done.Type = st.ActiveTask.Type
		done.StartedAt = st.ActiveTask.StartedAt
	}
	st.Mode = model.ModeConversation
	st.ActiveTask = nil
	st.ResolvedTasks = append(st.ResolvedTasks, done)
	if _, err := m.store.States().Update(ctx, st); err != nil {
		m.log.Warn().Err(err).Str("runId", run.RunID).Msg("state update failed on run close")
	}
}

// Cancel transitions the requester's active run to failed. Safe to call on
// terminal runs.
func (m *Manager) Cancel(ctx context.Context, runID string) (*model.OutreachRun, error) {
	run, err := m.store.Runs().Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}
	run.Status = model.RunFailed
	run, err = m.store.Runs().Update(ctx, run)
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("runId", run.RunID).Msg("outreach run cancelled")
	return run, nil
}
