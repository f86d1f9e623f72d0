package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/confidence"
	"github.com/bondedhq/link-server/internal/conversation"
	"github.com/bondedhq/link-server/internal/factcache"
	"github.com/bondedhq/link-server/internal/intent"
	"github.com/bondedhq/link-server/internal/messaging"
	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/outreach"
	"github.com/bondedhq/link-server/internal/reply"
	"github.com/bondedhq/link-server/internal/retrieval"
	"github.com/bondedhq/link-server/internal/store"
)

// Retriever is the dual-pass search capability consumed by the assistant.
// nil disables retrieval; cached facts still work.
type Retriever interface {
	Search(ctx context.Context, universityID, query string) (retrieval.Result, error)
}

// UIHints tell the client which controls to render for the current mode.
type UIHints struct {
	ShowStatusButton   bool `json:"showStatusButton"`
	ShowCancelButton   bool `json:"showCancelButton"`
	ShowConsentButtons bool `json:"showConsentButtons"`
}

// Response is the assistant's reply to one inbound message.
type Response struct {
	Mode       model.Mode  `json:"mode"`
	Intent     string      `json:"intent"`
	AnswerText string      `json:"answerText"`
	Confidence float64     `json:"confidence"`
	RunID      string      `json:"runId,omitempty"`
	Task       *model.Task `json:"task,omitempty"`
	Citations  []string    `json:"citations,omitempty"`
	UI         UIHints     `json:"ui"`
}

// Service handles inbound chat messages: classify, transition, answer from
// cached facts or retrieval, or hand off to outreach.
type Service struct {
	store  store.Store
	msg    *messaging.Service
	mgr    *outreach.Manager
	coord  *outreach.Coordinator
	facts  *factcache.Cache
	ret    Retriever
	interp *reply.Interpreter
	log    zerolog.Logger
}

func New(s store.Store, msg *messaging.Service, mgr *outreach.Manager, coord *outreach.Coordinator, facts *factcache.Cache, ret Retriever, interp *reply.Interpreter, log zerolog.Logger) *Service {
	return &Service{
		store:  s,
		msg:    msg,
		mgr:    mgr,
		coord:  coord,
		facts:  facts,
		ret:    ret,
		interp: interp,
		log:    log.With().Str("component", "assistant").Logger(),
	}
}

func buildUI(mode model.Mode) UIHints {
	return UIHints{
		ShowStatusButton:   mode == model.ModeOutreach,
		ShowCancelButton:   mode == model.ModeOutreach,
		ShowConsentButtons: mode == model.ModeAwaitingConsent,
	}
}

// Handle processes one inbound message on the user's assistant channel.
func (s *Service) Handle(ctx context.Context, userID, text string) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", model.ErrValidation)
	}

	profile, err := s.store.Profiles().Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ch, err := s.msg.AssistantChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.msg.Send(ctx, ch.ChannelID, userID, text); err != nil {
		s.log.Warn().Err(err).Str("userId", userID).Msg("inbound message record failed")
	}

	st, err := s.store.States().GetOrCreate(ctx, userID, ch.ChannelID)
	if err != nil {
		return nil, err
	}

	res := intent.Classify(text, st.ActiveTask != nil, st.Mode == model.ModeAwaitingConsent)

	if st.Mode == model.ModeAwaitingConsent && res.Intent == intent.ConsentResponse {
		return s.handleConsent(ctx, st, text)
	}
	if res.Intent == intent.CancelTask {
		return s.handleCancel(ctx, st)
	}

	answer := s.answerFromRecords(ctx, profile.UniversityID, res)
	tr := conversation.Determine(st.Mode, res, st.ActiveTask, answer != nil)

	st.Mode = tr.Mode
	st.ActiveTask = tr.ActiveTask

	resp := &Response{Mode: tr.Mode, Intent: string(res.Intent), Task: tr.ActiveTask, UI: buildUI(tr.Mode)}

	switch {
	case tr.Mode == model.ModeOutreach && tr.ActiveTask != nil && tr.ActiveTask.RunID == "":
		run, err := s.mgr.Start(ctx, outreach.StartParams{
			RequesterID:  userID,
			UniversityID: profile.UniversityID,
			ChannelID:    ch.ChannelID,
			Query:        res.Raw,
			Intent:       string(res.Intent),
			Tags:         res.Entities,
		})
		if err != nil {
			return nil, err
		}
		tr.ActiveTask.RunID = run.RunID
		resp.RunID = run.RunID
		resp.AnswerText = "not sure yet - i'll ask a few people and report back."
		resp.Confidence = 0.5
	case tr.Mode == model.ModeOutreach && tr.ActiveTask != nil && tr.ActiveTask.RunID != "":
		// A run is already live for this ask. Report status instead of
		// minting a second run.
		resp.RunID = tr.ActiveTask.RunID
		resp.AnswerText = "still asking around - i'll report back soon."
		resp.Confidence = 0.5
	case answer != nil:
		resp.AnswerText = answer.Text
		resp.Confidence = answer.Confidence
		resp.Citations = answer.Citations
		if tr.ActiveTask != nil {
			tr.ActiveTask.Status = model.TaskResolved
			st.ResolvedTasks = append(st.ResolvedTasks, *tr.ActiveTask)
			st.ActiveTask = nil
			st.Mode = model.ModeConversation
			resp.Mode = st.Mode
			resp.Task = nil
			resp.UI = buildUI(st.Mode)
		}
	default:
		resp.AnswerText = s.conversationalReply(res)
		resp.Confidence = 0.3
	}

	if _, err := s.store.States().Update(ctx, st); err != nil {
		return nil, err
	}

	conf := resp.Confidence
	s.msg.NotifyBestEffort(ctx, ch.ChannelID, resp.AnswerText, &model.MessageMeta{
		ShareType:  "text",
		RunID:      resp.RunID,
		TaskState:  taskState(st.ActiveTask),
		Confidence: &conf,
		Citations:  resp.Citations,
	})
	return resp, nil
}

func taskState(t *model.Task) string {
	if t == nil {
		return ""
	}
	return string(t.Status)
}

// answer is a grounded direct answer built from cached facts or retrieval.
type answer struct {
	Text       string
	Confidence float64
	Citations  []string
}

// answerFromRecords tries cached verified facts first, then the search
// index. Returns nil when nothing usable exists, which routes
// people-search intents into outreach.
func (s *Service) answerFromRecords(ctx context.Context, universityID string, res intent.Result) *answer {
	switch res.Intent {
	case intent.DBQuery, intent.EventSearch, intent.ClubSearch, intent.CampusInfo, intent.CountQuery, intent.PeopleSearch:
	default:
		return nil
	}

	facts, err := s.facts.Lookup(ctx, universityID, res.Entities)
	if err != nil {
		s.log.Warn().Err(err).Msg("fact lookup failed")
	}
	if len(facts) > 0 {
		v := confidence.Direct(len(facts), 1.0, facts)
		citations := make([]string, 0, len(facts))
		for _, f := range facts {
			citations = append(citations, f.FactID)
		}
		return &answer{
			Text:       fmt.Sprintf("from what i've verified: %s", facts[0].Value),
			Confidence: v.Score,
			Citations:  citations,
		}
	}

	if s.ret == nil {
		return nil
	}
	found, err := s.ret.Search(ctx, universityID, res.Raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("retrieval failed, treating query as unanswerable")
		return nil
	}
	if len(found.Hits) == 0 {
		return nil
	}
	v := confidence.Direct(len(found.Hits), found.Agreement, nil)
	citations := make([]string, 0, len(found.Hits))
	for _, h := range found.Hits {
		citations = append(citations, h.DocID)
	}
	a := &answer{
		Text:       fmt.Sprintf("here's what i found: %s", found.Hits[0].Text),
		Confidence: v.Score,
		Citations:  citations,
	}
	s.writeBack(ctx, universityID, res, found)
	return a
}

// writeBack caches a confident retrieval answer for future lookups.
// Best-effort.
func (s *Service) writeBack(ctx context.Context, universityID string, res intent.Result, found retrieval.Result) {
	v := confidence.Direct(len(found.Hits), found.Agreement, nil)
	category := "profile"
	switch res.Intent {
	case intent.EventSearch:
		category = "event"
	case intent.ClubSearch:
		category = "club"
	}
	key := res.Raw
	if len(res.Entities) > 0 {
		key = strings.Join(res.Entities, " ")
	}
	ref := found.Hits[0].DocID
	ok, err := s.facts.Write(ctx, &model.VerifiedFact{
		UniversityID:  universityID,
		SubjectType:   "campus",
		Category:      category,
		Key:           key,
		Value:         found.Hits[0].Text,
		Confidence:    v.Score,
		Source:        "db_record",
		SourceRef:     &ref,
		ConsentStatus: "granted",
	}, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("fact write-back failed")
	} else if ok {
		s.log.Debug().Str("key", key).Msg("answer cached as verified fact")
	}
}

// handleConsent maps the requester's yes/no onto the pending run.
func (s *Service) handleConsent(ctx context.Context, st *model.ConversationState, text string) (*Response, error) {
	run, err := s.store.Runs().LatestActiveByRequester(ctx, st.UserID)
	if err != nil {
		return nil, err
	}
	in := s.interp.Interpret(ctx, text)
	if in.Consent == reply.ConsentUnknown {
		return &Response{
			Mode:       st.Mode,
			Intent:     string(intent.ConsentResponse),
			AnswerText: "just to confirm - want me to connect you? reply YES or NO.",
			Confidence: 0.3,
			RunID:      run.RunID,
			Task:       st.ActiveTask,
			UI:         buildUI(st.Mode),
		}, nil
	}

	resolved, err := s.coord.Resolve(ctx, run.RunID, in.Consent == reply.ConsentYes, true)
	if err != nil {
		return nil, err
	}
	text = "got it - i'll keep looking for someone else."
	if resolved.Status == model.RunDone {
		text = "connected - i made a chat."
	}
	mode := model.ModeConversation
	return &Response{
		Mode:       mode,
		Intent:     string(intent.ConsentResponse),
		AnswerText: text,
		Confidence: 0.9,
		RunID:      run.RunID,
		UI:         buildUI(mode),
	}, nil
}

// handleCancel fails the active run, clears the task and returns to
// conversation mode.
func (s *Service) handleCancel(ctx context.Context, st *model.ConversationState) (*Response, error) {
	var runID string
	if st.ActiveTask != nil && st.ActiveTask.RunID != "" {
		runID = st.ActiveTask.RunID
		if _, err := s.mgr.Cancel(ctx, runID); err != nil {
			s.log.Warn().Err(err).Str("runId", runID).Msg("run cancel failed")
		}
	}
	st.Mode = model.ModeConversation
	st.ActiveTask = nil
	if _, err := s.store.States().Update(ctx, st); err != nil {
		return nil, err
	}
	return &Response{
		Mode:       model.ModeConversation,
		Intent:     string(intent.CancelTask),
		AnswerText: "okay, cancelled. anything else?",
		Confidence: 0.9,
		RunID:      runID,
		UI:         buildUI(model.ModeConversation),
	}, nil
}

func (s *Service) conversationalReply(res intent.Result) string {
	switch res.Intent {
	case intent.Greeting:
		return "hey! i can find people, clubs and events around campus. what do you need?"
	case intent.SmallTalk:
		return "all good here. ask me about people, clubs or events whenever."
	case intent.Followup:
		return "still on it - ask me to check status anytime."
	case intent.ProfileQuestion:
		return "i only share what people have opted in to. ask me about clubs or events instead."
	default:
		return "not sure i follow - try asking about a person, club or event on campus."
	}
}
