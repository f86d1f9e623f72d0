package model

import "time"

// Mode is the conversational mode tracked per user channel.
type Mode string

const (
	ModeIdle            Mode = "idle"
	ModeConversation    Mode = "conversation"
	ModeAgent           Mode = "agent"
	ModeOutreach        Mode = "outreach"
	ModeAwaitingConsent Mode = "awaiting_consent"
)

// RunStatus is the lifecycle state of an outreach run.
type RunStatus string

const (
	RunCollecting      RunStatus = "collecting"
	RunForumPosted     RunStatus = "forum_posted"
	RunAwaitingConsent RunStatus = "awaiting_consent"
	RunDone            RunStatus = "done"
	RunExpired         RunStatus = "expired"
	RunFailed          RunStatus = "failed"
)

// Terminal reports whether a run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunExpired || s == RunFailed
}

// TargetStatus is the per-target delivery state within a run.
type TargetStatus string

const (
	TargetSent     TargetStatus = "sent"
	TargetReplied  TargetStatus = "replied"
	TargetDeclined TargetStatus = "declined"
)

// TaskStatus tracks the active task attached to a conversation state.
type TaskStatus string

const (
	TaskPending      TaskStatus = "pending"
	TaskSearching    TaskStatus = "searching"
	TaskOutreachSent TaskStatus = "outreach_sent"
	TaskResolved     TaskStatus = "resolved"
	TaskDeclined     TaskStatus = "declined"
	TaskFailed       TaskStatus = "failed"
)

// Task is the unit of work a conversation is currently pursuing.
type Task struct {
	TaskID    string      `json:"taskId"`
	Type      string      `json:"type"`
	Query     string      `json:"query"`
	Status    TaskStatus  `json:"status"`
	StartedAt time.Time   `json:"startedAt"`
	RunID     string      `json:"runId,omitempty"`
	Result    *TaskResult `json:"result,omitempty"`
}

// TaskResult records how a task ended.
type TaskResult struct {
	Summary    string    `json:"summary,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// ConsentEntry is a pending consent question attached to a conversation state.
type ConsentEntry struct {
	RunID       string    `json:"runId"`
	Role        string    `json:"role"` // "requester" or "target"
	UserID      string    `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
	Response    string    `json:"response"` // pending | yes | no
}

// ConversationState is the durable per-user conversational mode record.
// Created lazily on first message and never deleted.
type ConversationState struct {
	StateID         string         `json:"stateId"`
	UserID          string         `json:"userId"`
	ChannelID       string         `json:"channelId"`
	Mode            Mode           `json:"mode"`
	ActiveTask      *Task          `json:"activeTask,omitempty"`
	PendingConsents []ConsentEntry `json:"pendingConsents,omitempty"`
	ResolvedTasks   []Task         `json:"resolvedTasks,omitempty"`
	CreationTime    time.Time      `json:"creationTime"`
	UpdateTime      time.Time      `json:"updateTime"`
}

// OutreachRun is one bounded crowdsourcing campaign.
type OutreachRun struct {
	RunID              string     `json:"runId"`
	RequesterID        string     `json:"requesterId"`
	UniversityID       string     `json:"universityId"`
	ChannelID          string     `json:"channelId"` // requester's assistant channel
	Query              string     `json:"query"`
	Intent             string     `json:"intent"`
	Tags               []string   `json:"tags,omitempty"`
	Status             RunStatus  `json:"status"`
	BatchNumber        int        `json:"batchNumber"`
	Expansions         int        `json:"expansions"`
	BatchSize          int        `json:"batchSize"`
	HardCap            int        `json:"hardCap"`
	TargetThreshold    float64    `json:"targetConfidenceThreshold"`
	RepliesReceived    int        `json:"repliesReceived"`
	PositiveReplies    int        `json:"positiveReplies"`
	Confidence         *float64   `json:"confidence,omitempty"`
	SuggestedCandidate *string    `json:"suggestedCandidateId,omitempty"`
	ForumPostID        *string    `json:"forumPostId,omitempty"`
	ForumPostedAt      *time.Time `json:"forumPostedAt,omitempty"`
	CreationTime       time.Time  `json:"creationTime"`
	UpdateTime         time.Time  `json:"updateTime"`
}

// OutreachTarget is a user asked during a run. Unique per (run, user).
type OutreachTarget struct {
	TargetID        string       `json:"targetId"`
	RunID           string       `json:"runId"`
	UserID          string       `json:"userId"`
	ChannelID       string       `json:"channelId"`
	MessageID       string       `json:"messageId"`
	ReplyMessageID  *string      `json:"replyMessageId,omitempty"`
	SourceCommentID *string      `json:"sourceCommentId,omitempty"`
	Reason          string       `json:"reason,omitempty"` // cascade stage that selected the target
	Status          TargetStatus `json:"status"`
	SentAt          time.Time    `json:"sentAt"`
	UpdateTime      time.Time    `json:"updateTime"`
}

// CandidateScore is derived per collection pass; it is never persisted.
type CandidateScore struct {
	UserID       string   `json:"userId"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
	SupportCount int      `json:"supportCount"`
	Consent      bool     `json:"consent"`
}

// VerifiedFact is a cached, time-bounded answer reusable across future
// identical information needs. Expired facts are never served.
type VerifiedFact struct {
	FactID        string    `json:"factId"`
	UniversityID  string    `json:"universityId"`
	SubjectType   string    `json:"subjectType"`
	SubjectID     *string   `json:"subjectId,omitempty"`
	Category      string    `json:"category"` // event | profile | club | outreach
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	Confidence    float64   `json:"confidence"`
	Source        string    `json:"source"` // db_record | outreach_reply
	SourceRef     *string   `json:"sourceRef,omitempty"`
	ConsentStatus string    `json:"consentStatus"`
	VerifiedAt    time.Time `json:"verifiedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Profile is a directory entry used for target selection.
type Profile struct {
	UserID       string    `json:"userId"`
	UniversityID string    `json:"universityId"`
	FullName     string    `json:"fullName"`
	Username     string    `json:"username"`
	Major        string    `json:"major,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Interests    []string  `json:"interests,omitempty"`
	Active       bool      `json:"active"`
	CreationTime time.Time `json:"creationTime"`
}

// ChannelKind distinguishes assistant, direct and group channels.
type ChannelKind string

const (
	ChannelAssistant ChannelKind = "assistant"
	ChannelDM        ChannelKind = "dm"
	ChannelGroup     ChannelKind = "group"
)

// Channel is a two-party or group message channel.
type Channel struct {
	ChannelID    string      `json:"channelId"`
	Kind         ChannelKind `json:"kind"`
	Participants []string    `json:"participants"`
	CreationTime time.Time   `json:"creationTime"`
}

// MessageMeta is the structured payload attached to assistant messages.
type MessageMeta struct {
	ShareType       string   `json:"shareType,omitempty"`
	RunID           string   `json:"runId,omitempty"`
	RunStatus       string   `json:"runStatus,omitempty"`
	TaskState       string   `json:"taskState,omitempty"`
	AskedCount      int      `json:"askedCount,omitempty"`
	SuggestedUserID string   `json:"suggestedUserId,omitempty"`
	ForumPostID     string   `json:"forumPostId,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	Citations       []string `json:"citations,omitempty"`
}

// Message is one message in a channel.
type Message struct {
	MessageID string       `json:"messageId"`
	ChannelID string       `json:"channelId"`
	SenderID  string       `json:"senderId"`
	Body      string       `json:"body"`
	Meta      *MessageMeta `json:"meta,omitempty"`
	SentAt    time.Time    `json:"sentAt"`
}

// ForumPost is an anonymous public post created by the forum fallback.
type ForumPost struct {
	PostID       string    `json:"postId"`
	UniversityID string    `json:"universityId"`
	AuthorID     string    `json:"authorId"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags,omitempty"`
	Anonymous    bool      `json:"anonymous"`
	CreationTime time.Time `json:"creationTime"`
}

// ForumComment is a reply on a forum post.
type ForumComment struct {
	CommentID    string    `json:"commentId"`
	PostID       string    `json:"postId"`
	AuthorID     string    `json:"authorId"`
	Body         string    `json:"body"`
	CreationTime time.Time `json:"creationTime"`
}
