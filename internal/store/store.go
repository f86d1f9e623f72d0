package store

import (
	"context"
	"time"

	"github.com/bondedhq/link-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (e.g., postgres, sqlite).
type Store interface {
	Profiles() Profiles
	States() States
	Runs() Runs
	Targets() Targets
	Facts() Facts
	Channels() Channels
	Messages() Messages
	Forums() Forums
}

type Profiles interface {
	Create(ctx context.Context, p *model.Profile) (*model.Profile, error)
	Get(ctx context.Context, userID string) (*model.Profile, error)
	ListActive(ctx context.Context, universityID string, limit int) ([]*model.Profile, error)
	Friends(ctx context.Context, userID string) ([]*model.Profile, error)
	Classmates(ctx context.Context, userID string) ([]*model.Profile, error)
	SearchText(ctx context.Context, universityID, needle string, limit int) ([]*model.Profile, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	AddEnrollment(ctx context.Context, userID, courseID string) error
}

type States interface {
	GetOrCreate(ctx context.Context, userID, channelID string) (*model.ConversationState, error)
	Update(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error)
}

type Runs interface {
	// Create fails with model.ErrConflict when the requester already has a
	// non-terminal run, regardless of query.
	Create(ctx context.Context, r *model.OutreachRun) (*model.OutreachRun, error)
	Get(ctx context.Context, runID string) (*model.OutreachRun, error)
	Update(ctx context.Context, r *model.OutreachRun) (*model.OutreachRun, error)
	LatestActiveByRequester(ctx context.Context, requesterID string) (*model.OutreachRun, error)
}

type Targets interface {
	Create(ctx context.Context, t *model.OutreachTarget) (*model.OutreachTarget, error)
	ListByRun(ctx context.Context, runID string) ([]*model.OutreachTarget, error)
	Update(ctx context.Context, t *model.OutreachTarget) (*model.OutreachTarget, error)
	// RecentTargetUserIDs returns users contacted by any of the requester's
	// runs since the given time, for re-contact cooldown enforcement.
	RecentTargetUserIDs(ctx context.Context, requesterID string, since time.Time) ([]string, error)
}

type Facts interface {
	Create(ctx context.Context, f *model.VerifiedFact) (*model.VerifiedFact, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Search(ctx context.Context, universityID, needle string, limit int) ([]*model.VerifiedFact, error)
	List(ctx context.Context, universityID string, limit int) ([]*model.VerifiedFact, error)
}

type Channels interface {
	Create(ctx context.Context, c *model.Channel) (*model.Channel, error)
	Get(ctx context.Context, channelID string) (*model.Channel, error)
	// GetOrCreateDM returns the direct channel between two users, creating it
	// when absent. Participant order does not matter.
	GetOrCreateDM(ctx context.Context, userA, userB string) (*model.Channel, error)
	GetOrCreateAssistant(ctx context.Context, userID string) (*model.Channel, error)
}

type Messages interface {
	Insert(ctx context.Context, m *model.Message) (*model.Message, error)
	Get(ctx context.Context, messageID string) (*model.Message, error)
	// ListSince returns messages in a channel sent strictly after the given
	// time; sender filters to one author when non-empty.
	ListSince(ctx context.Context, channelID string, after time.Time, sender string, limit int) ([]*model.Message, error)
}

type Forums interface {
	CreatePost(ctx context.Context, p *model.ForumPost) (*model.ForumPost, error)
	GetPost(ctx context.Context, postID string) (*model.ForumPost, error)
	AddComment(ctx context.Context, c *model.ForumComment) (*model.ForumComment, error)
	ListCommentsSince(ctx context.Context, postID string, after time.Time) ([]*model.ForumComment, error)
}
