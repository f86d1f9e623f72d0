// Package messaging sends and reads channel messages on behalf of the
// assistant identity.
package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/store"
)

// DefaultAssistantID is the sender recorded on assistant-authored messages.
const DefaultAssistantID = "link"

// Service is the store-backed messaging capability.
type Service struct {
	store       store.Store
	assistantID string
	log         zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, assistantID: DefaultAssistantID, log: log}
}

// AssistantID returns the identity used for assistant messages.
func (s *Service) AssistantID() string { return s.assistantID }

// AssistantChannel returns (creating if needed) the user's assistant channel.
func (s *Service) AssistantChannel(ctx context.Context, userID string) (*model.Channel, error) {
	return s.store.Channels().GetOrCreateAssistant(ctx, userID)
}

// DM returns (creating if needed) the direct channel between two users.
func (s *Service) DM(ctx context.Context, userA, userB string) (*model.Channel, error) {
	return s.store.Channels().GetOrCreateDM(ctx, userA, userB)
}

// Send records a user-authored message in a channel.
func (s *Service) Send(ctx context.Context, channelID, senderID, body string) (*model.Message, error) {
	return s.store.Messages().Insert(ctx, &model.Message{
		ChannelID: channelID,
		SenderID:  senderID,
		Body:      body,
	})
}

// SendAssistant records an assistant message, optionally with structured
// metadata for client rendering.
func (s *Service) SendAssistant(ctx context.Context, channelID, body string, meta *model.MessageMeta) (*model.Message, error) {
	return s.store.Messages().Insert(ctx, &model.Message{
		ChannelID: channelID,
		SenderID:  s.assistantID,
		Body:      body,
		Meta:      meta,
	})
}

// NotifyBestEffort sends an assistant message and only logs on failure.
// Notification inserts never abort the operation that triggered them.
func (s *Service) NotifyBestEffort(ctx context.Context, channelID, body string, meta *model.MessageMeta) {
	if _, err := s.SendAssistant(ctx, channelID, body, meta); err != nil {
		s.log.Warn().Err(err).Str("channel_id", channelID).Msg("notification insert failed")
	}
}

// RepliesSince returns messages a specific user sent in a channel after the
// given time.
func (s *Service) RepliesSince(ctx context.Context, channelID string, after time.Time, sender string, limit int) ([]*model.Message, error) {
	return s.store.Messages().ListSince(ctx, channelID, after, sender, limit)
}
