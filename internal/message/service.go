package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/identity"
)

// Service creates messages on behalf of the current user.
type Service struct {
	appender docstore.Appender
	identity identity.Identity
	logger   *slog.Logger
}

// NewService creates a message service for id.
func NewService(log *slog.Logger, appender docstore.Appender, id identity.Identity) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		appender: appender,
		identity: id,
		logger:   log.With(slog.String("service", "message")),
	}
}

// SendText appends a text message. Surrounding whitespace is kept, but a
// message of only whitespace is rejected.
func (s *Service) SendText(ctx context.Context, channelID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return s.Send(ctx, channelID, Text{Body: text})
}

// Send appends a message carrying payload with a pending timestamp. It does
// not retry.
func (s *Service) Send(ctx context.Context, channelID string, payload Payload) (string, error) {
	if err := s.identity.Require(); err != nil {
		return "", err
	}
	if strings.TrimSpace(channelID) == "" {
		return "", docstore.ErrChannelRequired
	}
	rec, err := ToRecord(channelID, Message{SenderID: s.identity.UserID, Payload: payload})
	if err != nil {
		return "", err
	}
	id, err := s.appender.Append(ctx, channelID, rec)
	if err != nil {
		s.logger.Error("append message failed", slog.String("channel_id", channelID), slog.String("type", rec.Type), slog.Any("error", err))
		return "", fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("message sent", slog.String("channel_id", channelID), slog.String("id", id), slog.String("type", rec.Type))
	return id, nil
}
