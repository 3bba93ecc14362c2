// Package call hands a chat channel over to the video conferencing
// service. The conference room is named exactly after the channel id, so
// both participants meet in the same room without any extra state.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/identity"
)

// DefaultTokenTTL bounds a join token when none is configured.
const DefaultTokenTTL = time.Hour

// ErrNotConfigured indicates that no conferencing credentials are set.
var ErrNotConfigured = errors.New("video calling is not configured")

// Config holds the LiveKit server and API credentials.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// Grant lets one participant join the room of a channel.
type Grant struct {
	Room      string    `json:"room"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues room join tokens.
type Service struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a call service. A service without credentials is
// valid and fails every Join with ErrNotConfigured.
func NewService(log *slog.Logger, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		cfg:    cfg,
		now:    time.Now,
		logger: log.With(slog.String("service", "call")),
	}
}

// Configured reports whether credentials are set.
func (s *Service) Configured() bool {
	return strings.TrimSpace(s.cfg.APIKey) != "" && strings.TrimSpace(s.cfg.APISecret) != ""
}

// Join issues a token for id to join the room of channelID.
func (s *Service) Join(_ context.Context, id identity.Identity, channelID channel.ID) (Grant, error) {
	if err := id.Require(); err != nil {
		return Grant{}, err
	}
	if strings.TrimSpace(string(channelID)) == "" {
		return Grant{}, channel.ErrChannelRequired
	}
	if !channelID.Includes(id.UserID) {
		return Grant{}, fmt.Errorf("%w: %s", channel.ErrNotParticipant, channelID)
	}
	if !s.Configured() {
		return Grant{}, ErrNotConfigured
	}

	room := string(channelID)
	token := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
	token.AddGrant(&auth.VideoGrant{
		Room:     room,
		RoomJoin: true,
	}).
		SetIdentity(id.UserID).
		SetValidFor(s.cfg.TokenTTL)
	jwt, err := token.ToJWT()
	if err != nil {
		s.logger.Error("sign call token failed", slog.String("room", room), slog.Any("error", err))
		return Grant{}, fmt.Errorf("sign call token: %w", err)
	}
	s.logger.Info("call token issued", slog.String("room", room), slog.String("user_id", id.UserID))
	return Grant{
		Room:      room,
		Token:     jwt,
		URL:       s.cfg.URL,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL).UTC(),
	}, nil
}
