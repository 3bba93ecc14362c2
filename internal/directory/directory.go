// Package directory lists the users the current user can start a chat with.
package directory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/identity"
)

// ErrNameRequired indicates a profile without a display name.
var ErrNameRequired = errors.New("profile name is required")

// Candidate is a user the current user may chat with, along with the
// channel they share.
type Candidate struct {
	UID       string     `json:"uid"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	ChannelID channel.ID `json:"channel_id"`
}

// Service reads and writes the user-profile collection.
type Service struct {
	profiles docstore.Directory
	logger   *slog.Logger
}

// NewService creates a directory service.
func NewService(log *slog.Logger, profiles docstore.Directory) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		profiles: profiles,
		logger:   log.With(slog.String("service", "directory")),
	}
}

// ListCandidates returns every profile except self, ordered by name.
func (s *Service) ListCandidates(ctx context.Context, self identity.Identity) ([]Candidate, error) {
	if err := self.Require(); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		s.logger.Error("list profiles failed", slog.Any("error", err))
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	others := lo.Filter(profiles, func(p docstore.Profile, _ int) bool {
		return strings.TrimSpace(p.UID) != "" && p.UID != self.UserID
	})
	candidates := lo.FilterMap(others, func(p docstore.Profile, _ int) (Candidate, bool) {
		key, err := channel.Key(self.UserID, p.UID)
		if err != nil {
			return Candidate{}, false
		}
		return Candidate{UID: p.UID, Name: p.Name, Email: p.Email, ChannelID: key}, true
	})
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.UID, b.UID),
		)
	})
	return candidates, nil
}

// UpsertSelf records the profile of the current user.
func (s *Service) UpsertSelf(ctx context.Context, self identity.Identity, name, email string) (docstore.Profile, error) {
	if err := self.Require(); err != nil {
		return docstore.Profile{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return docstore.Profile{}, ErrNameRequired
	}
	profile := docstore.Profile{UID: self.UserID, Name: name, Email: strings.TrimSpace(email)}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		s.logger.Error("upsert profile failed", slog.String("uid", self.UserID), slog.Any("error", err))
		return docstore.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}
