// Package identity carries the current user's stable identifier. It is
// resolved once by the caller (JWT claims, CLI flag) and handed to every
// component at construction time.
package identity

import (
	"errors"
	"strings"
)

// Separator joins the two user ids of a channel id, so user ids may not
// contain it.
const Separator = "_"

var (
	// ErrMissing indicates that no authenticated user is available.
	ErrMissing = errors.New("current user identity is required")
	// ErrInvalid indicates a user id containing Separator.
	ErrInvalid = errors.New("user id must not contain " + Separator)
)

// Identity is the authenticated user operating a chat session.
type Identity struct {
	UserID string `json:"user_id"`
}

// New builds an identity from a user id, rejecting blank ids and ids that
// would be ambiguous inside a channel id.
func New(userID string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if err := CheckUserID(userID); err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID}, nil
}

// CheckUserID validates a trimmed user id.
func CheckUserID(userID string) error {
	if userID == "" {
		return ErrMissing
	}
	if strings.Contains(userID, Separator) {
		return ErrInvalid
	}
	return nil
}

// Valid reports whether the identity carries a usable user id.
func (i Identity) Valid() bool {
	return i.Require() == nil
}

// Require returns ErrMissing for an empty identity and ErrInvalid for an id
// containing Separator.
func (i Identity) Require() error {
	return CheckUserID(strings.TrimSpace(i.UserID))
}

func (i Identity) String() string {
	return i.UserID
}
