// Package channel resolves one-to-one channel ids and manages live
// subscriptions to a channel's message stream.
package channel

import (
	"strings"

	"github.com/memohai/chatsync/internal/identity"
)

// Separator joins the two participant ids of a channel id.
const Separator = identity.Separator

// ID identifies a one-to-one conversation. It is derived, never stored.
type ID string

func (id ID) String() string { return string(id) }

// Key returns the canonical channel id for two participants: the ids in
// byte-wise ascending order joined by Separator. Key(a, b) == Key(b, a).
// Ids containing Separator are rejected so two pairs never share a key.
func Key(a, b string) (ID, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", ErrParticipantRequired
	}
	if strings.Contains(a, Separator) || strings.Contains(b, Separator) {
		return "", ErrInvalidParticipant
	}
	if a == b {
		return "", ErrSelfChannel
	}
	if b < a {
		a, b = b, a
	}
	return ID(a + Separator + b), nil
}

// Peer returns the other participant of id from user's point of view.
func (id ID) Peer(user string) (string, bool) {
	s := string(id)
	if user == "" {
		return "", false
	}
	if rest, ok := strings.CutPrefix(s, user+Separator); ok && rest != "" {
		if k, err := Key(user, rest); err == nil && k == id {
			return rest, true
		}
	}
	if rest, ok := strings.CutSuffix(s, Separator+user); ok && rest != "" {
		if k, err := Key(rest, user); err == nil && k == id {
			return rest, true
		}
	}
	return "", false
}

// Includes reports whether user is one of the two participants of id.
func (id ID) Includes(user string) bool {
	_, ok := id.Peer(user)
	return ok
}
