package channel

import "errors"

var (
	// ErrParticipantRequired indicates an empty participant id.
	ErrParticipantRequired = errors.New("participant id is required")
	// ErrInvalidParticipant indicates a participant id containing Separator.
	ErrInvalidParticipant = errors.New("participant id must not contain " + Separator)
	// ErrSelfChannel indicates a channel between a user and themselves.
	ErrSelfChannel = errors.New("channel participants must differ")
	// ErrChannelRequired indicates an empty channel id.
	ErrChannelRequired = errors.New("channel id is required")
	// ErrConfiguration wraps precondition failures detected on Open.
	ErrConfiguration = errors.New("subscription misconfigured")
	// ErrNotParticipant indicates the current user is not part of the channel.
	ErrNotParticipant = errors.New("current user is not a channel participant")
	// ErrAlreadySubscribed indicates a second Open for the same channel.
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	// ErrManagerClosed indicates Open after CloseAll.
	ErrManagerClosed = errors.New("subscription manager closed")
)
