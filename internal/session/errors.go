package session

import "errors"

var (
	// ErrClosed indicates a call on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrMessageNotFound indicates a playback request for an unknown message.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotAudio indicates a playback request for a non-audio message.
	ErrNotAudio = errors.New("message is not an audio message")
	// ErrSendInFlight indicates a send while the previous one is pending.
	ErrSendInFlight = errors.New("a send is already in progress")
	// ErrSessionOpen indicates a second session for the same user and channel.
	ErrSessionOpen = errors.New("session already open for this channel")
)
