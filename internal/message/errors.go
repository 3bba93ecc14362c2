package message

import "errors"

var (
	// ErrEmptyText indicates a text send with nothing but whitespace.
	ErrEmptyText = errors.New("message text is empty")
	// ErrUnknownPayload indicates a payload variant or stored type this
	// package does not handle.
	ErrUnknownPayload = errors.New("unknown message payload")
	// ErrInvalidMedia indicates a media payload without a kind or URL.
	ErrInvalidMedia = errors.New("invalid media payload")
)
