package docstore

import "errors"

var (
	// ErrChannelRequired indicates a subscribe or append without a channel id.
	ErrChannelRequired = errors.New("channel id is required")
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("document store closed")
	// ErrInvalidRecord indicates a record missing required fields.
	ErrInvalidRecord = errors.New("invalid record")
)
