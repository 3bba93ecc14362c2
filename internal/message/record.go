package message

import (
	"fmt"
	"strings"

	"github.com/memohai/chatsync/internal/docstore"
)

// ToRecord converts a new message into its stored shape. A zero CreatedAt
// asks the store for a server timestamp.
func ToRecord(channelID string, m Message) (docstore.Record, error) {
	rec := docstore.Record{
		ID:        m.ID,
		ChannelID: channelID,
		SenderID:  m.SenderID,
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt.UTC()
		rec.CreatedAt = &t
	}
	switch p := m.Payload.(type) {
	case Text:
		if strings.TrimSpace(p.Body) == "" {
			return docstore.Record{}, ErrEmptyText
		}
		rec.Type = string(KindText)
		rec.Text = p.Body
	case Media:
		if !p.MediaKind.IsMedia() || p.FileURL == "" {
			return docstore.Record{}, fmt.Errorf("%w: kind %q url %q", ErrInvalidMedia, p.MediaKind, p.FileURL)
		}
		rec.Type = string(p.MediaKind)
		rec.FileURL = p.FileURL
		rec.FileName = p.FileName
	default:
		return docstore.Record{}, fmt.Errorf("%w: %T", ErrUnknownPayload, m.Payload)
	}
	return rec, nil
}

// FromRecord decodes a stored record.
func FromRecord(rec docstore.Record) (Message, error) {
	if rec.ID == "" {
		return Message{}, fmt.Errorf("%w: missing id", docstore.ErrInvalidRecord)
	}
	payload, err := payloadFor(Kind(rec.Type), rec.Text, rec.FileURL, rec.FileName)
	if err != nil {
		return Message{}, err
	}
	m := Message{ID: rec.ID, SenderID: rec.SenderID, Payload: payload}
	if rec.CreatedAt != nil {
		m.CreatedAt = rec.CreatedAt.UTC()
	}
	return m, nil
}

// FromRecords decodes a snapshot, returning the decoded messages in input
// order and the records that failed with their errors.
func FromRecords(records []docstore.Record) ([]Message, []RecordError) {
	out := make([]Message, 0, len(records))
	var failed []RecordError
	for _, rec := range records {
		m, err := FromRecord(rec)
		if err != nil {
			failed = append(failed, RecordError{ID: rec.ID, Err: err})
			continue
		}
		out = append(out, m)
	}
	return out, failed
}

// RecordError pairs a record id with its decode failure.
type RecordError struct {
	ID  string
	Err error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

