// Package message models chat messages and keeps the locally ordered view of
// a channel.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the wire type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindAudio Kind = "audio"
)

// IsMedia reports whether k is one of the attachment kinds.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindFile, KindAudio:
		return true
	default:
		return false
	}
}

// Payload is the content of a message: exactly one of Text or Media.
type Payload interface {
	Kind() Kind
	payload()
}

// Text is a plain text payload.
type Text struct {
	Body string
}

func (Text) Kind() Kind { return KindText }
func (Text) payload()   {}

// Media is an uploaded attachment.
type Media struct {
	MediaKind Kind
	FileURL   string
	FileName  string
}

func (m Media) Kind() Kind { return m.MediaKind }
func (Media) payload()     {}

// Message is an immutable chat message. A zero CreatedAt means the store has
// not assigned the server timestamp yet.
type Message struct {
	ID        string
	SenderID  string
	CreatedAt time.Time
	Payload   Payload
}

// Pending reports whether the server timestamp is still unresolved.
func (m Message) Pending() bool {
	return m.CreatedAt.IsZero()
}

// Kind returns the payload kind, or "" for a message without payload.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

type wireMessage struct {
	ID        string     `json:"id"`
	SenderID  string     `json:"senderId"`
	CreatedAt *time.Time `json:"createdAt"`
	Type      Kind       `json:"type"`
	Text      string     `json:"text,omitempty"`
	FileURL   string     `json:"fileUrl,omitempty"`
	FileName  string     `json:"fileName,omitempty"`
}

// MarshalJSON renders the flat client shape. Pending messages carry a null
// createdAt.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, SenderID: m.SenderID}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt.UTC()
		w.CreatedAt = &t
	}
	switch p := m.Payload.(type) {
	case Text:
		w.Type = KindText
		w.Text = p.Body
	case Media:
		w.Type = p.MediaKind
		w.FileURL = p.FileURL
		w.FileName = p.FileName
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, m.Payload)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the flat client shape.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := payloadFor(w.Type, w.Text, w.FileURL, w.FileName)
	if err != nil {
		return err
	}
	*m = Message{ID: w.ID, SenderID: w.SenderID, Payload: payload}
	if w.CreatedAt != nil {
		m.CreatedAt = w.CreatedAt.UTC()
	}
	return nil
}

func payloadFor(kind Kind, text, fileURL, fileName string) (Payload, error) {
	switch {
	case kind == KindText:
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
		return Text{Body: text}, nil
	case kind.IsMedia():
		if fileURL == "" {
			return nil, fmt.Errorf("%w: %s without url", ErrInvalidMedia, kind)
		}
		return Media{MediaKind: kind, FileURL: fileURL, FileName: fileName}, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownPayload, kind)
	}
}
