package message

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type unknownPayload struct{}

func (unknownPayload) Kind() Kind { return "sticker" }
func (unknownPayload) payload()   {}

func TestMessageJSONShape(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "text",
			msg:  Message{ID: "m1", SenderID: "u1", CreatedAt: at, Payload: Text{Body: "hi"}},
			want: `{"id":"m1","senderId":"u1","createdAt":"2024-06-01T12:00:00Z","type":"text","text":"hi"}`,
		},
		{
			name: "pending audio",
			msg:  Message{ID: "m2", SenderID: "u2", Payload: Media{MediaKind: KindAudio, FileURL: "https://cdn/a.aac", FileName: "recording.aac"}},
			want: `{"id":"m2","senderId":"u2","createdAt":null,"type":"audio","fileUrl":"https://cdn/a.aac","fileName":"recording.aac"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("want %s\ngot  %s", tc.want, data)
			}
		})
	}
}

func TestMessageJSONRejectsUnknownPayload(t *testing.T) {
	t.Parallel()

	if _, err := json.Marshal(Message{ID: "m", Payload: unknownPayload{}}); !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("expected ErrUnknownPayload, got %v", err)
	}
	var m Message
	if err := json.Unmarshal([]byte(`{"id":"m","type":"sticker"}`), &m); !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("expected ErrUnknownPayload, got %v", err)
	}
}

func TestMessageUnmarshalImage(t *testing.T) {
	t.Parallel()

	var m Message
	if err := json.Unmarshal([]byte(`{"id":"m","senderId":"u","createdAt":null,"type":"image","fileUrl":"https://x/y.jpg","fileName":"y.jpg"}`), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	media, ok := m.Payload.(Media)
	if !ok || media.MediaKind != KindImage || media.FileName != "y.jpg" || !m.Pending() {
		t.Fatalf("unexpected message: %+v", m)
	}
}
