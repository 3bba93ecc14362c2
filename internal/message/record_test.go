package message

import (
	"errors"
	"testing"
	"time"

	"github.com/memohai/chatsync/internal/docstore"
)

func TestToRecord(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		msg     Message
		wantErr error
		check   func(t *testing.T, rec docstore.Record)
	}{
		{
			name: "text requests server timestamp",
			msg:  Message{SenderID: "u1", Payload: Text{Body: "hello"}},
			check: func(t *testing.T, rec docstore.Record) {
				if rec.Type != "text" || rec.Text != "hello" || rec.CreatedAt != nil || rec.ChannelID != "u1_u2" {
					t.Fatalf("unexpected record: %+v", rec)
				}
			},
		},
		{
			name: "media",
			msg:  Message{SenderID: "u1", Payload: Media{MediaKind: KindFile, FileURL: "https://cdn/doc.pdf", FileName: "doc.pdf"}},
			check: func(t *testing.T, rec docstore.Record) {
				if rec.Type != "file" || rec.FileURL == "" || rec.FileName != "doc.pdf" {
					t.Fatalf("unexpected record: %+v", rec)
				}
			},
		},
		{name: "blank text", msg: Message{Payload: Text{Body: "  "}}, wantErr: ErrEmptyText},
		{name: "media without url", msg: Message{Payload: Media{MediaKind: KindImage}}, wantErr: ErrInvalidMedia},
		{name: "media with text kind", msg: Message{Payload: Media{MediaKind: KindText, FileURL: "x"}}, wantErr: ErrInvalidMedia},
		{name: "nil payload", msg: Message{}, wantErr: ErrUnknownPayload},
		{name: "foreign payload", msg: Message{Payload: unknownPayload{}}, wantErr: ErrUnknownPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, err := ToRecord("u1_u2", tc.msg)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, rec)
		})
	}
}

func TestFromRecords(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msgs, failed := FromRecords([]docstore.Record{
		{ID: "a", SenderID: "u1", Type: "text", Text: "hi", CreatedAt: &at},
		{ID: "b", SenderID: "u1", Type: "video", FileURL: "x"},
		{ID: "c", SenderID: "u2", Type: "audio", FileURL: "https://cdn/r.aac", FileName: "recording.aac"},
		{ID: "", SenderID: "u2", Type: "text", Text: "no id"},
		{ID: "e", SenderID: "u2", Type: "text"},
	})
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "c" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !msgs[0].CreatedAt.Equal(at) || !msgs[1].Pending() {
		t.Fatalf("unexpected timestamps: %+v", msgs)
	}
	if len(failed) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(failed))
	}
	if !errors.Is(failed[0], ErrUnknownPayload) || failed[0].ID != "b" {
		t.Fatalf("unexpected failure: %v", failed[0])
	}
	if !errors.Is(failed[2], ErrEmptyText) {
		t.Fatalf("unexpected failure: %v", failed[2])
	}
}
