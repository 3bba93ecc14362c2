package session

import (
	"context"
	"time"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/playback"
)

// Notifier receives every state change of a session. Implementations must
// not block and must not call back into the session.
type Notifier interface {
	Snapshot(msgs []message.Message)
	Uploading(value bool)
	Recording(state audio.State)
	Playback(cursor playback.Cursor)
	Player(cmd PlayerCommand)
	Error(err error)
}

// Player commands forwarded to the client.
const (
	PlayerPlay   = "play"
	PlayerPause  = "pause"
	PlayerResume = "resume"
	PlayerStop   = "stop"
	PlayerSeek   = "seek"
)

// PlayerCommand asks the client to drive its audio element.
type PlayerCommand struct {
	Command  string
	URL      string
	Position time.Duration
}

// remotePlayer is the playback device of a session: the client owns the
// audio output and follows the commands it is sent.
type remotePlayer struct {
	notifier Notifier
}

var _ playback.Player = remotePlayer{}

func (p remotePlayer) Play(_ context.Context, url string) error {
	p.notifier.Player(PlayerCommand{Command: PlayerPlay, URL: url})
	return nil
}

func (p remotePlayer) Pause(context.Context) error {
	p.notifier.Player(PlayerCommand{Command: PlayerPause})
	return nil
}

func (p remotePlayer) Resume(context.Context) error {
	p.notifier.Player(PlayerCommand{Command: PlayerResume})
	return nil
}

func (p remotePlayer) Stop(context.Context) error {
	p.notifier.Player(PlayerCommand{Command: PlayerStop})
	return nil
}

func (p remotePlayer) Seek(_ context.Context, position time.Duration) error {
	p.notifier.Player(PlayerCommand{Command: PlayerSeek, Position: position})
	return nil
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Snapshot([]message.Message) {}
func (NopNotifier) Uploading(bool)             {}
func (NopNotifier) Recording(audio.State)      {}
func (NopNotifier) Playback(playback.Cursor)   {}
func (NopNotifier) Player(PlayerCommand)       {}
func (NopNotifier) Error(error)                {}
