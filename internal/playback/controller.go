// Package playback arbitrates audio message playback: one message plays at
// a time and selecting another one stops the previous first.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/chatsync/internal/metrics"
)

// ErrNotActive indicates a seek with nothing playing or paused.
var ErrNotActive = errors.New("no active playback")

// State is the playback state of one message.
type State string

const (
	Stopped State = "stopped"
	Playing State = "playing"
	Paused  State = "paused"
)

// Cursor is the current playback position. MessageID is empty when nothing
// is active.
type Cursor struct {
	MessageID string        `json:"message_id,omitempty"`
	URL       string        `json:"url,omitempty"`
	State     State         `json:"state"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
}

// Transition is one observable state change of a message.
type Transition struct {
	MessageID string
	State     State
}

// String renders "M1:Playing".
func (t Transition) String() string {
	s := string(t.State)
	if s != "" {
		s = strings.ToUpper(s[:1]) + s[1:]
	}
	return t.MessageID + ":" + s
}

// Player drives the audio output.
type Player interface {
	Play(ctx context.Context, url string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
}

// Controller owns a Player. Observers run while the controller lock is
// held and must not call back into the controller.
type Controller struct {
	player  Player
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	cursor    Cursor
	observers []func(Transition, Cursor)
}

// NewController creates a controller over player. m may be nil.
func NewController(log *slog.Logger, player Player, m *metrics.Metrics) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		player:  player,
		logger:  log.With(slog.String("service", "playback")),
		metrics: m,
		cursor:  Cursor{State: Stopped},
	}
}

// OnTransition registers fn to observe state changes.
func (c *Controller) OnTransition(fn func(Transition, Cursor)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Cursor returns the current cursor.
func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Select toggles playback of messageID. Selecting the playing message
// pauses it, selecting the paused one resumes it, and selecting another
// message stops the active one before starting from zero.
func (c *Controller) Select(ctx context.Context, messageID, url string) error {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(url) == "" {
		return fmt.Errorf("message id and url are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor.MessageID == messageID {
		switch c.cursor.State {
		case Playing:
			if err := c.player.Pause(ctx); err != nil {
				return fmt.Errorf("pause: %w", err)
			}
			c.cursor.State = Paused
			c.emitLocked()
			return nil
		case Paused:
			if err := c.player.Resume(ctx); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			c.cursor.State = Playing
			c.emitLocked()
			return nil
		}
	}

	c.stopLocked(ctx)
	if err := c.player.Play(ctx, url); err != nil {
		c.logger.Error("playback start failed", slog.String("message_id", messageID), slog.Any("error", err))
		return fmt.Errorf("play: %w", err)
	}
	c.cursor = Cursor{MessageID: messageID, URL: url, State: Playing}
	c.emitLocked()
	return nil
}

// Progress reports the player position. Reaching the duration stops
// playback and clears the active message.
func (c *Controller) Progress(ctx context.Context, position, duration time.Duration) Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor.State != Playing {
		return c.cursor
	}
	c.cursor.Position = position
	c.cursor.Duration = duration
	if duration > 0 && position >= duration {
		c.stopLocked(ctx)
	}
	return c.cursor
}

// Seek moves the active playback without changing its state.
func (c *Controller) Seek(ctx context.Context, position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor.State == Stopped {
		return ErrNotActive
	}
	if position < 0 {
		position = 0
	}
	if c.cursor.Duration > 0 && position > c.cursor.Duration {
		position = c.cursor.Duration
	}
	if err := c.player.Seek(ctx, position); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	c.cursor.Position = position
	return nil
}

// Stop ends any active playback.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) {
	if c.cursor.State == Stopped {
		return
	}
	if err := c.player.Stop(ctx); err != nil {
		c.logger.Warn("player stop failed", slog.String("message_id", c.cursor.MessageID), slog.Any("error", err))
	}
	c.cursor.State = Stopped
	c.emitLocked()
	c.cursor = Cursor{State: Stopped}
}

func (c *Controller) emitLocked() {
	c.metrics.PlaybackTransition(string(c.cursor.State))
	t := Transition{MessageID: c.cursor.MessageID, State: c.cursor.State}
	for _, fn := range c.observers {
		fn(t, c.cursor)
	}
}
