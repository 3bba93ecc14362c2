package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/playback"
	"github.com/memohai/chatsync/internal/session"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 1 << 20
	sendBuffer    = 256
)

// Client frame types.
const (
	frameDraft       = "draft"
	frameSend        = "send"
	frameRecordStart = "record.start"
	frameRecordStop  = "record.stop"
	framePlay        = "play"
	frameSeek        = "seek"
	frameProgress    = "progress"
)

type clientFrame struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	MessageID  string `json:"message_id"`
	PositionMS int64  `json:"position_ms"`
	DurationMS int64  `json:"duration_ms"`
}

type cursorPayload struct {
	MessageID  string `json:"message_id,omitempty"`
	State      string `json:"state"`
	PositionMS int64  `json:"position_ms"`
	DurationMS int64  `json:"duration_ms"`
}

func cursorEvent(c playback.Cursor) cursorPayload {
	return cursorPayload{
		MessageID:  c.MessageID,
		State:      string(c.State),
		PositionMS: c.Position.Milliseconds(),
		DurationMS: c.Duration.Milliseconds(),
	}
}

// SessionHandler upgrades chat screens to websocket sessions.
type SessionHandler struct {
	sessions *session.Factory
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. checkOrigin may be nil to
// accept any origin.
func NewSessionHandler(log *slog.Logger, sessions *session.Factory, checkOrigin func(*http.Request) bool) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &SessionHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: log.With(slog.String("handler", "session")),
	}
}

func (h *SessionHandler) Register(e *echo.Echo) {
	e.GET("/channels/:channel_id/ws", h.Connect)
}

// Connect godoc
// @Summary Open a realtime chat session
// @Tags channels
// @Param channel_id path string true "Channel id"
// @Param token query string true "JWT"
// @Success 101
// @Failure 403 {object} ErrorResponse
// @Router /channels/{channel_id}/ws [get]
func (h *SessionHandler) Connect(c echo.Context) error {
	self, channelID, err := participantFromContext(c)
	if err != nil {
		return err
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	client := newWSClient(conn, cancel, h.logger.With(slog.String("user_id", self.UserID), slog.String("channel_id", string(channelID))))
	go client.writePump()
	defer client.close()

	sess, err := h.sessions.Open(ctx, self, channelID, client)
	if err != nil {
		client.Error(err)
		return nil
	}
	defer sess.Close(context.Background())

	client.readPump(ctx, sess)
	return nil
}

// wsClient is the Notifier of a session: events are queued and written by
// writePump. A client that falls behind by sendBuffer events is dropped.
type wsClient struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

var _ session.Notifier = (*wsClient)(nil)

func newWSClient(conn *websocket.Conn, cancel context.CancelFunc, log *slog.Logger) *wsClient {
	return &wsClient{
		conn:   conn,
		cancel: cancel,
		logger: log,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) Snapshot(msgs []message.Message) {
	if msgs == nil {
		msgs = []message.Message{}
	}
	c.emit(map[string]any{"type": "snapshot", "messages": msgs})
}

func (c *wsClient) Uploading(value bool) {
	c.emit(map[string]any{"type": "uploading", "value": value})
}

func (c *wsClient) Recording(state audio.State) {
	c.emit(map[string]any{"type": "recording", "state": string(state)})
}

func (c *wsClient) Playback(cursor playback.Cursor) {
	c.emit(map[string]any{"type": "playback", "cursor": cursorEvent(cursor)})
}

func (c *wsClient) Player(cmd session.PlayerCommand) {
	c.emit(map[string]any{
		"type":        "player",
		"command":     cmd.Command,
		"url":         cmd.URL,
		"position_ms": cmd.Position.Milliseconds(),
	})
}

func (c *wsClient) Error(err error) {
	c.emit(map[string]any{"type": "error", "message": err.Error(), "status": statusFor(err, http.StatusInternalServerError)})
}

func (c *wsClient) sent(id string) {
	c.emit(map[string]any{"type": "sent", "id": id})
}

func (c *wsClient) emit(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("encode event failed", slog.Any("type", event["type"]), slog.Any("error", err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("websocket client too slow, dropping")
		c.close()
	}
}

func (c *wsClient) readPump(ctx context.Context, sess *session.Session) {
	defer c.inflight.Wait()
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if err := sess.WriteAudio(data); err != nil {
				c.Error(err)
			}
		case websocket.TextMessage:
			var frame clientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				c.Error(fmt.Errorf("invalid frame: %w", err))
				continue
			}
			c.dispatch(ctx, sess, frame)
		}
	}
}

// dispatch applies one client frame. Sends and recording stops can wait on
// remote storage, so they run off the read loop.
func (c *wsClient) dispatch(ctx context.Context, sess *session.Session, frame clientFrame) {
	switch frame.Type {
	case frameSend:
		c.async(func() error {
			id, err := sess.Send(ctx)
			if err == nil {
				c.sent(id)
			}
			return err
		})
	case frameRecordStop:
		c.async(func() error {
			id, err := sess.StopRecording(ctx)
			if err == nil {
				c.sent(id)
			}
			return err
		})
	default:
		if err := applyFrame(ctx, sess, frame); err != nil {
			c.Error(err)
		}
	}
}

func (c *wsClient) async(fn func() error) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := fn(); err != nil {
			c.Error(err)
		}
	}()
}

func applyFrame(ctx context.Context, sess *session.Session, frame clientFrame) error {
	switch frame.Type {
	case frameDraft:
		return sess.SetDraft(frame.Text)
	case frameRecordStart:
		return sess.StartRecording(ctx)
	case framePlay:
		return sess.Play(ctx, frame.MessageID)
	case frameSeek:
		return sess.Seek(ctx, time.Duration(frame.PositionMS)*time.Millisecond)
	case frameProgress:
		sess.Progress(ctx, time.Duration(frame.PositionMS)*time.Millisecond, time.Duration(frame.DurationMS)*time.Millisecond)
		return nil
	default:
		return errors.New("unknown frame type " + frame.Type)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes events queued before close.
func (c *wsClient) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		// Unblock a read loop waiting on the peer.
		_ = c.conn.SetReadDeadline(time.Now())
	})
}
