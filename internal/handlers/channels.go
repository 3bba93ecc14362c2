package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/auth"
	"github.com/memohai/chatsync/internal/call"
	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/identity"
	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/session"
)

// ChannelsHandler resolves channels and accepts messages, uploads and call
// joins outside of a websocket session.
type ChannelsHandler struct {
	appender docstore.Appender
	sessions *session.Factory
	calls    *call.Service
	maxBytes int64
	logger   *slog.Logger
}

type channelResponse struct {
	ChannelID channel.ID `json:"channel_id"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type sendMessageResponse struct {
	ID string `json:"id"`
}

// NewChannelsHandler creates a ChannelsHandler. maxBytes caps multipart
// uploads.
func NewChannelsHandler(log *slog.Logger, appender docstore.Appender, sessions *session.Factory, calls *call.Service, maxBytes int64) *ChannelsHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = media.MaxAssetBytes
	}
	return &ChannelsHandler{
		appender: appender,
		sessions: sessions,
		calls:    calls,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("handler", "channels")),
	}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/channels")
	group.GET("/with/:peer_id", h.ResolveChannel)
	group.POST("/:channel_id/messages", h.SendMessage)
	group.POST("/:channel_id/uploads", h.Upload)
	group.GET("/:channel_id/call", h.JoinCall)
}

// ResolveChannel godoc
// @Summary Resolve the channel shared with a peer
// @Tags channels
// @Param peer_id path string true "Peer user id"
// @Success 200 {object} channelResponse
// @Failure 400 {object} ErrorResponse
// @Router /channels/with/{peer_id} [get]
func (h *ChannelsHandler) ResolveChannel(c echo.Context) error {
	self, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	key, err := channel.Key(self.UserID, c.Param("peer_id"))
	if err != nil {
		return httpError(err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, channelResponse{ChannelID: key})
}

// SendMessage godoc
// @Summary Send a text message
// @Tags channels
// @Param channel_id path string true "Channel id"
// @Param payload body sendMessageRequest true "Message"
// @Success 201 {object} sendMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /channels/{channel_id}/messages [post]
func (h *ChannelsHandler) SendMessage(c echo.Context) error {
	self, channelID, err := h.participant(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	svc := message.NewService(h.logger, h.appender, self)
	id, err := svc.SendText(c.Request().Context(), string(channelID), req.Text)
	if err != nil {
		return httpError(err, http.StatusBadGateway)
	}
	return c.JSON(http.StatusCreated, sendMessageResponse{ID: id})
}

// Upload godoc
// @Summary Upload a media attachment
// @Description Stores the file and sends it as an image, audio or file message
// @Tags channels
// @Accept multipart/form-data
// @Param channel_id path string true "Channel id"
// @Param file formData file true "Attachment"
// @Param type formData string false "image, audio or file; detected when empty"
// @Success 201 {object} sendMessageResponse
// @Failure 409 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /channels/{channel_id}/uploads [post]
func (h *ChannelsHandler) Upload(c echo.Context) error {
	self, channelID, err := h.participant(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if err := media.CheckSize(fh.Size, h.maxBytes); err != nil {
		return httpError(err, http.StatusBadRequest)
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	path, err := spoolUpload(src, fh.Filename, h.maxBytes)
	if err != nil {
		return httpError(err, http.StatusInternalServerError)
	}
	defer os.Remove(path)

	asset, err := media.DetectAsset(path, filepath.Base(fh.Filename))
	if err != nil {
		return httpError(err, http.StatusBadRequest)
	}
	if override := strings.TrimSpace(c.FormValue("type")); override != "" {
		t, ok := parseMediaType(override)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "type must be image, audio or file")
		}
		asset.Type = t
	}

	id, err := h.sessions.Upload(c.Request().Context(), self, channelID, asset)
	if err != nil {
		return httpError(err, http.StatusBadGateway)
	}
	return c.JSON(http.StatusCreated, sendMessageResponse{ID: id})
}

// JoinCall godoc
// @Summary Join the video call of a channel
// @Tags channels
// @Param channel_id path string true "Channel id"
// @Success 200 {object} call.Grant
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /channels/{channel_id}/call [get]
func (h *ChannelsHandler) JoinCall(c echo.Context) error {
	self, channelID, err := h.participant(c)
	if err != nil {
		return err
	}
	grant, err := h.calls.Join(c.Request().Context(), self, channelID)
	if err != nil {
		return httpError(err, http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, grant)
}

func (h *ChannelsHandler) participant(c echo.Context) (identity.Identity, channel.ID, error) {
	return participantFromContext(c)
}

func participantFromContext(c echo.Context) (identity.Identity, channel.ID, error) {
	self, err := auth.IdentityFromContext(c)
	if err != nil {
		return identity.Identity{}, "", err
	}
	channelID := channel.ID(strings.TrimSpace(c.Param("channel_id")))
	if channelID == "" {
		return identity.Identity{}, "", httpError(channel.ErrChannelRequired, http.StatusBadRequest)
	}
	if !channelID.Includes(self.UserID) {
		return identity.Identity{}, "", httpError(fmt.Errorf("%w: %s", channel.ErrNotParticipant, channelID), http.StatusForbidden)
	}
	return self, channelID, nil
}

// spoolUpload copies an uploaded part to a temp file, keeping the original
// extension so detection and storage keys stay meaningful.
func spoolUpload(src io.Reader, name string, maxBytes int64) (string, error) {
	tmp, err := os.CreateTemp("", "chatsync-upload-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	n, err := io.Copy(tmp, io.LimitReader(src, maxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxBytes {
		err = media.ErrAssetTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func parseMediaType(raw string) (media.MediaType, bool) {
	switch t := media.MediaType(strings.ToLower(raw)); t {
	case media.MediaTypeImage, media.MediaTypeAudio, media.MediaTypeFile:
		return t, true
	default:
		return "", false
	}
}
