package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/call"
	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/directory"
	"github.com/memohai/chatsync/internal/identity"
	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/playback"
	"github.com/memohai/chatsync/internal/session"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// statusFor maps domain errors to HTTP status codes. Unclassified errors
// get fallback.
func statusFor(err error, fallback int) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, identity.ErrMissing),
		errors.Is(err, identity.ErrInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, channel.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, media.ErrUploadInFlight),
		errors.Is(err, audio.ErrRecordingActive),
		errors.Is(err, session.ErrSessionOpen),
		errors.Is(err, session.ErrSendInFlight),
		errors.Is(err, channel.ErrAlreadySubscribed):
		return http.StatusConflict
	case errors.Is(err, media.ErrAssetTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrMessageNotFound),
		errors.Is(err, media.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, call.ErrNotConfigured),
		errors.Is(err, media.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, message.ErrEmptyText),
		errors.Is(err, message.ErrInvalidMedia),
		errors.Is(err, message.ErrUnknownPayload),
		errors.Is(err, channel.ErrChannelRequired),
		errors.Is(err, channel.ErrConfiguration),
		errors.Is(err, channel.ErrParticipantRequired),
		errors.Is(err, channel.ErrSelfChannel),
		errors.Is(err, channel.ErrInvalidParticipant),
		errors.Is(err, media.ErrEmptyAsset),
		errors.Is(err, media.ErrPathTraversal),
		errors.Is(err, audio.ErrNotRecording),
		errors.Is(err, audio.ErrSinkClosed),
		errors.Is(err, playback.ErrNotActive),
		errors.Is(err, session.ErrNotAudio),
		errors.Is(err, directory.ErrNameRequired):
		return http.StatusBadRequest
	default:
		return fallback
	}
}

// httpError converts err into an echo error.
func httpError(err error, fallback int) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return echo.NewHTTPError(statusFor(err, fallback), err.Error())
}
