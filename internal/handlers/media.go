package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/media"
)

const sniffBytes = 3072

// MediaHandler serves stored objects for providers without their own CDN.
type MediaHandler struct {
	provider media.StorageProvider
	logger   *slog.Logger
}

// NewMediaHandler creates a MediaHandler.
func NewMediaHandler(log *slog.Logger, provider media.StorageProvider) *MediaHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MediaHandler{provider: provider, logger: log.With(slog.String("handler", "media"))}
}

// Register mounts /media/* when a storage provider is configured.
func (h *MediaHandler) Register(e *echo.Echo) {
	if h.provider == nil {
		return
	}
	e.GET("/media/*", h.Serve)
}

// Serve streams the object stored under the wildcard key.
func (h *MediaHandler) Serve(c echo.Context) error {
	key := strings.TrimPrefix(c.Param("*"), "/")
	if key == "" {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	rc, err := h.provider.Open(c.Request().Context(), key)
	if err != nil {
		if !errors.Is(err, media.ErrAssetNotFound) {
			h.logger.Error("open media failed", slog.String("key", key), slog.Any("error", err))
		}
		return httpError(err, http.StatusInternalServerError)
	}
	defer rc.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return httpError(err, http.StatusInternalServerError)
	}
	head = head[:n]
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), rc))
}
