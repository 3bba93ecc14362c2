package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
)

// StorageUploader stores uploads through a StorageProvider under
// content-addressed keys and reports the provider's access path as URL.
type StorageUploader struct {
	provider StorageProvider
	maxBytes int64
	logger   *slog.Logger
}

var _ Uploader = (*StorageUploader)(nil)

// NewStorageUploader creates an uploader over provider. maxBytes <= 0 means
// MaxAssetBytes.
func NewStorageUploader(log *slog.Logger, provider StorageProvider, maxBytes int64) *StorageUploader {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	return &StorageUploader{
		provider: provider,
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "media_storage")),
	}
}

// Upload spools and hashes the input, then writes it under
// <type>/<hash[:4]>/<hash><ext>. Identical content maps to the same key.
func (u *StorageUploader) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if u.provider == nil {
		return UploadResult{}, ErrProviderUnavailable
	}
	if input.Reader == nil {
		return UploadResult{}, fmt.Errorf("reader is required")
	}
	contentHash, size, tempPath, err := spoolAndHashWithLimit(input.Reader, u.maxBytes)
	if err != nil {
		return UploadResult{}, fmt.Errorf("read input: %w", err)
	}
	defer func() {
		_ = os.Remove(tempPath)
	}()

	mediaType := input.Type
	if mediaType == "" {
		mediaType = MediaTypeFile
	}
	ext := extensionFor(input.Name, input.ContentType)
	key := path.Join(string(mediaType), contentHash[:4], contentHash+ext)

	tempFile, err := os.Open(tempPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
	}()
	if err := u.provider.Put(ctx, key, tempFile); err != nil {
		return UploadResult{}, fmt.Errorf("store media: %w", err)
	}
	u.logger.Debug("media stored", slog.String("key", key), slog.Int64("size", size))
	return UploadResult{
		URL:          u.provider.AccessPath(key),
		ResourceType: string(mediaType),
		Key:          key,
	}, nil
}

// extensionFor prefers the original file extension and falls back to the
// content type.
func extensionFor(name, contentType string) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 8 && !strings.ContainsAny(ext, `/\`) {
		return ext
	}
	return extensionFromMime(contentType)
}

func extensionFromMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/aac", "audio/x-aac":
		return ".aac"
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

func spoolAndHashWithLimit(reader io.Reader, maxBytes int64) (string, int64, string, error) {
	if maxBytes <= 0 {
		return "", 0, "", fmt.Errorf("max bytes must be greater than 0")
	}
	tempFile, err := os.CreateTemp("", "chatsync-media-*")
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	keepFile := false
	defer func() {
		_ = tempFile.Close()
		if !keepFile {
			_ = os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	written, err := io.Copy(io.MultiWriter(tempFile, hasher), limited)
	if err != nil {
		return "", 0, "", fmt.Errorf("copy to temp file: %w", err)
	}
	if written > maxBytes {
		return "", 0, "", fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	if written == 0 {
		return "", 0, "", ErrEmptyAsset
	}
	keepFile = true
	return hex.EncodeToString(hasher.Sum(nil)), written, tempPath, nil
}
