package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectAsset classifies the file at path by its content. name is the
// human-readable name shown in the chat; it defaults to the base name.
func DetectAsset(path, name string) (Asset, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Asset{}, fmt.Errorf("detect mime: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(path)
	}
	return Asset{
		Path: path,
		Type: TypeForMime(mt.String()),
		Name: name,
		Mime: mt.String(),
	}, nil
}

// TypeForMime maps a MIME type to the asset types a chat message can carry.
func TypeForMime(mime string) MediaType {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mime)), ";")
	switch {
	case strings.HasPrefix(base, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(base, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeFile
	}
}
