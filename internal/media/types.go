// Package media carries picked or recorded files to object storage and turns
// the stored object into a chat message.
package media

import (
	"context"
	"io"
)

// MediaType classifies a local asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
	MediaTypeFile  MediaType = "file"
)

// Asset is a local file waiting to be uploaded.
type Asset struct {
	Path string    `json:"path"`
	Type MediaType `json:"type"`
	Name string    `json:"name"`
	Mime string    `json:"mime,omitempty"`
}

// ContentTypeFor returns the content type sent with an upload of t.
func ContentTypeFor(t MediaType) string {
	switch t {
	case MediaTypeImage:
		return "image/jpeg"
	case MediaTypeAudio:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// UploadInput is one object handed to an Uploader.
type UploadInput struct {
	Name        string
	ContentType string
	Type        MediaType
	Reader      io.Reader
	Size        int64
}

// UploadResult describes the stored object. ResourceType is the storage's
// own classification ("image", "video", "raw", or a MediaType).
type UploadResult struct {
	URL          string
	ResourceType string
	Key          string
}

// Uploader sends a file to object storage and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
}

// StorageProvider abstracts object storage operations.
type StorageProvider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// AccessPath returns a consumer-accessible reference for a storage key.
	AccessPath(key string) string
}
