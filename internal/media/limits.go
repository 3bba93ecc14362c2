package media

import (
	"fmt"
	"io"
)

const (
	// MaxAssetBytes is the default max accepted payload size.
	MaxAssetBytes int64 = 64 * 1024 * 1024
	// MaxResponseBytes bounds the JSON bodies returned by storage APIs.
	MaxResponseBytes int64 = 1 << 20
)

// CheckSize rejects sizes above maxBytes. A non-positive maxBytes means
// MaxAssetBytes.
func CheckSize(size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrAssetTooLarge, size, maxBytes)
	}
	return nil
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}
