// Package gridfs implements media.StorageProvider on MongoDB GridFS. The
// storage key is the GridFS filename.
package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/memohai/chatsync/internal/media"
)

// DefaultBucket is the GridFS bucket name used for chat media.
const DefaultBucket = "chat_media"

// Provider stores media objects in a GridFS bucket.
type Provider struct {
	bucket  *gridfs.Bucket
	baseURL string
}

var _ media.StorageProvider = (*Provider)(nil)

// New creates a provider on db. publicBaseURL prefixes access paths.
func New(db *mongo.Database, bucketName, publicBaseURL string) (*Provider, error) {
	if db == nil {
		return nil, media.ErrProviderUnavailable
	}
	if strings.TrimSpace(bucketName) == "" {
		bucketName = DefaultBucket
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to create GridFSBucket: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = "/media"
	}
	return &Provider{bucket: bucket, baseURL: base}, nil
}

type fileDoc struct {
	ID any `bson:"_id"`
}

// Put uploads data under key. An existing object with the same key is kept,
// since keys are content addressed.
func (p *Provider) Put(ctx context.Context, key string, reader io.Reader) error {
	if err := validKey(key); err != nil {
		return err
	}
	exists, err := p.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"key": key})
	if _, err := p.bucket.UploadFromStream(key, reader, opts); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

// Open returns a download stream for key.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	stream, err := p.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, media.ErrAssetNotFound
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return stream, nil
}

// Delete removes every revision stored under key.
func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	ids, err := p.revisions(ctx, key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := p.bucket.DeleteContext(ctx, id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("delete failed: %w", err)
		}
	}
	return nil
}

// AccessPath returns the public URL of key.
func (p *Provider) AccessPath(key string) string {
	return p.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (p *Provider) exists(ctx context.Context, key string) (bool, error) {
	ids, err := p.revisions(ctx, key)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (p *Provider) revisions(ctx context.Context, key string) ([]any, error) {
	cur, err := p.bucket.FindContext(ctx, bson.M{"filename": key})
	if err != nil {
		return nil, fmt.Errorf("find file: %w", err)
	}
	defer cur.Close(ctx)
	var docs []fileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("storage key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %s", media.ErrPathTraversal, key)
		}
	}
	return nil
}
