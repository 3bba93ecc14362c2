package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/metrics"
)

// Sender appends a message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, payload message.Payload) (string, error)
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxBytes caps the asset size accepted by Upload.
func WithMaxBytes(n int64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithPipelineMetrics records upload outcomes on m.
func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline uploads one asset at a time and records each stored object as a
// media message. Uploads are never retried or queued.
type Pipeline struct {
	uploader Uploader
	sender   Sender
	maxBytes int64
	logger   *slog.Logger
	metrics  *metrics.Metrics

	uploading atomic.Bool
	mu        sync.Mutex
	nextObs   int
	observers []observer
}

type observer struct {
	id int
	fn func(bool)
}

// NewPipeline creates a pipeline storing through uploader and appending
// through sender.
func NewPipeline(log *slog.Logger, uploader Uploader, sender Sender, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		uploader: uploader,
		sender:   sender,
		maxBytes: MaxAssetBytes,
		logger:   log.With(slog.String("service", "media")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Uploading reports whether an upload is in progress.
func (p *Pipeline) Uploading() bool {
	return p.uploading.Load()
}

// OnStateChange registers fn to observe the uploading flag and returns a
// func that detaches it. fn runs on the uploading goroutine.
func (p *Pipeline) OnStateChange(fn func(uploading bool)) (detach func()) {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	p.nextObs++
	id := p.nextObs
	p.observers = append(p.observers, observer{id: id, fn: fn})
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

// Upload stores asset and appends a media message to channelID, returning
// the message id. A second call while one runs fails with ErrUploadInFlight.
// Caller cancellation does not interrupt a started upload. On any failure no
// message is created and the uploading flag is cleared.
func (p *Pipeline) Upload(ctx context.Context, channelID string, asset Asset) (string, error) {
	if !p.uploading.CompareAndSwap(false, true) {
		return "", ErrUploadInFlight
	}
	p.notify(true)
	defer func() {
		p.uploading.Store(false)
		p.notify(false)
	}()

	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With(slog.String("channel_id", channelID), slog.String("asset", asset.Name), slog.String("type", string(asset.Type)))

	id, kind, err := p.upload(ctx, channelID, asset)
	if err != nil {
		p.metrics.Upload("error", string(asset.Type))
		logger.Error("upload failed", slog.Any("error", err))
		return "", err
	}
	p.metrics.Upload("ok", string(kind))
	logger.Info("upload completed", slog.String("message_id", id))
	return id, nil
}

func (p *Pipeline) upload(ctx context.Context, channelID string, asset Asset) (string, message.Kind, error) {
	if p.uploader == nil {
		return "", "", ErrProviderUnavailable
	}
	if strings.TrimSpace(asset.Path) == "" {
		return "", "", ErrEmptyAsset
	}
	f, err := os.Open(asset.Path)
	if err != nil {
		return "", "", fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat asset: %w", err)
	}
	if info.Size() == 0 {
		return "", "", ErrEmptyAsset
	}
	if err := CheckSize(info.Size(), p.maxBytes); err != nil {
		return "", "", err
	}

	name := asset.Name
	if strings.TrimSpace(name) == "" {
		name = info.Name()
	}
	result, err := p.uploader.Upload(ctx, UploadInput{
		Name:        name,
		ContentType: ContentTypeFor(asset.Type),
		Type:        asset.Type,
		Reader:      f,
		Size:        info.Size(),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload asset: %w", err)
	}
	if strings.TrimSpace(result.URL) == "" {
		return "", "", fmt.Errorf("upload asset: storage returned no url")
	}

	kind := MessageKind(result.ResourceType, asset.Type)
	id, err := p.sender.Send(ctx, channelID, message.Media{
		MediaKind: kind,
		FileURL:   result.URL,
		FileName:  name,
	})
	if err != nil {
		return "", "", err
	}
	return id, kind, nil
}

func (p *Pipeline) notify(uploading bool) {
	p.mu.Lock()
	observers := append([]observer(nil), p.observers...)
	p.mu.Unlock()
	for _, o := range observers {
		o.fn(uploading)
	}
}

// MessageKind picks the message kind for a stored asset. The asset type
// chosen by the sender wins; the storage classification only fills in when
// the asset type is unknown.
func MessageKind(resourceType string, assetType MediaType) message.Kind {
	switch assetType {
	case MediaTypeImage:
		return message.KindImage
	case MediaTypeAudio:
		return message.KindAudio
	case MediaTypeFile, MediaTypeVideo:
		return message.KindFile
	}
	switch strings.ToLower(resourceType) {
	case "image":
		return message.KindImage
	case "audio":
		return message.KindAudio
	default:
		return message.KindFile
	}
}
