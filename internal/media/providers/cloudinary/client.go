// Package cloudinary uploads media through the Cloudinary upload API using
// the official SDK. Signed uploads are the default; unsigned preset uploads
// need an explicit opt-in.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/memohai/chatsync/internal/media"
)

const (
	DefaultBaseURL = "https://api.cloudinary.com"
	defaultTimeout = 5 * time.Minute
	// resourceAuto lets the service classify the upload (image, video, raw).
	resourceAuto = "auto"
)

// ErrUnsignedNotAllowed indicates an unsigned preset upload without the
// explicit opt-in.
var ErrUnsignedNotAllowed = errors.New("unsigned uploads are disabled")

// Config holds endpoint credentials. Signed uploads need APIKey and
// APISecret; unsigned uploads need UploadPreset and AllowUnsigned.
type Config struct {
	BaseURL       string
	CloudName     string
	APIKey        string
	APISecret     string
	UploadPreset  string
	AllowUnsigned bool
	Folder        string
}

// Client uploads files to Cloudinary.
type Client struct {
	cfg    Config
	sdk    *cld.Cloudinary
	logger *slog.Logger
}

var _ media.Uploader = (*Client)(nil)

// New validates cfg and creates a client. A nil httpClient uses a client
// with a generous timeout.
func New(log *slog.Logger, cfg Config, httpClient *http.Client) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.CloudName) == "" {
		return nil, fmt.Errorf("cloudinary cloud name is required")
	}
	if !cfg.signed() {
		if strings.TrimSpace(cfg.UploadPreset) == "" {
			return nil, fmt.Errorf("cloudinary needs api credentials or an upload preset")
		}
		if !cfg.AllowUnsigned {
			return nil, ErrUnsignedNotAllowed
		}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	sdk, err := cld.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	// The uploader keeps its own copy of the configuration.
	sdk.Config.API.UploadPrefix = cfg.BaseURL
	sdk.Upload.Config.API.UploadPrefix = cfg.BaseURL
	sdk.Upload.Client = *httpClient

	return &Client{
		cfg:    cfg,
		sdk:    sdk,
		logger: log.With(slog.String("provider", "cloudinary")),
	}, nil
}

func (c Config) signed() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/v1_1/%s/%s/upload", c.cfg.BaseURL, c.cfg.CloudName, resourceAuto)
}

// Upload sends input to the upload API, signed when credentials are set and
// with the configured preset otherwise.
func (c *Client) Upload(ctx context.Context, input media.UploadInput) (media.UploadResult, error) {
	if input.Reader == nil {
		return media.UploadResult{}, fmt.Errorf("reader is required")
	}
	params := uploader.UploadParams{
		Folder:       c.cfg.Folder,
		ResourceType: resourceAuto,
	}

	var (
		out *uploader.UploadResult
		err error
	)
	if c.cfg.signed() {
		params.UploadPreset = c.cfg.UploadPreset
		out, err = c.sdk.Upload.Upload(ctx, input.Reader, params)
	} else {
		out, err = c.sdk.Upload.UnsignedUpload(ctx, input.Reader, c.cfg.UploadPreset, params)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return media.UploadResult{}, fmt.Errorf("upload request: %w", ctxErr)
	}
	if err != nil {
		return media.UploadResult{}, fmt.Errorf("upload request: %w", err)
	}
	if out == nil {
		return media.UploadResult{}, fmt.Errorf("upload response is empty")
	}
	if out.Error.Message != "" {
		return media.UploadResult{}, fmt.Errorf("upload rejected: %s", out.Error.Message)
	}
	url := out.SecureURL
	if url == "" {
		url = out.URL
	}
	if url == "" {
		return media.UploadResult{}, fmt.Errorf("upload response has no url")
	}
	c.logger.Debug("upload stored",
		slog.String("name", input.Name),
		slog.String("public_id", out.PublicID),
		slog.String("resource_type", out.ResourceType),
	)
	return media.UploadResult{URL: url, ResourceType: out.ResourceType, Key: out.PublicID}, nil
}
