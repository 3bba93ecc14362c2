package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/memohai/chatsync/internal/media"
)

func TestProvider_HostPath(t *testing.T) {
	t.Parallel()
	p := &Provider{root: "/srv/data/media", baseURL: "/media"}

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "image/ab12/ab12cd.png", want: "/srv/data/media/image/ab12/ab12cd.png"},
		{key: "audio/x.aac", want: "/srv/data/media/audio/x.aac"},
		{key: "/absolute/path", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "image/../../escape", wantErr: true},
		{key: "", wantErr: true},
		{key: ".", wantErr: true},
	}
	for _, tt := range tests {
		got, err := p.hostPath(tt.key)
		if tt.wantErr {
			if err == nil {
				t.Errorf("hostPath(%q) expected error", tt.key)
			}
			continue
		}
		if err != nil {
			t.Errorf("hostPath(%q) unexpected error: %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("hostPath(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestProvider_AccessPath(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir(), "https://chat.example.com/media/")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got, want := p.AccessPath("image/ab12/ab12cd.png"), "https://chat.example.com/media/image/ab12/ab12cd.png"; got != want {
		t.Errorf("AccessPath = %q, want %q", got, want)
	}

	p, err = New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got, want := p.AccessPath("file/xx/doc.pdf"), "/media/file/xx/doc.pdf"; got != want {
		t.Errorf("AccessPath = %q, want %q", got, want)
	}
}

func TestProvider_PutOpenDelete(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	p, err := New(tmpDir, "/media")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	key := "image/ab/test.png"
	data := []byte("hello media content")

	if err := p.Put(context.Background(), key, bytes.NewReader(data)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	hostFile := filepath.Join(tmpDir, "media", "image", "ab", "test.png")
	if _, err := os.Stat(hostFile); err != nil {
		t.Fatalf("file not found on host: %v", err)
	}

	reader, err := p.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, _ := io.ReadAll(reader)
	reader.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("Open returned %q, want %q", got, data)
	}

	if err := p.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(hostFile); !os.IsNotExist(err) {
		t.Fatalf("file should be deleted: %v", err)
	}
	if _, err := p.Open(context.Background(), key); !errors.Is(err, media.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestProvider_WorksWithStorageUploader(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	u := media.NewStorageUploader(nil, p, 0)
	res, err := u.Upload(context.Background(), media.UploadInput{Name: "doc.pdf", Type: media.MediaTypeFile, Reader: strings.NewReader("%PDF-1.4")})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(res.URL, "/media/file/") {
		t.Fatalf("unexpected url %q", res.URL)
	}
	rc, err := p.Open(context.Background(), res.Key)
	if err != nil {
		t.Fatalf("open stored object: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestProvider_PathTraversal(t *testing.T) {
	t.Parallel()
	p := &Provider{root: "/srv/data/media"}

	bad := []string{
		"../etc/passwd",
		"/absolute/key",
		"image/../../escape",
	}
	for _, key := range bad {
		if _, err := p.hostPath(key); !errors.Is(err, media.ErrPathTraversal) {
			t.Errorf("hostPath(%q) should reject traversal, got %v", key, err)
		}
	}
}
