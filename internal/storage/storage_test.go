package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	data := []byte{0x00, 0x01, 0xFF, 'a'}
	if err := s.Upload(ctx, "u/f/original_content", data, "application/octet-stream"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	obj, err := s.Download(ctx, "u/f/original_content")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(obj.Data, data) {
		t.Errorf("Data = %v, want %v", obj.Data, data)
	}
	if obj.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}

	// Mutating the caller's slice must not change the stored object.
	data[0] = 0x42
	obj, _ = s.Download(ctx, "u/f/original_content")
	if obj.Data[0] != 0x00 {
		t.Errorf("stored object aliases caller buffer")
	}
}

func TestMemoryStorageListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	for _, key := range []string{"u/f1/a", "u/f1/b/c", "u/f10/a", "v/f1/a"} {
		if err := s.Upload(ctx, key, []byte(key), "text/plain"); err != nil {
			t.Fatalf("Upload %s: %v", key, err)
		}
	}

	keys, err := s.List(ctx, "u/f1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fmt.Sprint(keys) != "[u/f1/a u/f1/b/c]" {
		t.Errorf("List = %v", keys)
	}

	if err := s.DeleteMany(ctx, append(keys, "missing")); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if _, err := s.Download(ctx, "u/f1/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.Download(ctx, "u/f10/a"); err != nil {
		t.Errorf("sibling object deleted: %v", err)
	}
	if err := s.DeleteMany(ctx, nil); err != nil {
		t.Errorf("DeleteMany(nil) = %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		resp          minio.ErrorResponse
		wantNotFound  bool
		wantTransient bool
	}{
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true, false},
		{"throttled", minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, false, true},
		{"server error", minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, false, true},
		{"denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(fmt.Errorf("op: %w", tt.resp))
			if errors.Is(err, ErrNotFound) != tt.wantNotFound {
				t.Errorf("not found = %v, want %v", errors.Is(err, ErrNotFound), tt.wantNotFound)
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("transient = %v, want %v", IsTransient(err), tt.wantTransient)
			}
		})
	}
}
