package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	return s
}

func TestLocalStorage_PutGetRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := "designs/abc/image.png"

	err := s.Put(ctx, key, strings.NewReader("artwork-bytes"), PutOptions{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, info, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "artwork-bytes" {
		t.Errorf("unexpected content: %q", data)
	}
	if info.ContentType != "image/png" {
		t.Errorf("unexpected content type: %s", info.ContentType)
	}

	url, err := s.URL(ctx, key, 0)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if url != "http://localhost:8080/files/"+key {
		t.Errorf("unexpected url: %s", url)
	}
}

func TestLocalStorage_RejectsPathTraversal(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "../escape.png", strings.NewReader("x"), PutOptions{})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}

	_, _, err = s.Get(ctx, "designs/../../etc/passwd")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLocalStorage_NoOverwriteByDefault(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := "designs/abc/image.png"

	if err := s.Put(ctx, key, strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.Put(ctx, key, strings.NewReader("two"), PutOptions{})
	if !errors.Is(err, ErrKeyExists) {
		t.Errorf("expected ErrKeyExists, got %v", err)
	}
}

func TestLocalStorage_EnforcesMaxSize(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "designs/big.png", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	exists, err := s.Exists(ctx, "designs/big.png")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("oversized file was left behind")
	}
}

func TestIsAllowedArtworkType(t *testing.T) {
	testCases := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"image/jpeg; charset=binary", true},
		{"IMAGE/WEBP", true},
		{"image/heic", false},
		{"text/html", false},
		{"application/pdf", false},
	}
	for _, tc := range testCases {
		if got := IsAllowedArtworkType(tc.contentType); got != tc.want {
			t.Errorf("IsAllowedArtworkType(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}
