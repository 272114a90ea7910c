package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchSnapshot(t *testing.T) {
	content := "snapshot tarball"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgit/aur.git/snapshot/yay.tar.gz" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Header().Set("Content-Length", "16")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	f := NewFetcher()
	snap, err := f.Fetch(context.Background(), server.URL+"/cgit/aur.git/snapshot/yay.tar.gz")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = snap.Body.Close() }()

	if snap.Size != 16 {
		t.Errorf("Size = %d, want 16", snap.Size)
	}
	if snap.ContentType != "application/x-gzip" {
		t.Errorf("ContentType = %q", snap.ContentType)
	}
	if snap.ETag != `"v1"` {
		t.Errorf("ETag = %q", snap.ETag)
	}
	body, _ := io.ReadAll(snap.Body)
	if string(body) != content {
		t.Errorf("body = %q, want %q", body, content)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher().Fetch(context.Background(), server.URL+"/missing.tar.gz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch = %v, want ErrNotFound", err)
	}
}

func TestFetchRetries(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		fails   int32
		retries int
		wantErr error
		want    int32
	}{
		{"rate limited then ok", http.StatusTooManyRequests, 2, 3, nil, 3},
		{"server error then ok", http.StatusServiceUnavailable, 1, 3, nil, 2},
		{"gives up", http.StatusBadGateway, 100, 2, ErrUpstreamDown, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= tt.fails {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer server.Close()

			f := NewFetcher(WithMaxRetries(tt.retries), WithBaseDelay(5*time.Millisecond))
			snap, err := f.Fetch(context.Background(), server.URL+"/x.tar.gz")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Fetch failed: %v", err)
				}
				_ = snap.Body.Close()
			}
			if attempts.Load() != tt.want {
				t.Errorf("attempts = %d, want %d", attempts.Load(), tt.want)
			}
		})
	}
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := NewFetcher().Fetch(ctx, server.URL+"/x.tar.gz"); err == nil {
		t.Error("expected error on context cancellation")
	}
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Header().Set("Content-Length", "4096")
	}))
	defer server.Close()

	size, contentType, err := NewFetcher().Head(context.Background(), server.URL+"/x.tar.gz")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if size != 4096 {
		t.Errorf("size = %d, want 4096", size)
	}
	if contentType != "application/x-gzip" {
		t.Errorf("contentType = %q", contentType)
	}
}

func TestFetchUserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	snap, _ := NewFetcher(WithUserAgent("sync-bot/2.0")).Fetch(context.Background(), server.URL+"/x.tar.gz")
	if snap != nil {
		_ = snap.Body.Close()
	}
	if receivedUA != "sync-bot/2.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "sync-bot/2.0")
	}
}

func TestSave(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tarball bytes"))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "snapshots")
	path, err := Save(context.Background(), NewFetcher(), server.URL+"/yay.tar.gz", dir, "yay.tar.gz")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if path != filepath.Join(dir, "yay.tar.gz") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "tarball bytes" {
		t.Errorf("saved %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the snapshot in %s, found %d entries", dir, len(entries))
	}
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	if _, err := Save(context.Background(), NewFetcher(), server.URL+"/gone.tar.gz", dir, "gone.tar.gz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Save = %v, want ErrNotFound", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}
