package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastClient(opts ...Option) *Client {
	base := []Option{WithBaseDelay(time.Millisecond), WithMaxRetries(3)}
	return NewClient(append(base, opts...)...)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "pkgsync" {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"yay","version":"12.3.5-1"}`))
	}))
	defer server.Close()

	var out struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := fastClient().GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Name != "yay" || out.Version != "12.3.5-1" {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestGetBodyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := fastClient().GetBody(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetBodyGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fastClient(WithMaxRetries(2)).GetBody(context.Background(), server.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetBodyDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := fastClient().GetBody(context.Background(), server.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsNotFound() {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestGetBodyRateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	if _, err := fastClient().GetBody(context.Background(), server.URL); err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGetBodyCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("cached"))
	}))
	defer server.Close()

	c := fastClient(WithCache(8, time.Minute))
	for i := 0; i < 3; i++ {
		body, err := c.GetBody(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("GetBody failed: %v", err)
		}
		if string(body) != "cached" {
			t.Errorf("body = %q", body)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}
}

type countingLimiter struct {
	n atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.n.Add(1)
	return ctx.Err()
}

func TestRateLimiterConsulted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiter := &countingLimiter{}
	c := fastClient(WithRateLimiter(limiter))
	if _, err := c.Head(context.Background(), server.URL); err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if limiter.n.Load() != 1 {
		t.Errorf("limiter called %d times, want 1", limiter.n.Load())
	}
}

func TestWithUserAgentCopies(t *testing.T) {
	base := DefaultClient()
	custom := base.WithUserAgent("custom/1.0")
	if base.userAgent != defaultUserAgent {
		t.Errorf("base client user agent changed to %q", base.userAgent)
	}
	if custom.userAgent != "custom/1.0" {
		t.Errorf("custom user agent = %q", custom.userAgent)
	}
}

func TestBuildURLs(t *testing.T) {
	urls := &BaseURLs{
		RegistryFn: func(name, version string) string { return "https://aur.archlinux.org/packages/" + name },
		GitFn:      func(name string) string { return "https://aur.archlinux.org/" + name + ".git" },
	}

	got := BuildURLs(urls, "yay", "12.0-1")
	want := map[string]string{
		"registry": "https://aur.archlinux.org/packages/yay",
		"git":      "https://aur.archlinux.org/yay.git",
		"purl":     "pkg:generic/yay@12.0-1",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
