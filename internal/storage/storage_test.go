package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

func newTestFetcher(maxBytes int64) *Fetcher {
	f := NewFetcher(5*time.Second, maxBytes, zap.NewNop())
	f.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}
	return f
}

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	data, err := newTestFetcher(1024).Fetch(context.Background(), srv.URL+"/audio.mp3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "ID3-audio" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := newTestFetcher(0).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestFetcher(0).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404")
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	_, err := newTestFetcher(16).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrAudioTooLarge) {
		t.Fatalf("expected ErrAudioTooLarge, got %v", err)
	}
}

func TestObjectLocation(t *testing.T) {
	tests := []struct {
		url    string
		bucket string
		key    string
		err    bool
	}{
		{url: "https://ref.supabase.co/storage/v1/object/public/audios/u1/eco%201.webm", bucket: "audios", key: "u1/eco 1.webm"},
		{url: "https://ref.supabase.co/storage/v1/object/sign/audios/a.mp3?token=x", bucket: "audios", key: "a.mp3"},
		{url: "https://ref.supabase.co/storage/v1/object/audios/a.mp3", bucket: "audios", key: "a.mp3"},
		{url: "https://x/audio.mp3", err: true},
		{url: "https://ref.supabase.co/storage/v1/object/public/audios", err: true},
		{url: "://bad", err: true},
	}

	for _, tt := range tests {
		bucket, key, err := ObjectLocation(tt.url)
		if tt.err {
			if err == nil {
				t.Fatalf("%s: expected error", tt.url)
			}
			continue
		}
		if err != nil || bucket != tt.bucket || key != tt.key {
			t.Fatalf("%s: got (%q, %q, %v)", tt.url, bucket, key, err)
		}
	}
}

func TestBlobStoreRemove(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store, err := NewBlobStore(BlobConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	err = store.Remove(context.Background(), "https://ref.supabase.co/storage/v1/object/public/audios/u1/eco.webm")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 1 || requests[0] != "DELETE /audios/u1/eco.webm" {
		t.Fatalf("unexpected s3 requests: %v", requests)
	}

	if err := store.Remove(context.Background(), "https://x/audio.mp3"); !errors.Is(err, ErrNotStorageURL) {
		t.Fatalf("expected ErrNotStorageURL, got %v", err)
	}
}
