package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"eco-moderation/internal/llm"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		APIKey:   "gsk_test",
		BaseURL:  srv.URL,
		Language: "es",
		Timeout:  5 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}
	return client
}

func chatAnswer(content string) string {
	resp := map[string]any{
		"id": "chatcmpl-1",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3" || r.FormValue("language") != "es" || r.FormValue("response_format") != "json" {
			t.Errorf("unexpected form fields: %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "ID3-bytes" || hdr.Filename != "clip.mp3" {
				t.Errorf("unexpected file part %q %q", hdr.Filename, data)
			}
		}
		w.Write([]byte(`{"text":"contenido normal"}`))
	})

	text, err := client.Transcribe(context.Background(), []byte("ID3-bytes"), "https://x/audios/clip.mp3")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "contenido normal" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestTranscribeQuotaExceeded(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`))
	})

	_, err := client.Transcribe(context.Background(), []byte("audio"), "a.mp3")
	if !errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("expected llm.ErrQuotaExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("quota errors must not be retried, got %d calls", calls)
	}
}

func TestInsufficientQuotaCodeIsQuota(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"invalid_request_error","code":"insufficient_quota"}}`))
	})

	_, err := client.Classify(context.Background(), "hola")
	if !errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("expected llm.ErrQuotaExceeded, got %v", err)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chatAnswer(`{"flagged":false,"categories":{"hate":false,"harassment":false,"sexual":false,"violence":false},"reason":null}`)))
	})

	verdict, err := client.Classify(context.Background(), "contenido normal")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if verdict.Flagged {
		t.Fatalf("expected safe verdict")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestPersistentServerErrorIsNotQuota(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	})

	_, err := client.Classify(context.Background(), "hola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, llm.ErrQuotaExceeded) || errors.Is(err, llm.ErrInvalidVerdict) {
		t.Fatalf("5xx must be a plain upstream error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected APIError with status 500, got %v", err)
	}
}

func TestClassifySendsPolicyAndTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama-3.1-8b-instant" || req.Temperature != 0 {
			t.Errorf("unexpected model settings: %+v", req)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format")
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != llm.SystemPrompt || req.Messages[1].Content != "  ¡qué pasa, tío!  " {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(chatAnswer(`{"flagged":true,"categories":{"hate":false,"harassment":false,"sexual":false,"violence":true},"reason":"violencia explícita"}`)))
	})

	verdict, err := client.Classify(context.Background(), "  ¡qué pasa, tío!  ")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !verdict.Flagged || !verdict.Categories.Violence {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if verdict.ReasonOr("") != "violencia explícita" {
		t.Fatalf("reason not kept verbatim: %q", verdict.ReasonOr(""))
	}
	if verdict.Provider != "groq" || verdict.Model != "llama-3.1-8b-instant" {
		t.Fatalf("provenance missing: %+v", verdict)
	}
}

func TestClassifyInvalidVerdict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatAnswer(`I think this is fine`)))
	})

	_, err := client.Classify(context.Background(), "hola")
	if !errors.Is(err, llm.ErrInvalidVerdict) {
		t.Fatalf("expected llm.ErrInvalidVerdict, got %v", err)
	}
	if errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("invalid verdict must not look like quota")
	}
}

func TestAPIErrorMessageFallsBackToBody(t *testing.T) {
	err := parseAPIError(http.StatusBadRequest, []byte("  bad things  "))
	if !strings.Contains(err.Error(), "bad things") || err.StatusCode != 400 {
		t.Fatalf("unexpected error: %v", err)
	}
}
