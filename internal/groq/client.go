package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eco-moderation/internal/llm"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the Groq API
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("groq API returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("groq API returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, llm.ErrQuotaExceeded) match quota answers
func (e *APIError) Is(target error) bool {
	return target == llm.ErrQuotaExceeded && e.quota()
}

func (e *APIError) quota() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch e.Code {
	case "insufficient_quota", "rate_limit_exceeded":
		return true
	}
	return false
}

// Config for Groq client
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	Language           string
	Timeout            time.Duration
	MaxElapsed         time.Duration
}

// Client talks to the OpenAI-compatible Groq endpoints
type Client struct {
	apiKey             string
	baseURL            string
	transcriptionModel string
	chatModel          string
	language           string
	httpClient         *http.Client
	logger             *zap.Logger
	newBackOff         func() backoff.BackOff
}

// NewClient creates a new Groq client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-large-v3"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "llama-3.1-8b-instant"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 20 * time.Second
	}

	logger.Info("Groq client initialized",
		zap.String("transcription_model", cfg.TranscriptionModel),
		zap.String("chat_model", cfg.ChatModel),
		zap.String("language", cfg.Language))

	maxElapsed := cfg.MaxElapsed
	return &Client{
		apiKey:             cfg.APIKey,
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		transcriptionModel: cfg.TranscriptionModel,
		chatModel:          cfg.ChatModel,
		language:           cfg.Language,
		httpClient:         &http.Client{Timeout: cfg.Timeout},
		logger:             logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = maxElapsed
			return bo
		},
	}, nil
}

// Name identifies the provider in logs and audit entries
func (c *Client) Name() string {
	return "groq"
}

// post sends body to path, retrying transport errors and 5xx answers.
// 4xx answers are returned immediately so quota errors reach the caller untouched.
func (c *Client) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	var attempt int
	var payload []byte

	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Groq request failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("groq API error: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			payload = respBody
			return nil
		}

		apiErr := parseAPIError(resp.StatusCode, respBody)
		c.logger.Error("Groq API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.Int("attempt", attempt))

		if resp.StatusCode >= 500 {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		if env.Error.Code != nil {
			apiErr.Code = fmt.Sprint(env.Error.Code)
		}
		// Some gateways only fill the type field
		if apiErr.Code == "" && (env.Error.Type == "insufficient_quota" || env.Error.Type == "rate_limit_exceeded") {
			apiErr.Code = env.Error.Type
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
