package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrAudioTooLarge is returned when the stored file exceeds the transcription size limit
var ErrAudioTooLarge = errors.New("audio file exceeds size limit")

// Fetcher downloads stored audio by URL
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func NewFetcher(timeout time.Duration, maxBytes int64, logger *zap.Logger) *Fetcher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		},
	}
}

// Fetch returns the body of fileURL. Server errors are retried, client errors are not.
func (f *Fetcher) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	var data []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("invalid audio url: %w", err))
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("audio host returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("audio host returned status %d", resp.StatusCode))
		}
		if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
			return backoff.Permanent(fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, resp.ContentLength))
		}

		reader := io.Reader(resp.Body)
		if f.maxBytes > 0 {
			reader = io.LimitReader(resp.Body, f.maxBytes+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read audio body: %w", err)
		}
		if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
			return backoff.Permanent(fmt.Errorf("%w: more than %d bytes", ErrAudioTooLarge, f.maxBytes))
		}
		if len(body) == 0 {
			return backoff.Permanent(errors.New("audio file is empty"))
		}

		data = body
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("failed to fetch audio file: %w", err)
	}

	f.logger.Debug("Audio fetched", zap.String("url", fileURL), zap.Int("bytes", len(data)))
	return data, nil
}
