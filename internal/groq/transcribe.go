package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"path"

	"go.uber.org/zap"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads audio to the speech-to-text endpoint and returns the text
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}
	if filename == "" {
		filename = "audio.mp3"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	_ = w.WriteField("model", c.transcriptionModel)
	_ = w.WriteField("response_format", "json")
	if c.language != "" {
		_ = w.WriteField("language", c.language)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	body, err := c.post(ctx, "/audio/transcriptions", w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	c.logger.Debug("Audio transcribed", zap.Int("bytes", len(audio)), zap.Int("chars", len(resp.Text)))
	return resp.Text, nil
}
