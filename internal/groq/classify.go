package groq

import (
	"context"
	"encoding/json"
	"fmt"

	"eco-moderation/internal/llm"
	"eco-moderation/internal/models"

	"go.uber.org/zap"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float32         `json:"temperature"`
	Stream         bool            `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Classify asks the chat model for a moderation verdict on transcript.
// The transcript is passed through unmodified.
func (c *Client) Classify(ctx context.Context, transcript string) (*models.Verdict, error) {
	reqBody := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: llm.SystemPrompt},
			{Role: "user", Content: transcript},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.post(ctx, "/chat/completions", "application/json", jsonData)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from groq", llm.ErrInvalidVerdict)
	}

	content := resp.Choices[0].Message.Content
	verdict, err := llm.ParseVerdict(content)
	if err != nil {
		c.logger.Error("Failed to parse moderation verdict",
			zap.Error(err),
			zap.String("original_response", content))
		return nil, err
	}

	verdict.Provider = c.Name()
	verdict.Model = c.chatModel
	return verdict, nil
}
