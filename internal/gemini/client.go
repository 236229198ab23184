package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"eco-moderation/internal/llm"
	"eco-moderation/internal/models"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client classifies transcripts with a Gemini model
type Client struct {
	client    *genai.Client
	logger    *zap.Logger
	modelName string
	generate  func(ctx context.Context, transcript string) (string, error)
}

// Config for Gemini client
type Config struct {
	APIKey    string
	ModelName string // Default: "gemini-2.0-flash"
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt)},
	}
	model.ResponseMIMEType = "application/json"
	model.GenerationConfig.Temperature = genai.Ptr[float32](0)
	model.GenerationConfig.MaxOutputTokens = genai.Ptr[int32](300)

	// The classifier has to read harmful transcripts to judge them
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	logger.Info("Gemini client initialized", zap.String("model", cfg.ModelName))

	c := &Client{
		client:    client,
		logger:    logger,
		modelName: cfg.ModelName,
	}
	c.generate = func(ctx context.Context, transcript string) (string, error) {
		return generateText(ctx, model, transcript)
	}
	return c, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Name() string {
	return "gemini"
}

// Classify asks Gemini for a moderation verdict on transcript
func (c *Client) Classify(ctx context.Context, transcript string) (*models.Verdict, error) {
	text, err := c.generate(ctx, transcript)
	if err != nil {
		if isQuotaError(err) {
			return nil, fmt.Errorf("%w: gemini: %v", llm.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	verdict, err := llm.ParseVerdict(text)
	if err != nil {
		c.logger.Error("Failed to parse moderation verdict",
			zap.Error(err),
			zap.String("original_response", text))
		return nil, err
	}

	verdict.Provider = c.Name()
	verdict.Model = c.modelName
	return verdict, nil
}

func generateText(ctx context.Context, model *genai.GenerativeModel, transcript string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(transcript))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from gemini")
	}
	return sb.String(), nil
}

func isQuotaError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}
