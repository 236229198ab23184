package notifier

import (
	"fmt"
	"net/url"

	"eco-moderation/internal/models"
	"eco-moderation/internal/token"
)

// ActionLinks are the signed one-click admin URLs for an eco
type ActionLinks struct {
	Keep   string
	Delete string
}

// LinkBuilder signs admin action URLs against the public moderation endpoint
type LinkBuilder struct {
	baseURL *url.URL
	signer  token.Signer
}

func NewLinkBuilder(baseURL string, signer token.Signer) (*LinkBuilder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid links base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("links base url must be absolute, got %q", baseURL)
	}
	return &LinkBuilder{baseURL: u, signer: signer}, nil
}

// Build returns the keep and delete links for recordID
func (b *LinkBuilder) Build(recordID string) (ActionLinks, error) {
	tok, err := b.signer.Sign(recordID)
	if err != nil {
		return ActionLinks{}, fmt.Errorf("failed to sign action link: %w", err)
	}
	return ActionLinks{
		Keep:   b.url(recordID, models.ActionKeep, tok),
		Delete: b.url(recordID, models.ActionDelete, tok),
	}, nil
}

func (b *LinkBuilder) url(recordID string, action models.AdminAction, tok string) string {
	u := *b.baseURL
	q := u.Query()
	q.Set("id", recordID)
	q.Set("action", string(action))
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}
