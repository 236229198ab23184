package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

//go:embed templates/alert.html
var templatesFS embed.FS

var alertTemplate = template.Must(template.ParseFS(templatesFS, "templates/alert.html"))

// EmailSender is the part of the Resend client the notifier needs
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailConfig for the admin email channel
type EmailConfig struct {
	APIKey string
	From   string
	To     string
}

// EmailNotifier sends alert emails through Resend
type EmailNotifier struct {
	sender EmailSender
	links  *LinkBuilder
	from   string
	to     string
	logger *zap.Logger
}

func NewEmailNotifier(cfg EmailConfig, links *LinkBuilder, logger *zap.Logger) (*EmailNotifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	client := resend.NewClient(cfg.APIKey)
	return NewEmailNotifierWithSender(client.Emails, cfg, links, logger), nil
}

// NewEmailNotifierWithSender builds the notifier on an existing Resend emails service
func NewEmailNotifierWithSender(sender EmailSender, cfg EmailConfig, links *LinkBuilder, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		sender: sender,
		links:  links,
		from:   cfg.From,
		to:     cfg.To,
		logger: logger,
	}
}

type alertView struct {
	ManualReview bool
	ID           string
	Title        string
	Author       string
	Reason       string
	Transcript   string
	FileURL      string
	KeepURL      string
	DeleteURL    string
}

func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	links, err := n.links.Build(alert.Record.ID)
	if err != nil {
		return err
	}

	view := alertView{
		ManualReview: alert.Kind == KindManualReview,
		ID:           alert.Record.ID,
		Title:        alert.Record.TitleOr("Untitled"),
		Author:       alert.Record.AuthorOr("Anonymous"),
		Reason:       alert.Reason,
		Transcript:   alert.Transcript,
		FileURL:      alert.Record.FileURL,
		KeepURL:      links.Keep,
		DeleteURL:    links.Delete,
	}

	var body bytes.Buffer
	if err := alertTemplate.Execute(&body, view); err != nil {
		return fmt.Errorf("failed to render alert email: %w", err)
	}

	sent, err := n.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject(alert),
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("Alert email sent",
		zap.String("audio_id", alert.Record.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("email_id", sent.Id))
	return nil
}

func subject(alert Alert) string {
	if alert.Kind == KindManualReview {
		return fmt.Sprintf("⚠️ Revisión manual requerida: eco %s (%s)", alert.Record.ID, alert.Reason)
	}
	return fmt.Sprintf("⚠️ Alerta de moderación: eco detectado (%s)", alert.Reason)
}
