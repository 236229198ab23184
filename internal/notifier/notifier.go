package notifier

import (
	"context"
	"errors"

	"eco-moderation/internal/models"

	"go.uber.org/zap"
)

// AlertKind tells the admin why an eco needs attention
type AlertKind string

const (
	// KindFlagged is raised when a classifier flagged the transcript
	KindFlagged AlertKind = "flagged"
	// KindManualReview is raised when moderation could not run and the eco waits for a human
	KindManualReview AlertKind = "manual_review"
)

// Alert is everything an admin needs to decide on an eco
type Alert struct {
	Kind       AlertKind
	Record     *models.AudioRecord
	Transcript string
	Reason     string
}

// Notifier delivers an alert to the admin
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to every configured channel.
// One channel failing does not stop the others.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			m.logger.Error("Notifier failed",
				zap.String("audio_id", alert.Record.ID),
				zap.String("kind", string(alert.Kind)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
