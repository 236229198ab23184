package repository

import (
	"context"
	"fmt"

	"eco-moderation/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ModerationLogRepository stores the audit trail of moderation decisions
type ModerationLogRepository interface {
	Append(ctx context.Context, entry *models.ModerationLog) error
	ListByAudio(ctx context.Context, audioID string) ([]*models.ModerationLog, error)
}

type moderationLogRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewModerationLogRepository creates a new moderation log repository
func NewModerationLogRepository(db *sqlx.DB, logger *zap.Logger) ModerationLogRepository {
	return &moderationLogRepository{
		db:     db,
		logger: logger,
	}
}

func (r *moderationLogRepository) Append(ctx context.Context, entry *models.ModerationLog) error {
	query := r.db.Rebind(`
		INSERT INTO moderation_logs (id, audio_id, action, status, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AudioID,
		entry.Action,
		entry.Status,
		entry.Reason,
		entry.Actor,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append moderation log", zap.String("audio_id", entry.AudioID), zap.Error(err))
		return fmt.Errorf("failed to append moderation log: %w", err)
	}

	return nil
}

func (r *moderationLogRepository) ListByAudio(ctx context.Context, audioID string) ([]*models.ModerationLog, error) {
	var entries []*models.ModerationLog
	query := r.db.Rebind(`
		SELECT id, audio_id, action, status, reason, actor, created_at
		FROM moderation_logs
		WHERE audio_id = ?
		ORDER BY created_at ASC
	`)

	if err := r.db.SelectContext(ctx, &entries, query, audioID); err != nil {
		r.logger.Error("Failed to list moderation logs", zap.String("audio_id", audioID), zap.Error(err))
		return nil, fmt.Errorf("failed to list moderation logs: %w", err)
	}

	return entries, nil
}
