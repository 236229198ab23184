package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eco-moderation/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrAudioNotFound is returned when no audio row has the requested id
var ErrAudioNotFound = errors.New("audio not found")

// AudioRepository defines the interface for audio record operations
type AudioRepository interface {
	Create(ctx context.Context, audio *models.AudioRecord) error
	GetByID(ctx context.Context, id string) (*models.AudioRecord, error)
	// ApplyVerdict moves a pending record to its verdict and reports whether
	// this call performed the transition
	ApplyVerdict(ctx context.Context, id string, status models.ModerationStatus, reason, transcript *string) (bool, error)
	CacheTranscript(ctx context.Context, id, transcript string) error
	MarkSafe(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type audioRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAudioRepository creates a new audio repository
func NewAudioRepository(db *sqlx.DB, logger *zap.Logger) AudioRepository {
	return &audioRepository{
		db:     db,
		logger: logger,
	}
}

const audioColumns = `id, file_url, title, author, moderation_status, moderation_reason, transcript, created_at`

func (r *audioRepository) Create(ctx context.Context, audio *models.AudioRecord) error {
	if audio.ModerationStatus == "" {
		audio.ModerationStatus = models.StatusPending
	}

	query := r.db.Rebind(`
		INSERT INTO audios (id, file_url, title, author, moderation_status, moderation_reason, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		audio.ID,
		audio.FileURL,
		audio.Title,
		audio.Author,
		audio.ModerationStatus,
		audio.ModerationReason,
		audio.Transcript,
	)
	if err != nil {
		r.logger.Error("Failed to create audio", zap.String("audio_id", audio.ID), zap.Error(err))
		return fmt.Errorf("failed to create audio: %w", err)
	}

	return nil
}

func (r *audioRepository) GetByID(ctx context.Context, id string) (*models.AudioRecord, error) {
	var audio models.AudioRecord
	query := r.db.Rebind(`SELECT ` + audioColumns + ` FROM audios WHERE id = ?`)

	err := r.db.GetContext(ctx, &audio, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAudioNotFound
		}
		r.logger.Error("Failed to get audio by ID", zap.String("audio_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get audio: %w", err)
	}

	return &audio, nil
}

func (r *audioRepository) ApplyVerdict(ctx context.Context, id string, status models.ModerationStatus, reason, transcript *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("verdict status must be terminal, got %q", status)
	}

	query := r.db.Rebind(`
		UPDATE audios
		SET moderation_status = ?, moderation_reason = ?, transcript = ?
		WHERE id = ? AND moderation_status = ?
	`)

	res, err := r.db.ExecContext(ctx, query, status, reason, transcript, id, models.StatusPending)
	if err != nil {
		r.logger.Error("Failed to apply verdict", zap.String("audio_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to apply verdict: %w", err)
	}

	return affected(res)
}

func (r *audioRepository) CacheTranscript(ctx context.Context, id, transcript string) error {
	query := r.db.Rebind(`UPDATE audios SET transcript = ? WHERE id = ? AND moderation_status = ?`)

	if _, err := r.db.ExecContext(ctx, query, transcript, id, models.StatusPending); err != nil {
		r.logger.Error("Failed to cache transcript", zap.String("audio_id", id), zap.Error(err))
		return fmt.Errorf("failed to cache transcript: %w", err)
	}
	return nil
}

func (r *audioRepository) MarkSafe(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`UPDATE audios SET moderation_status = ? WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, models.StatusSafe, id)
	if err != nil {
		r.logger.Error("Failed to mark audio safe", zap.String("audio_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark audio safe: %w", err)
	}

	return affected(res)
}

func (r *audioRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM audios WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete audio", zap.String("audio_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete audio: %w", err)
	}

	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
