package models

import (
	"time"

	"github.com/google/uuid"
)

// Actors recorded in the moderation log
const (
	ActorPipeline  = "pipeline"
	ActorAdminLink = "admin-link"
)

// Log actions
const (
	LogActionVerdict      = "verdict"
	LogActionManualReview = "manual_review"
	LogActionFailOpen     = "fail_open"
	LogActionKeep         = "keep"
	LogActionDelete       = "delete"
)

// ModerationLog records every state mutation applied to an audio record
type ModerationLog struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	AudioID   string           `json:"audio_id" db:"audio_id"`
	Action    string           `json:"action" db:"action"`
	Status    ModerationStatus `json:"status" db:"status"`
	Reason    *string          `json:"reason,omitempty" db:"reason"`
	Actor     string           `json:"actor" db:"actor"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// NewModerationLog stamps a new log entry with an id and the current time
func NewModerationLog(audioID, action string, status ModerationStatus, reason *string, actor string) *ModerationLog {
	return &ModerationLog{
		ID:        uuid.New(),
		AudioID:   audioID,
		Action:    action,
		Status:    status,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
}
