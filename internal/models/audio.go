package models

import "time"

// ModerationStatus is the lifecycle state of an uploaded eco
type ModerationStatus string

const (
	StatusPending ModerationStatus = "pending"
	StatusSafe    ModerationStatus = "safe"
	StatusFlagged ModerationStatus = "flagged"
)

// IsTerminal reports whether the status was decided by the pipeline or an admin
func (s ModerationStatus) IsTerminal() bool {
	return s == StatusSafe || s == StatusFlagged
}

// Valid reports whether s is one of the known statuses
func (s ModerationStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// AudioRecord is a row of the audios table (an "eco")
type AudioRecord struct {
	ID               string           `json:"id" db:"id"`
	FileURL          string           `json:"file_url" db:"file_url"`
	Title            *string          `json:"title,omitempty" db:"title"`
	Author           *string          `json:"author,omitempty" db:"author"`
	ModerationStatus ModerationStatus `json:"moderation_status" db:"moderation_status"`
	ModerationReason *string          `json:"moderation_reason" db:"moderation_reason"`
	Transcript       *string          `json:"transcript" db:"transcript"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// CurrentStatus treats an absent status as pending, the column default
func (a *AudioRecord) CurrentStatus() ModerationStatus {
	if a.ModerationStatus == "" {
		return StatusPending
	}
	return a.ModerationStatus
}

// TitleOr returns the title or def when it is empty
func (a *AudioRecord) TitleOr(def string) string {
	if a.Title == nil || *a.Title == "" {
		return def
	}
	return *a.Title
}

// AuthorOr returns the author or def when it is empty
func (a *AudioRecord) AuthorOr(def string) string {
	if a.Author == nil || *a.Author == "" {
		return def
	}
	return *a.Author
}

// WebhookPayload is the envelope the database webhook posts on insert/update
type WebhookPayload struct {
	Type      string       `json:"type"`
	Table     string       `json:"table"`
	Schema    string       `json:"schema"`
	Record    *AudioRecord `json:"record"`
	OldRecord *AudioRecord `json:"old_record"`
}

// StringPtr is a small helper for optional columns
func StringPtr(s string) *string {
	return &s
}
