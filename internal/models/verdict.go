package models

// Categories mirrors the classifier's category object
type Categories struct {
	Hate       bool `json:"hate"`
	Harassment bool `json:"harassment"`
	Sexual     bool `json:"sexual"`
	Violence   bool `json:"violence"`
}

// Verdict is the structured answer returned by a classification provider
type Verdict struct {
	Flagged    bool       `json:"flagged"`
	Categories Categories `json:"categories"`
	Reason     *string    `json:"reason"`
	Provider   string     `json:"-"`
	Model      string     `json:"-"`
}

// ReasonOr returns the verdict reason, or def when the model gave none
func (v *Verdict) ReasonOr(def string) string {
	if v == nil || v.Reason == nil || *v.Reason == "" {
		return def
	}
	return *v.Reason
}

// AdminAction is the decision carried by a signed email link
type AdminAction string

const (
	ActionDelete AdminAction = "delete"
	ActionKeep   AdminAction = "keep"
)

// AdminActionRequest is parsed from the query string of an action link
type AdminActionRequest struct {
	RecordID string      `form:"id"`
	Action   AdminAction `form:"action"`
	Token    string      `form:"token"`
}
