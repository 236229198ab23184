package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"eco-moderation/internal/models"
)

var (
	// ErrQuotaExceeded is returned when a provider rejects a call for rate or quota reasons
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrInvalidVerdict is returned when a model answers with something that is not a verdict
	ErrInvalidVerdict = errors.New("invalid moderation verdict")
)

// ParseVerdict validates a model answer against the verdict shape.
// flagged must be a boolean, categories an object of booleans, reason a string or null.
func ParseVerdict(content string) (*models.Verdict, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidVerdict, err)
	}

	verdict := &models.Verdict{}

	flagged, ok := raw["flagged"]
	if !ok {
		return nil, fmt.Errorf("%w: missing flagged", ErrInvalidVerdict)
	}
	if err := json.Unmarshal(flagged, &verdict.Flagged); err != nil || isNull(flagged) {
		return nil, fmt.Errorf("%w: flagged is not a boolean", ErrInvalidVerdict)
	}

	// Models sometimes drop categories on a clean verdict; when present it must be an object
	if categories, ok := raw["categories"]; ok && !isNull(categories) {
		if trimmed := strings.TrimSpace(string(categories)); !strings.HasPrefix(trimmed, "{") {
			return nil, fmt.Errorf("%w: categories is not an object", ErrInvalidVerdict)
		}
		if err := json.Unmarshal(categories, &verdict.Categories); err != nil {
			return nil, fmt.Errorf("%w: categories must hold booleans", ErrInvalidVerdict)
		}
	}

	if reason, ok := raw["reason"]; ok && !isNull(reason) {
		var s string
		if err := json.Unmarshal(reason, &s); err != nil {
			return nil, fmt.Errorf("%w: reason is not a string", ErrInvalidVerdict)
		}
		verdict.Reason = &s
	}

	return verdict, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
