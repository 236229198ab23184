package llm

import (
	"errors"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		flagged bool
		reason  string
		wantErr bool
	}{
		{name: "minimal safe", content: `{"flagged": false}`},
		{name: "fenced", content: "```json\n{\"flagged\": true, \"reason\": \"odio\"}\n```", flagged: true, reason: "odio"},
		{name: "null reason", content: `{"flagged": false, "categories": {}, "reason": null}`},
		{name: "string flagged", content: `{"flagged": "true"}`, wantErr: true},
		{name: "missing flagged", content: `{"categories": {}}`, wantErr: true},
		{name: "array categories", content: `{"flagged": false, "categories": []}`, wantErr: true},
		{name: "numeric category", content: `{"flagged": false, "categories": {"hate": 1}}`, wantErr: true},
		{name: "numeric reason", content: `{"flagged": true, "reason": 3}`, wantErr: true},
		{name: "array", content: `[true]`, wantErr: true},
		{name: "empty", content: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVerdict) {
					t.Fatalf("expected ErrInvalidVerdict, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Flagged != tt.flagged || v.ReasonOr("") != tt.reason {
				t.Fatalf("unexpected verdict %+v", v)
			}
		})
	}
}

