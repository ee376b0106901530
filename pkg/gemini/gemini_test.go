package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/personalens/persona-mvp/engine/synth"
)

func TestMapErrorQuota(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		quota bool
	}{
		{"http 429", genai.APIError{Code: 429, Message: "quota exceeded"}, true},
		{"resource exhausted", genai.APIError{Status: "RESOURCE_EXHAUSTED"}, true},
		{"server error", genai.APIError{Code: 500, Message: "internal"}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			if errors.Is(got, synth.ErrQuotaExhausted) != tc.quota {
				t.Fatalf("mapError(%v) = %v, quota = %v", tc.err, got, tc.quota)
			}
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
