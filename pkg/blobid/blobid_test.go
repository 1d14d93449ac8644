package blobid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"simple", "report.pdf", ""},
		{"uuid", "5f0c6c1e-2a8b-4d7e-9a51-1f3a9e0a7b22", ""},
		{"dot prefixed", ".tmp-report", ""},
		{"max length", strings.Repeat("x", MaxBytes), ""},
		{"empty", "", "empty"},
		{"slash", "a/b", "path separators"},
		{"backslash", `a\b`, "path separators"},
		{"dot", ".", "relative path"},
		{"dot dot", "..", "relative path"},
		{"newline", "a\nb", "control characters"},
		{"too long", strings.Repeat("x", MaxBytes+1), "maximum size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
