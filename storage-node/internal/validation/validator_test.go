package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devrev/pairfs/storage-node/internal/errors"
)

func TestValidateBlobID(t *testing.T) {
	tests := []struct {
		name    string
		blobID  string
		wantErr bool
	}{
		{"simple", "report.pdf", false},
		{"uuid", "5f0c6c1e-2a8b-4d7e-9a51-1f3a9e0a7b22", false},
		{"contains chunk marker", "a_chunk_1", false},
		{"empty", "", true},
		{"slash", "dir/file", true},
		{"backslash", `dir\file`, true},
		{"dot dot", "..", true},
		{"control char", "bad\x00id", true},
		{"too long", strings.Repeat("x", MaxBlobIDSize+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBlobID(tt.blobID)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidBlobID, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWrite(t *testing.T) {
	v := NewValidator(8)

	assert.NoError(t, v.ValidateWrite("blob", 0, []byte("12345678")))
	assert.NoError(t, v.ValidateWrite("blob", 2, nil))

	err := v.ValidateWrite("blob", 0, []byte("123456789"))
	assert.Equal(t, errors.ErrCodeChunkTooLarge, errors.GetCode(err))

	err = v.ValidateWrite("blob", -1, []byte("x"))
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}
