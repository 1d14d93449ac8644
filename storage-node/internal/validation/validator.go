package validation

import (
	"fmt"

	"github.com/devrev/pairfs/pkg/blobid"
	"github.com/devrev/pairfs/storage-node/internal/errors"
)

const (
	// MaxBlobIDSize bounds blob ids so chunk file names stay within filesystem limits.
	MaxBlobIDSize = blobid.MaxBytes
	// DefaultMaxChunkBytes is used when the validator is built without a limit.
	DefaultMaxChunkBytes = 4 * 1024 * 1024
)

// Validator validates chunk operations
type Validator struct {
	maxChunkBytes int
}

// NewValidator creates a new validator with the given chunk size limit
func NewValidator(maxChunkBytes int) *Validator {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	return &Validator{maxChunkBytes: maxChunkBytes}
}

// ValidateWrite validates a chunk write
func (v *Validator) ValidateWrite(blobID string, chunkIndex int, data []byte) error {
	if err := v.ValidateChunkRef(blobID, chunkIndex); err != nil {
		return err
	}
	if len(data) > v.maxChunkBytes {
		return errors.ChunkTooLarge(len(data), v.maxChunkBytes)
	}
	return nil
}

// ValidateChunkRef validates a (blobId, chunkIndex) pair
func (v *Validator) ValidateChunkRef(blobID string, chunkIndex int) error {
	if err := ValidateBlobID(blobID); err != nil {
		return err
	}
	if chunkIndex < 0 {
		return errors.InvalidArgument(fmt.Sprintf("chunk index must be non-negative, got %d", chunkIndex), nil)
	}
	return nil
}

// ValidateBlobID rejects ids that cannot be stored as part of a chunk file name.
func ValidateBlobID(blobID string) error {
	if err := blobid.Validate(blobID); err != nil {
		shown := blobID
		if len(shown) > 32 {
			shown = shown[:32] + "..."
		}
		return errors.InvalidBlobID(shown, err.Error())
	}
	return nil
}
