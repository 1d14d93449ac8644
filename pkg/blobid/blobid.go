// Package blobid holds the rule for blob ids. Storage nodes embed the id in
// chunk file names and the coordinator routes on it as a single path segment,
// so every service checks ids the same way.
package blobid

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxBytes bounds blob ids so chunk file names stay within filesystem limits.
const MaxBytes = 512

// Validate returns nil when id can be used as a blob id.
func Validate(id string) error {
	if id == "" {
		return errors.New("blob ID cannot be empty")
	}
	if len(id) > MaxBytes {
		return fmt.Errorf("blob ID exceeds maximum size of %d bytes", MaxBytes)
	}
	if strings.ContainsAny(id, `/\`) {
		return errors.New("blob ID cannot contain path separators")
	}
	if id == "." || id == ".." {
		return errors.New("blob ID cannot be a relative path element")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errors.New("blob ID cannot contain control characters")
		}
	}
	return nil
}
