package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/devrev/pairfs/pkg/apierrors"
)

// ErrorCode represents internal error codes for chunk operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeChunkNotFound   ErrorCode = 1001
	ErrCodeChunkTooLarge   ErrorCode = 1002
	ErrCodeInvalidBlobID   ErrorCode = 1003

	// Server errors (5xx equivalent)
	ErrCodeInternal       ErrorCode = 2000
	ErrCodeUnavailable    ErrorCode = 2001
	ErrCodeDiskFull       ErrorCode = 2002
	ErrCodeChecksumFailed ErrorCode = 2003
	ErrCodeCorruptedData  ErrorCode = 2004
)

// StorageError represents a structured error with code and context
type StorageError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status returned by the chunk API.
// A full disk is reported as unavailable so writers try another replica.
func (e *StorageError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeChunkTooLarge, ErrCodeInvalidBlobID:
		return http.StatusBadRequest
	case ErrCodeChunkNotFound:
		return http.StatusNotFound
	case ErrCodeDiskFull, ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind maps the error code to the shared error taxonomy.
func (e *StorageError) Kind() apierrors.Kind {
	switch e.HTTPStatus() {
	case http.StatusBadRequest:
		return apierrors.KindBadRequest
	case http.StatusNotFound:
		return apierrors.KindNotFound
	case http.StatusServiceUnavailable:
		return apierrors.KindUnavailable
	default:
		return apierrors.KindInternal
	}
}

// NewStorageError creates a new StorageError
func NewStorageError(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInvalidArgument, message, cause)
}

func InvalidBlobID(blobID, reason string) *StorageError {
	return NewStorageError(ErrCodeInvalidBlobID, fmt.Sprintf("invalid blob ID '%s': %s", blobID, reason), nil).
		WithDetail("blob_id", blobID).
		WithDetail("reason", reason)
}

func ChunkNotFound(blobID string, chunkIndex int) *StorageError {
	return NewStorageError(ErrCodeChunkNotFound, fmt.Sprintf("chunk not found: %s/%d", blobID, chunkIndex), nil).
		WithDetail("blob_id", blobID).
		WithDetail("chunk_index", chunkIndex)
}

func ChunkTooLarge(size, maxSize int) *StorageError {
	return NewStorageError(ErrCodeChunkTooLarge, fmt.Sprintf("chunk size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ChecksumFailed(blobID string, chunkIndex int, expected, actual uint32) *StorageError {
	return NewStorageError(ErrCodeChecksumFailed,
		fmt.Sprintf("checksum validation failed for %s/%d: expected %08x, got %08x", blobID, chunkIndex, expected, actual), nil).
		WithDetail("blob_id", blobID).
		WithDetail("chunk_index", chunkIndex).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeUnavailable, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *StorageError {
	return NewStorageError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func CorruptedData(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeCorruptedData, message, cause)
}

// IsStorageError checks if an error is a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// ToAPIError converts err to the shared taxonomy for HTTP rendering.
func ToAPIError(err error) *apierrors.Error {
	var se *StorageError
	if errors.As(err, &se) {
		return apierrors.Wrap(se.Kind(), nil, "%s", se.Error())
	}
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierrors.Internal(err, "chunk operation failed")
}
