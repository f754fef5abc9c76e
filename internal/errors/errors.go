package errors

import (
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Extraction errors
	ErrorImageDecodeFailed ErrorCode = "IMAGE_DECODE_FAILED"
	ErrorInvalidImage      ErrorCode = "INVALID_IMAGE"
	ErrorImageTooLarge     ErrorCode = "IMAGE_TOO_LARGE"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"

	// Network errors
	ErrorDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
)

// ProcessingError represents a structured worker error tied to a capture job.
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewImageDecodeError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageDecodeFailed,
		Message:   "Panel photo could not be decoded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidImageError(jobID string, width, height int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidImage,
		Message:   fmt.Sprintf("Panel photo has non-positive dimensions %dx%d", width, height),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"width":  width,
			"height": height,
		},
	}
}

func NewImageTooLargeError(jobID string, size, limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageTooLarge,
		Message:   fmt.Sprintf("Panel photo of %d bytes exceeds limit of %d", size, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"size":  size,
			"limit": limit,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to persist unit readings",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDownloadFailedError(jobID, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDownloadFailed,
		Message:   "Failed to download panel photo",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_url": url,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for job-status storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
