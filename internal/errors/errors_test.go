package errors

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestProcessingErrorWrapping(t *testing.T) {
	cause := errors.New("png: invalid checksum")
	perr := NewImageDecodeError("job-1", cause)

	if perr.Code != ErrorImageDecodeFailed {
		t.Errorf("Code = %s", perr.Code)
	}
	if !errors.Is(perr, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
	if !strings.Contains(perr.Error(), "IMAGE_DECODE_FAILED") {
		t.Errorf("Error() = %q, want the code in the message", perr.Error())
	}
	if !strings.Contains(perr.Error(), cause.Error()) {
		t.Errorf("Error() = %q, want the cause in the message", perr.Error())
	}
}

func TestProcessingErrorAs(t *testing.T) {
	var err error = NewStorageFailedError("job-2", errors.New("connection refused"))
	wrapped := errors.Join(errors.New("outer"), err)

	var perr *ProcessingError
	if !errors.As(wrapped, &perr) {
		t.Fatal("errors.As failed to find ProcessingError")
	}
	if perr.Code != ErrorStorageFailed {
		t.Errorf("Code = %s", perr.Code)
	}
}

func TestToMap(t *testing.T) {
	perr := NewProcessingTimeoutError("job-3", 30*time.Second, errors.New("context deadline exceeded"))
	m := perr.ToMap()

	if m["error_code"] != "PROCESSING_TIMEOUT" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["timeout_duration"] != "30s" {
		t.Errorf("timeout_duration = %v", m["timeout_duration"])
	}
	if m["cause"] != "context deadline exceeded" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestImageTooLargeErrorDetails(t *testing.T) {
	perr := NewImageTooLargeError("job-5", 40000000, 33554432)
	if perr.Code != ErrorImageTooLarge {
		t.Errorf("Code = %s", perr.Code)
	}
	if perr.Details["size"] != int64(40000000) || perr.Details["limit"] != int64(33554432) {
		t.Errorf("Details = %v", perr.Details)
	}
}

func TestInvalidImageErrorDetails(t *testing.T) {
	perr := NewInvalidImageError("job-4", 0, 480)
	if perr.Details["width"] != 0 || perr.Details["height"] != 480 {
		t.Errorf("Details = %v", perr.Details)
	}
	if perr.Cause != nil {
		t.Error("dimension errors carry no cause")
	}
}
