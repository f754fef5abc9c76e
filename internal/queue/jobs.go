/**
 * Shared capture-job handling for both queue consumers.
 *
 * A job carries the panel photo either inline (base64 or legacy Node Buffer
 * object from the capture uploader) or as a URL behind the capture API. The
 * runner resolves the photo, drives the extraction, persists the unit
 * record and tracks job status in PostgreSQL.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reeflab/aquapanel-worker/internal/clients"
	aperrors "github.com/reeflab/aquapanel-worker/internal/errors"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/metrics"
	"github.com/reeflab/aquapanel-worker/internal/processor"
	"github.com/reeflab/aquapanel-worker/internal/storage"
)

// defaultProcessingTimeout bounds one extraction run when no timeout is
// configured.
const defaultProcessingTimeout = 120 * time.Second

// JobPayload contains the capture job data.
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UnitID     string                 `json:"unitId,omitempty"`
	Filename   string                 `json:"filename"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 // set by custom UnmarshalJSON
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both the base64 string form of fileBuffer and the
// legacy Node.js Buffer object form emitted by older capture uploaders.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		bufferType, _ := v["type"].(string)
		if bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// jobStore is the slice of the storage manager the runner needs.
type jobStore interface {
	SaveUnitRecord(ctx context.Context, rec *storage.UnitRecord) error
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// runner executes one capture job end to end.
type runner struct {
	processor processor.PanelProcessorInterface
	storage   jobStore
	capture   *clients.CaptureClient
	timeout   time.Duration
	log       *logging.Logger
}

func newRunner(proc processor.PanelProcessorInterface, store jobStore,
	capture *clients.CaptureClient, timeoutMs int64, log *logging.Logger) *runner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &runner{
		processor: proc,
		storage:   store,
		capture:   capture,
		timeout:   timeout,
		log:       log,
	}
}

// run processes one payload: resolve the photo, extract, persist, and track
// job status. The returned error is non-nil when the job should be retried
// or marked failed by the calling consumer.
func (r *runner) run(ctx context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	startTime := time.Now()

	if err := r.storage.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:  payload.JobID,
		Status: "processing",
	}); err != nil {
		r.log.Warn("failed to mark job processing", "job", payload.JobID, "error", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	photo, err := r.resolvePhoto(processCtx, payload)
	if err != nil {
		r.markFailed(ctx, payload, err, startTime)
		return nil, err
	}

	result, err := r.processor.ProcessPanel(processCtx, &processor.ProcessRequest{
		JobID:     payload.JobID,
		UnitID:    payload.UnitID,
		Filename:  payload.Filename,
		ImageData: photo,
		Metadata:  payload.Metadata,
	})
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			err = aperrors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
		}
		r.markFailed(ctx, payload, err, startTime)
		return nil, err
	}

	// Persistence happens only after the full result is assembled; a
	// failure here is fatal for the run even though extraction succeeded.
	record := &storage.UnitRecord{
		UnitID:   result.UnitID,
		Readings: result.Readings,
	}
	if err := r.storage.SaveUnitRecord(ctx, record); err != nil {
		wrapped := aperrors.NewStorageFailedError(payload.JobID, err)
		r.markFailed(ctx, payload, wrapped, startTime)
		return nil, wrapped
	}

	if err := r.storage.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:            payload.JobID,
		UnitID:           result.UnitID,
		Status:           "completed",
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		FieldsResolved:   result.FieldsResolved,
		Metadata:         completionMetadata(result),
	}); err != nil {
		r.log.Warn("failed to mark job completed", "job", payload.JobID, "error", err)
	}

	metrics.JobsTotal.WithLabelValues("completed").Inc()
	r.log.Info("job completed", "job", payload.JobID, "unit", result.UnitID,
		"resolved", result.FieldsResolved, "duration", time.Since(startTime))

	return result, nil
}

// resolvePhoto returns the panel photo bytes, downloading by URL when the
// payload does not inline them.
func (r *runner) resolvePhoto(ctx context.Context, payload *JobPayload) ([]byte, error) {
	if len(payload.FileBuffer) > 0 {
		return payload.FileBuffer, nil
	}
	if payload.FileURL == "" {
		return nil, fmt.Errorf("job %s carries neither photo bytes nor a file URL", payload.JobID)
	}
	if r.capture == nil {
		return nil, fmt.Errorf("job %s references %s but no capture client is configured",
			payload.JobID, payload.FileURL)
	}

	photo, err := r.capture.Download(ctx, payload.FileURL)
	if err != nil {
		return nil, aperrors.NewDownloadFailedError(payload.JobID, payload.FileURL, err)
	}
	return photo, nil
}

func (r *runner) markFailed(ctx context.Context, payload *JobPayload, cause error, startTime time.Time) {
	metrics.JobsTotal.WithLabelValues("failed").Inc()

	update := &storage.JobUpdate{
		JobID:            payload.JobID,
		UnitID:           payload.UnitID,
		Status:           "failed",
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		ErrorMessage:     cause.Error(),
	}
	var perr *aperrors.ProcessingError
	if errors.As(cause, &perr) {
		update.ErrorCode = string(perr.Code)
		update.Metadata = perr.ToMap()
	}

	if err := r.storage.UpdateJobStatus(ctx, update); err != nil {
		r.log.Warn("failed to mark job failed", "job", payload.JobID, "error", err)
	}
}

// completionMetadata flattens the extraction outcome for job tracking.
func completionMetadata(result *processor.ProcessResult) map[string]interface{} {
	readings := make(map[string]interface{}, len(result.Readings))
	for param, value := range result.Readings {
		readings[string(param)] = value
	}
	return map[string]interface{}{
		"unitId":         result.UnitID,
		"readings":       readings,
		"fieldsResolved": result.FieldsResolved,
		"processingTime": result.ProcessingTimeMs,
	}
}
