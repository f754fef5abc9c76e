package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	aperrors "github.com/reeflab/aquapanel-worker/internal/errors"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/processor"
	"github.com/reeflab/aquapanel-worker/internal/storage"
)

// stubProcessor returns a fixed outcome without touching an image.
type stubProcessor struct {
	result *processor.ProcessResult
	err    error
}

func (s *stubProcessor) ProcessPanel(_ context.Context, _ *processor.ProcessRequest) (*processor.ProcessResult, error) {
	return s.result, s.err
}

// recordingStore captures every persistence call the runner makes.
type recordingStore struct {
	saveErr  error
	saved    []*storage.UnitRecord
	statuses []*storage.JobUpdate
}

func (s *recordingStore) SaveUnitRecord(_ context.Context, rec *storage.UnitRecord) error {
	s.saved = append(s.saved, rec)
	return s.saveErr
}

func (s *recordingStore) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	s.statuses = append(s.statuses, update)
	return nil
}

func (s *recordingStore) lastStatus(t *testing.T) *storage.JobUpdate {
	t.Helper()
	if len(s.statuses) == 0 {
		t.Fatal("no job status updates recorded")
	}
	return s.statuses[len(s.statuses)-1]
}

func TestJobPayloadUnmarshalBase64(t *testing.T) {
	raw := `{
		"jobId": "job-1",
		"filename": "tank_3_morning.jpg",
		"fileBuffer": "aGVsbG8gcGFuZWw="
	}`

	var payload JobPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.JobID != "job-1" {
		t.Errorf("JobID = %q", payload.JobID)
	}
	if payload.Filename != "tank_3_morning.jpg" {
		t.Errorf("Filename = %q", payload.Filename)
	}
	if !bytes.Equal(payload.FileBuffer, []byte("hello panel")) {
		t.Errorf("FileBuffer = %q", payload.FileBuffer)
	}
}

func TestJobPayloadUnmarshalNodeBuffer(t *testing.T) {
	raw := `{
		"jobId": "job-2",
		"filename": "tank_3.jpg",
		"fileBuffer": {"type": "Buffer", "data": [104, 105]}
	}`

	var payload JobPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !bytes.Equal(payload.FileBuffer, []byte("hi")) {
		t.Errorf("FileBuffer = %v", payload.FileBuffer)
	}
}

func TestJobPayloadUnmarshalNoBuffer(t *testing.T) {
	raw := `{
		"jobId": "job-3",
		"filename": "tank_3.jpg",
		"fileUrl": "/files/tank_3.jpg"
	}`

	var payload JobPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.FileBuffer != nil {
		t.Errorf("FileBuffer = %v, want nil", payload.FileBuffer)
	}
	if payload.FileURL != "/files/tank_3.jpg" {
		t.Errorf("FileURL = %q", payload.FileURL)
	}
}

func TestJobPayloadUnmarshalInvalidBuffer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad base64", `{"jobId": "j", "fileBuffer": "not-base64!!!"}`},
		{"wrong object type", `{"jobId": "j", "fileBuffer": {"type": "Blob", "data": [1]}}`},
		{"missing data array", `{"jobId": "j", "fileBuffer": {"type": "Buffer"}}`},
		{"non-numeric byte", `{"jobId": "j", "fileBuffer": {"type": "Buffer", "data": ["x"]}}`},
		{"unsupported kind", `{"jobId": "j", "fileBuffer": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload JobPayload
			if err := json.Unmarshal([]byte(tt.raw), &payload); err == nil {
				t.Error("unmarshal succeeded, want error")
			}
		})
	}
}

func TestRunnerPersistsAfterExtraction(t *testing.T) {
	store := &recordingStore{}
	run := newRunner(&stubProcessor{
		result: &processor.ProcessResult{
			JobID:  "job-10",
			UnitID: "tank_4",
			Readings: map[processor.Parameter]string{
				processor.ParamPH:              "7.40",
				processor.ParamTemperature:     "24.50",
				processor.ParamDissolvedOxygen: "8.20",
				processor.ParamSalinity:        "32.10",
			},
			FieldsResolved: 4,
		},
	}, store, nil, 0, logging.NewLogger("test"))

	result, err := run.run(context.Background(), &JobPayload{
		JobID:      "job-10",
		Filename:   "tank_4.jpg",
		FileBuffer: []byte("photo"),
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.UnitID != "tank_4" {
		t.Errorf("UnitID = %q", result.UnitID)
	}

	if len(store.saved) != 1 || store.saved[0].UnitID != "tank_4" {
		t.Fatalf("saved records = %+v, want one for tank_4", store.saved)
	}
	if got := store.lastStatus(t); got.Status != "completed" || got.UnitID != "tank_4" {
		t.Errorf("final status = %+v, want completed for tank_4", got)
	}
}

func TestRunnerStorageFailureIsFatal(t *testing.T) {
	// Extraction succeeded but recording did not: the run must fail with a
	// storage error and the job must be marked failed.
	store := &recordingStore{saveErr: errors.New("connection refused")}
	run := newRunner(&stubProcessor{
		result: &processor.ProcessResult{
			JobID:    "job-11",
			UnitID:   "tank_4",
			Readings: map[processor.Parameter]string{processor.ParamPH: "7.40"},
		},
	}, store, nil, 0, logging.NewLogger("test"))

	_, err := run.run(context.Background(), &JobPayload{
		JobID:      "job-11",
		Filename:   "tank_4.jpg",
		FileBuffer: []byte("photo"),
	})
	if err == nil {
		t.Fatal("run succeeded despite storage failure")
	}

	var perr *aperrors.ProcessingError
	if !errors.As(err, &perr) || perr.Code != aperrors.ErrorStorageFailed {
		t.Errorf("error = %v, want code %s", err, aperrors.ErrorStorageFailed)
	}

	got := store.lastStatus(t)
	if got.Status != "failed" {
		t.Errorf("final status = %q, want failed", got.Status)
	}
	if got.ErrorCode != string(aperrors.ErrorStorageFailed) {
		t.Errorf("ErrorCode = %q, want %s", got.ErrorCode, aperrors.ErrorStorageFailed)
	}
}

func TestRunnerNothingPersistedOnExtractionFailure(t *testing.T) {
	// A fatal extraction error must never reach SaveUnitRecord.
	store := &recordingStore{}
	run := newRunner(&stubProcessor{
		err: aperrors.NewImageDecodeError("job-12", errors.New("png: not a PNG file")),
	}, store, nil, 0, logging.NewLogger("test"))

	_, err := run.run(context.Background(), &JobPayload{
		JobID:      "job-12",
		Filename:   "tank_4.jpg",
		FileBuffer: []byte("garbage"),
	})
	if err == nil {
		t.Fatal("run succeeded despite decode failure")
	}

	if len(store.saved) != 0 {
		t.Errorf("saved records = %+v, want none", store.saved)
	}
	got := store.lastStatus(t)
	if got.Status != "failed" {
		t.Errorf("final status = %q, want failed", got.Status)
	}
	if got.ErrorCode != string(aperrors.ErrorImageDecodeFailed) {
		t.Errorf("ErrorCode = %q, want %s", got.ErrorCode, aperrors.ErrorImageDecodeFailed)
	}
}

func TestCompletionMetadata(t *testing.T) {
	result := &processor.ProcessResult{
		JobID:  "job-4",
		UnitID: "tank_3",
		Readings: map[processor.Parameter]string{
			processor.ParamPH:              "7.40",
			processor.ParamTemperature:     "24.50",
			processor.ParamDissolvedOxygen: processor.NoReading,
			processor.ParamSalinity:        "32.10",
		},
		FieldsResolved:   3,
		ProcessingTimeMs: 812,
	}

	meta := completionMetadata(result)
	if meta["unitId"] != "tank_3" {
		t.Errorf("unitId = %v", meta["unitId"])
	}
	if meta["fieldsResolved"] != 3 {
		t.Errorf("fieldsResolved = %v", meta["fieldsResolved"])
	}

	readings, ok := meta["readings"].(map[string]interface{})
	if !ok {
		t.Fatalf("readings has type %T", meta["readings"])
	}
	if readings["ph"] != "7.40" {
		t.Errorf("ph = %v", readings["ph"])
	}
	if readings["dissolved_oxygen"] != processor.NoReading {
		t.Errorf("dissolved_oxygen = %v, want sentinel", readings["dissolved_oxygen"])
	}
}
