/**
 * PostgreSQL client for the AquaPanel worker.
 *
 * Owns the durable copy of unit readings and capture-job tracking. A unit
 * record write is an unconditional field update keyed by unit id with a
 * server-assigned timestamp; existing rows are never read back or merged.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/reeflab/aquapanel-worker/internal/processor"
)

// UnitRecord is the persisted outcome of one panel extraction.
type UnitRecord struct {
	UnitID     string
	Readings   map[processor.Parameter]string // formatted values or processor.NoReading
	RecordedAt time.Time                      // populated on read; writes use NOW()
}

// JobUpdate represents a capture-job status update.
type JobUpdate struct {
	JobID            string
	UnitID           string
	Status           string
	ProcessingTimeMs int64
	FieldsResolved   int
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// PostgresClient handles database operations.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client.
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// nullReading maps the no-reading sentinel (and empty strings) to SQL NULL
// so "no value" never masquerades as a number in the database.
func nullReading(v string) sql.NullString {
	if v == "" || v == processor.NoReading {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// readingOrSentinel converts a nullable column back to the worker sentinel.
func readingOrSentinel(v sql.NullString) string {
	if !v.Valid {
		return processor.NoReading
	}
	return v.String
}

// UpsertUnitRecord writes one unit record keyed by unit id. All four reading
// fields are overwritten unconditionally and the write time is assigned by
// the server.
func (p *PostgresClient) UpsertUnitRecord(ctx context.Context, rec *UnitRecord) error {
	if rec == nil || rec.UnitID == "" {
		return fmt.Errorf("unit ID is required")
	}

	query := `
		INSERT INTO telemetry.unit_readings (
			unit_id, ph, temperature, dissolved_oxygen, salinity, recorded_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (unit_id) DO UPDATE SET
			ph = EXCLUDED.ph,
			temperature = EXCLUDED.temperature,
			dissolved_oxygen = EXCLUDED.dissolved_oxygen,
			salinity = EXCLUDED.salinity,
			recorded_at = NOW()
	`

	_, err := p.db.ExecContext(
		ctx,
		query,
		rec.UnitID,
		nullReading(rec.Readings[processor.ParamPH]),
		nullReading(rec.Readings[processor.ParamTemperature]),
		nullReading(rec.Readings[processor.ParamDissolvedOxygen]),
		nullReading(rec.Readings[processor.ParamSalinity]),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert unit record (unit=%s): %w", rec.UnitID, err)
	}

	return nil
}

// GetUnitRecord retrieves the latest persisted readings for a unit.
func (p *PostgresClient) GetUnitRecord(ctx context.Context, unitID string) (*UnitRecord, error) {
	if unitID == "" {
		return nil, fmt.Errorf("unit ID is required")
	}

	query := `
		SELECT unit_id, ph, temperature, dissolved_oxygen, salinity, recorded_at
		FROM telemetry.unit_readings
		WHERE unit_id = $1
	`

	var (
		id                      string
		ph, temp, oxy, salinity sql.NullString
		recordedAt              time.Time
	)

	err := p.db.QueryRowContext(ctx, query, unitID).Scan(
		&id, &ph, &temp, &oxy, &salinity, &recordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unit not found: %s", unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit record: %w", err)
	}

	return &UnitRecord{
		UnitID: id,
		Readings: map[processor.Parameter]string{
			processor.ParamPH:              readingOrSentinel(ph),
			processor.ParamTemperature:     readingOrSentinel(temp),
			processor.ParamDissolvedOxygen: readingOrSentinel(oxy),
			processor.ParamSalinity:        readingOrSentinel(salinity),
		},
		RecordedAt: recordedAt,
	}, nil
}

// UpdateJobStatus upserts a capture-job row. The worker may see a job before
// the uploader created its row, so the first status update creates it.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO telemetry.capture_jobs (
			id, unit_id, status, processing_time_ms, fields_resolved,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), $3, NULLIF($4, 0), $5,
			NULLIF($6, ''), NULLIF($7, ''), COALESCE($8::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			unit_id = COALESCE(EXCLUDED.unit_id, telemetry.capture_jobs.unit_id),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, telemetry.capture_jobs.processing_time_ms),
			fields_resolved = EXCLUDED.fields_resolved,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = COALESCE(EXCLUDED.metadata, telemetry.capture_jobs.metadata),
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(
		ctx,
		query,
		update.JobID,
		update.UnitID,
		update.Status,
		update.ProcessingTimeMs,
		update.FieldsResolved,
		update.ErrorCode,
		update.ErrorMessage,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// Ping checks database connectivity.
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics.
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
