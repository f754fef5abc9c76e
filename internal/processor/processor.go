/**
 * Panel extraction orchestrator.
 *
 * Runs the full quadrant OCR pipeline for one capture job: decode the panel
 * photo, partition it into the four gauge regions, extract a reading per
 * parameter (all four pipelines concurrently, all variants per pipeline
 * concurrently) and assemble the complete result. Only decode failures are
 * fatal; a parameter whose pipeline fails end-to-end resolves to the
 * no-reading sentinel and leaves the other three untouched.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"sync"
	"time"

	aperrors "github.com/reeflab/aquapanel-worker/internal/errors"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/metrics"
)

// ProcessRequest describes one capture job handed to the processor.
type ProcessRequest struct {
	JobID     string
	UnitID    string // optional; resolved from Filename when empty
	Filename  string
	ImageData []byte
	Metadata  map[string]interface{}
}

// ProcessResult is the assembled outcome for one panel photo. Readings
// always carries all four parameters, failed ones as NoReading.
type ProcessResult struct {
	JobID            string
	UnitID           string
	Readings         map[Parameter]string
	Confidences      map[Parameter]float64
	FieldsResolved   int
	ProcessingTimeMs int64
}

// PanelProcessorInterface is the surface the queue consumers depend on.
type PanelProcessorInterface interface {
	ProcessPanel(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
}

// ProcessorConfig holds processor construction options.
type ProcessorConfig struct {
	Engine       Engine // defaults to a Tesseract engine for Language
	Language     string
	MaxImageSize int64
}

// PanelProcessor implements the quadrant OCR extraction engine.
type PanelProcessor struct {
	engine       Engine
	language     string
	maxImageSize int64
	log          *logging.Logger
}

// NewPanelProcessor creates a panel processor.
func NewPanelProcessor(cfg *ProcessorConfig) (*PanelProcessor, error) {
	engine := cfg.Engine
	if engine == nil {
		var err error
		engine, err = NewTesseractEngine(&TesseractConfig{Language: cfg.Language})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OCR engine: %w", err)
		}
	}

	return &PanelProcessor{
		engine:       engine,
		language:     cfg.Language,
		maxImageSize: cfg.MaxImageSize,
		log:          logging.NewLogger("processor"),
	}, nil
}

// ProcessPanel extracts all four readings from one panel photo.
func (p *PanelProcessor) ProcessPanel(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()

	if len(req.ImageData) == 0 {
		return nil, aperrors.NewImageDecodeError(req.JobID, fmt.Errorf("empty image payload"))
	}
	if p.maxImageSize > 0 && int64(len(req.ImageData)) > p.maxImageSize {
		return nil, aperrors.NewImageTooLargeError(req.JobID, int64(len(req.ImageData)), p.maxImageSize)
	}

	img, format, err := image.Decode(bytes.NewReader(req.ImageData))
	if err != nil {
		return nil, aperrors.NewImageDecodeError(req.JobID, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, aperrors.NewInvalidImageError(req.JobID, width, height)
	}

	regions, err := Partition(width, height)
	if err != nil {
		return nil, aperrors.NewInvalidImageError(req.JobID, width, height)
	}

	unitID := req.UnitID
	if unitID == "" {
		unitID = ResolveUnitID(req.Filename)
	}

	p.log.Debug("extracting panel", "job", req.JobID, "unit", unitID,
		"format", format, "size", fmt.Sprintf("%dx%d", width, height))

	// One goroutine per parameter, each writing only its own slot.
	params := Parameters()
	selected := make([]Candidate, len(params))
	var wg sync.WaitGroup
	for i, param := range params {
		wg.Add(1)
		go func(i int, param Parameter) {
			defer wg.Done()
			selected[i] = p.extractParameter(ctx, img, regions[param], param)
		}(i, param)
	}
	wg.Wait()

	result := &ProcessResult{
		JobID:       req.JobID,
		UnitID:      unitID,
		Readings:    make(map[Parameter]string, len(params)),
		Confidences: make(map[Parameter]float64, len(params)),
	}
	for i, param := range params {
		cand := selected[i]
		result.Readings[param] = FormatReading(cand)
		result.Confidences[param] = cand.Confidence
		if cand.OK {
			result.FieldsResolved++
			metrics.OCRConfidence.Observe(cand.Confidence)
		} else {
			metrics.NoReadingTotal.WithLabelValues(string(param)).Inc()
		}
	}
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	metrics.ExtractionDuration.Observe(time.Since(startTime).Seconds())

	p.log.Info("panel extracted", "job", req.JobID, "unit", unitID,
		"resolved", result.FieldsResolved, "duration_ms", result.ProcessingTimeMs)

	return result, nil
}

// extractParameter runs the per-parameter pipeline: every preprocessing
// variant is rendered and recognized independently, then the candidates
// compete. A variant that fails preprocessing or OCR simply contributes no
// candidate.
func (p *PanelProcessor) extractParameter(ctx context.Context, img image.Image, region Region, param Parameter) Candidate {
	strategies := Strategies()
	variants := make([]Candidate, len(strategies))

	var wg sync.WaitGroup
	for i, strategy := range strategies {
		wg.Add(1)
		go func(i int, strategy Strategy) {
			defer wg.Done()
			variants[i] = p.runVariant(ctx, img, region, param, strategy)
		}(i, strategy)
	}
	wg.Wait()

	return SelectCandidate(variants)
}

func (p *PanelProcessor) runVariant(ctx context.Context, img image.Image, region Region, param Parameter, strategy Strategy) Candidate {
	buf, err := PreprocessRegion(img, region, strategy)
	if err != nil {
		p.log.Warn("preprocessing variant failed", "parameter", param, "strategy", strategy, "error", err)
		return Candidate{Parameter: param}
	}

	obs, err := p.engine.Recognize(ctx, buf, RecognizeOptions{
		Language:    p.language,
		Whitelist:   NumericWhitelist,
		PageSegMode: strategy.pageSegMode(),
	})
	if err != nil {
		p.log.Warn("OCR variant failed", "parameter", param, "strategy", strategy, "error", err)
		return Candidate{Parameter: param}
	}

	return CandidateFromObservation(param, obs)
}
