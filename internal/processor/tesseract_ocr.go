/**
 * Tesseract OCR engine for gauge digit recognition.
 *
 * Offline recognition via gosseract. Each invocation uses a fresh client:
 * gosseract clients are not safe for concurrent use and the per-variant
 * buffers are small.
 */

package processor

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine implements Engine using a local Tesseract installation.
type TesseractEngine struct {
	language string
}

// TesseractConfig holds Tesseract engine configuration.
type TesseractConfig struct {
	Language string
}

// NewTesseractEngine creates a Tesseract-backed OCR engine.
func NewTesseractEngine(cfg *TesseractConfig) (*TesseractEngine, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &TesseractEngine{language: lang}, nil
}

// Recognize runs one OCR pass over an encoded image buffer.
func (t *TesseractEngine) Recognize(ctx context.Context, png []byte, opts RecognizeOptions) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	lang := opts.Language
	if lang == "" {
		lang = t.language
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	if opts.PageSegMode != 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
			return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}

	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	return &Observation{
		Text:       text,
		Confidence: t.meanWordConfidence(client),
	}, nil
}

// meanWordConfidence averages Tesseract's per-word confidences (0-100).
// Falls back to zero when word boxes are unavailable; the candidate selection
// then still keeps the observation, it just loses confidence tie-breaks.
func (t *TesseractEngine) meanWordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}

	var sum float64
	count := 0
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		sum += box.Confidence
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
