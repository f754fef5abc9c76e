/**
 * Preprocessing strategies for gauge digit recognition.
 *
 * Each strategy turns one panel region into an independently recognizable
 * PNG variant. Strategies are stateless and never branch on image content;
 * robustness comes from running all of them and letting candidate selection
 * pick the winner.
 */

package processor

import (
	"bytes"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// Strategy names one preprocessing recipe.
type Strategy string

const (
	// StrategyBasic: grayscale, normalize, upscale.
	StrategyBasic Strategy = "basic"
	// StrategyHighContrast: grayscale, normalize, contrast stretch, sharpen, upscale.
	StrategyHighContrast Strategy = "high-contrast"
	// StrategyThreshold: grayscale, normalize, mid-grey binarize, upscale.
	StrategyThreshold Strategy = "threshold"
)

// Strategies returns all recipes in their fixed evaluation order. The order
// is the cross-variant tie-break order, so it must stay stable.
func Strategies() [3]Strategy {
	return [3]Strategy{StrategyBasic, StrategyHighContrast, StrategyThreshold}
}

// pageSegMode returns the Tesseract segmentation hint for the strategy.
// The binarized variant collapses to a single glyph run, where single-word
// mode recognizes short tokens more reliably.
func (s Strategy) pageSegMode() PageSegMode {
	if s == StrategyThreshold {
		return PSMSingleWord
	}
	return PSMSingleBlock
}

const (
	// upscaleFactor restores legibility of small seven-segment glyphs.
	upscaleFactor = 3
	// thresholdCutoff is the fixed mid-grey binarization level.
	thresholdCutoff = 128
	// contrastStretch is the linear contrast percentage for the
	// high-contrast recipe.
	contrastStretch = 40
	// sharpenSigma controls edge sharpening after the contrast stretch.
	sharpenSigma = 1.0
)

// PreprocessRegion crops one gauge region out of the panel photo and renders
// it through the given strategy, returning an encoded PNG ready for OCR.
func PreprocessRegion(img image.Image, region Region, strategy Strategy) ([]byte, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("invalid region %dx%d", region.Width, region.Height)
	}

	cropped := imaging.Crop(img, region.Rect())
	gray := normalizeGray(toGray(cropped))

	var variant image.Image
	switch strategy {
	case StrategyBasic:
		variant = gray
	case StrategyHighContrast:
		stretched := imaging.AdjustContrast(gray, contrastStretch)
		variant = imaging.Sharpen(stretched, sharpenSigma)
	case StrategyThreshold:
		variant = segment.Threshold(gray, thresholdCutoff)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	upscaled := imaging.Resize(variant,
		region.Width*upscaleFactor, region.Height*upscaleFactor, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, upscaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode %s variant: %w", strategy, err)
	}
	return buf.Bytes(), nil
}

// toGray converts any image to grayscale with the same bounds. Always a
// fresh buffer: callers mutate the result in place.
func toGray(src image.Image) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	model := dst.ColorModel()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, model.Convert(src.At(x, y)))
		}
	}
	return dst
}

// normalizeGray stretches a grayscale image so its histogram spans the full
// colorspace. A flat region (min == max) is returned unchanged.
func normalizeGray(img *image.Gray) *image.Gray {
	var min uint8 = 255
	var max uint8 = 0

	rect := img.Bounds()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			val := img.GrayAt(x, y).Y
			if val < min {
				min = val
			}
			if val > max {
				max = val
			}
		}
	}

	if max <= min {
		return img
	}

	span := float32(max - min)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := img.GrayAt(x, y)
			c.Y = uint8((float32(c.Y-min) / span) * 255)
			img.SetGray(x, y, c)
		}
	}
	return img
}
