package processor

import "context"

// NumericWhitelist restricts recognition to characters that can appear in a
// gauge reading.
const NumericWhitelist = "0123456789.-"

// PageSegMode selects the Tesseract page segmentation hint. Values follow
// the Tesseract numbering so they can be passed through unchanged.
type PageSegMode int

const (
	// PSMSingleBlock treats the variant as one uniform block of text.
	PSMSingleBlock PageSegMode = 6
	// PSMSingleWord treats the variant as a single word/token.
	PSMSingleWord PageSegMode = 8
)

// RecognizeOptions configures one OCR invocation.
type RecognizeOptions struct {
	Language    string
	Whitelist   string
	PageSegMode PageSegMode
}

// Observation is the raw outcome of recognizing one preprocessed variant.
// Confidence is on the engine's 0-100 scale.
type Observation struct {
	Text       string
	Confidence float64
}

// Engine runs character recognition on an encoded image buffer. Engine
// errors are treated like an empty observation by the extraction pipeline,
// never as a pipeline failure.
type Engine interface {
	Recognize(ctx context.Context, png []byte, opts RecognizeOptions) (*Observation, error)
}
