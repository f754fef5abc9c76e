/**
 * Quadrant partitioner for the four-gauge panel layout.
 *
 * The instrument panel is photographed as a single frame with one gauge
 * display per quadrant. The partition is a fixed split, not detected.
 */

package processor

import (
	"fmt"
	"image"
)

// Parameter identifies one of the four sensor readings on the panel.
type Parameter string

const (
	ParamPH              Parameter = "ph"
	ParamTemperature     Parameter = "temperature"
	ParamDissolvedOxygen Parameter = "dissolved_oxygen"
	ParamSalinity        Parameter = "salinity"
)

// Parameters returns the four panel parameters in quadrant order:
// top-left, top-right, bottom-left, bottom-right.
func Parameters() [4]Parameter {
	return [4]Parameter{ParamPH, ParamTemperature, ParamDissolvedOxygen, ParamSalinity}
}

// Range is the physically plausible interval for a parameter. It is a
// preference filter during candidate selection, never a hard rejection.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v falls inside the range (inclusive).
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ValidRange returns the plausible reading interval for the parameter.
func (p Parameter) ValidRange() Range {
	switch p {
	case ParamPH:
		return Range{Min: 0, Max: 14}
	case ParamTemperature:
		return Range{Min: -10, Max: 60}
	case ParamDissolvedOxygen:
		return Range{Min: 0, Max: 25}
	case ParamSalinity:
		return Range{Min: 0, Max: 50}
	}
	return Range{}
}

// Region is an axis-aligned sub-rectangle of the panel photo.
type Region struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Rect converts the region to an image.Rectangle for cropping.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Partition splits a width x height frame into the four fixed gauge regions.
// Midpoints use floor division, so on odd dimensions the right/bottom
// quadrants are one pixel wider/taller. Non-positive dimensions are a caller
// contract violation and fail before any region is computed.
func Partition(width, height int) (map[Parameter]Region, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid panel dimensions %dx%d", width, height)
	}

	halfW := width / 2
	halfH := height / 2

	return map[Parameter]Region{
		ParamPH:              {Left: 0, Top: 0, Width: halfW, Height: halfH},
		ParamTemperature:     {Left: halfW, Top: 0, Width: width - halfW, Height: halfH},
		ParamDissolvedOxygen: {Left: 0, Top: halfH, Width: halfW, Height: height - halfH},
		ParamSalinity:        {Left: halfW, Top: halfH, Width: width - halfW, Height: height - halfH},
	}, nil
}
