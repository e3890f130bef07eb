// Package detector talks to the external inference service that classifies
// camera frames into waste categories.
package detector

import (
	"context"
	"encoding/json"
	"image"

	"gocv.io/x/gocv"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// Detector defines the interface for frame classification backends.
type Detector interface {
	// Detect classifies a video frame. Returns an empty slice if nothing was found.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Result is one detected object: its classification and bounding box.
type Result struct {
	Detection detection.Raw
	Box       image.Rectangle
}

type resultJSON struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UnmarshalJSON decodes {"class","confidence","x","y","width","height"}.
func (r *Result) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Detection); err != nil {
		return err
	}
	var box resultJSON
	if err := json.Unmarshal(data, &box); err != nil {
		return err
	}
	r.Box = image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)
	return nil
}

// MarshalJSON encodes the same flat shape UnmarshalJSON accepts.
func (r Result) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(r.Detection)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["x"] = r.Box.Min.X
	m["y"] = r.Box.Min.Y
	m["width"] = r.Box.Dx()
	m["height"] = r.Box.Dy()
	return json.Marshal(m)
}

// Raws strips bounding boxes, leaving what the aggregation store ingests.
func Raws(results []Result) []detection.Raw {
	raws := make([]detection.Raw, len(results))
	for i, r := range results {
		raws[i] = r.Detection
	}
	return raws
}
