// Package detection provides the in-memory aggregation store for classification
// results produced by the external detection pipeline.
package detection

import (
	"encoding/json"
	"math"
	"time"
)

// Default label set used to seed time-series bins.
const (
	LabelGlass     = "glass"
	LabelMetal     = "metal"
	LabelPaper     = "paper"
	LabelPlastic   = "plastic"
	LabelUndefined = "undefined"
)

// DefaultLabels returns the label set known to the trash classifier.
func DefaultLabels() []string {
	return []string{LabelGlass, LabelMetal, LabelPaper, LabelPlastic, LabelUndefined}
}

// Raw is a single classification result as delivered by a detector,
// before the store timestamps it.
type Raw struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON decodes a raw detection, mapping a missing or null class to
// LabelUndefined (an empty string is kept as its own class) and a missing or non-numeric confidence to NaN.
// Any other fields (bounding boxes, frame ids) are ignored.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var aux struct {
		Class      *string         `json:"class"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Class = LabelUndefined
	if aux.Class != nil {
		r.Class = *aux.Class
	}

	r.Confidence = math.NaN()
	if len(aux.Confidence) > 0 {
		var c float64
		if err := json.Unmarshal(aux.Confidence, &c); err == nil {
			r.Confidence = c
		}
	}
	return nil
}

// MarshalJSON encodes NaN confidences as null so results stay valid JSON.
func (r Raw) MarshalJSON() ([]byte, error) {
	var conf *float64
	if !math.IsNaN(r.Confidence) && !math.IsInf(r.Confidence, 0) {
		conf = &r.Confidence
	}
	return json.Marshal(struct {
		Class      string   `json:"class"`
		Confidence *float64 `json:"confidence"`
	}{r.Class, conf})
}

// Event is a Raw detection stamped by the store at insertion time.
type Event struct {
	Class      string
	Confidence float64
	// ObservedAt is the insertion time assigned by the store.
	ObservedAt time.Time
	// RelativeTime is the number of seconds between the store's start time
	// and ObservedAt. Display only.
	RelativeTime float64
}

// Raw returns the caller-facing part of the event.
func (e Event) Raw() Raw {
	return Raw{Class: e.Class, Confidence: e.Confidence}
}
