package detection

import (
	"fmt"
	"slices"
)

// TimeSeries holds per-label counts in one-second bins, oldest first.
type TimeSeries struct {
	Window  int              `json:"window"`
	Labels  []string         `json:"labels"`
	Classes []string         `json:"classes"`
	Counts  map[string][]int `json:"counts"`
}

func newTimeSeries(window int, classes []string) TimeSeries {
	if window < 0 {
		window = 0
	}
	ts := TimeSeries{
		Window:  window,
		Labels:  make([]string, window),
		Classes: slices.Clone(classes),
		Counts:  make(map[string][]int, len(classes)),
	}
	for i := range window {
		ts.Labels[i] = fmt.Sprintf("-%ds", window-i)
	}
	for _, c := range classes {
		ts.Counts[c] = make([]int, window)
	}
	return ts
}

// Bin returns the per-label counts of bin i, or nil when i is out of range.
func (ts TimeSeries) Bin(i int) map[string]int {
	if i < 0 || i >= ts.Window {
		return nil
	}
	bin := make(map[string]int, len(ts.Classes))
	for _, c := range ts.Classes {
		bin[c] = ts.Counts[c][i]
	}
	return bin
}

// Total returns the number of events counted across all bins.
func (ts TimeSeries) Total() int {
	total := 0
	for _, counts := range ts.Counts {
		for _, n := range counts {
			total += n
		}
	}
	return total
}
