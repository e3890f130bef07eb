package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	results []Result
	err     error
	calls   int
	closed  bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResults sets the results that will be returned by Detect.
func (m *MockDetector) SetResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured results or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Result(nil), m.results...), nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SortingBinResults returns a preset frame with one item of each recyclable class.
func SortingBinResults() []Result {
	return []Result{
		{Detection: detection.Raw{Class: detection.LabelGlass, Confidence: 0.91}},
		{Detection: detection.Raw{Class: detection.LabelMetal, Confidence: 0.84}},
		{Detection: detection.Raw{Class: detection.LabelPaper, Confidence: 0.66}},
		{Detection: detection.Raw{Class: detection.LabelPlastic, Confidence: 0.78}},
	}
}
