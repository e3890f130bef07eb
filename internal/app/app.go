// Package app wires the detection sources to the aggregation store and
// publishes derived state to subscribers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/capture"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/config"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detector"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/mediastate"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/metrics"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/store"
)

// ErrNoSource is returned by Start when the configured source cannot run.
var ErrNoSource = errors.New("no detection source configured")

// DefaultRefreshInterval is how often stats and insights are republished.
const DefaultRefreshInterval = time.Second

// Config holds the collaborators and settings of an App.
type Config struct {
	Log     *detection.Log
	State   *mediastate.Service
	Metrics *metrics.Metrics

	// Source is config.SourceCamera, config.SourceStream or config.SourceNone.
	Source   string
	Camera   capture.Camera
	Detector detector.Detector
	Stream   *detector.StreamClient

	FPS             int
	MotionThreshold float64
	RefreshInterval time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// App owns the detection pipeline. Start and Stop control the active
// source; Ingest is the single entry point for new detections.
type App struct {
	source   string
	log      *detection.Log
	state    *mediastate.Service
	metrics  *metrics.Metrics
	camera   capture.Camera
	gate     *capture.MotionGate
	detector detector.Detector
	stream   *detector.StreamClient
	labels   []string
	fps      int
	refresh  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu          sync.RWMutex
	lastResults []detector.Result
	preview     []byte
	lastRefresh time.Time

	frames  atomic.Uint64
	face    atomic.Int64
	pose    atomic.Int64
	gesture atomic.Int64
}

// New creates an App. Missing Log, State and Metrics are created with defaults.
func New(cfg Config) *App {
	a := &App{
		source:   cfg.Source,
		log:      cfg.Log,
		state:    cfg.State,
		metrics:  cfg.Metrics,
		camera:   cfg.Camera,
		detector: cfg.Detector,
		stream:   cfg.Stream,
		fps:      cfg.FPS,
		refresh:  cfg.RefreshInterval,
		now:      cfg.Clock,
		logger:   cfg.Logger,
	}
	if a.log == nil {
		a.log = detection.NewLog()
	}
	if a.state == nil {
		a.state = mediastate.New()
	}
	if a.metrics == nil {
		a.metrics = metrics.New(a.log.Len)
	}
	a.labels = a.log.Labels()
	if a.fps <= 0 {
		a.fps = capture.DefaultFPS
	}
	if a.refresh <= 0 {
		a.refresh = DefaultRefreshInterval
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "app")
	}
	if a.camera != nil {
		a.gate = capture.NewMotionGate(cfg.MotionThreshold)
	}
	if a.stream != nil {
		a.stream.OnBatch(a.handleBatch)
		a.stream.OnState(func(connected bool) {
			if connected {
				a.metrics.StreamConnected.Store(1)
			} else {
				a.metrics.StreamConnected.Store(0)
			}
		})
		a.stream.OnReconnect(func(int, time.Duration) {
			a.metrics.StreamReconnects.Add(1)
		})
	}
	a.lastRefresh = a.now()
	return a
}

// Start begins consuming the configured source. It reports false without
// error when detection is already running.
func (a *App) Start() (bool, error) {
	started, err := a.start()
	if started {
		// Published outside lifecycle so handlers may call IsRunning.
		a.logger.Info("detection started", "source", a.source)
		a.state.UpdateCameraStatus(true)
	}
	return started, err
}

func (a *App) start() (bool, error) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.cancel != nil {
		return false, nil
	}

	var run func(context.Context)
	switch a.source {
	case config.SourceCamera:
		if a.camera == nil || a.detector == nil {
			return false, ErrNoSource
		}
		if err := a.camera.Open(); err != nil {
			return false, fmt.Errorf("open camera: %w", err)
		}
		a.camera.SetFPS(a.fps)
		a.gate.Reset()
		run = a.runCamera
	case config.SourceStream:
		if a.stream == nil {
			return false, ErrNoSource
		}
		run = a.runStream
	default:
		return false, ErrNoSource
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done

	go func() {
		defer close(done)
		run(ctx)
	}()
	return true, nil
}

// Stop halts the active source and waits for it to finish. It reports
// false when detection was not running.
func (a *App) Stop() bool {
	if !a.stop() {
		return false
	}
	a.logger.Info("detection stopped", "source", a.source)
	a.state.UpdateCameraStatus(false)
	return true
}

func (a *App) stop() bool {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.cancel == nil {
		return false
	}

	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	if a.source == config.SourceCamera {
		if err := a.camera.Close(); err != nil {
			a.logger.Error("close camera", "error", err)
		}
	}

	a.mu.Lock()
	a.preview = nil
	a.mu.Unlock()
	return true
}

// IsRunning reports whether a source is active.
func (a *App) IsRunning() bool {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	return a.cancel != nil
}

// Ingest appends a batch to the detection log and notifies subscribers of
// the records the log kept. It returns how many were kept; batches with
// nothing kept are not published.
func (a *App) Ingest(raws []detection.Raw) int {
	admitted := a.log.AppendAdmitted(raws)
	if len(admitted) == 0 {
		return 0
	}

	for _, r := range admitted {
		a.metrics.ObserveDetection(a.metricClass(r.Class))
	}
	a.state.PublishDetections(mediastate.DetectionBatch{
		Detections: admitted,
		Timestamp:  a.now().UnixMilli(),
	})
	return len(admitted)
}

// metricClass bounds the detection counter to the configured label set.
func (a *App) metricClass(class string) string {
	if slices.Contains(a.labels, class) {
		return class
	}
	return detection.LabelUndefined
}

// handleBatch records the results of one processed frame or stream message.
func (a *App) handleBatch(results []detector.Result) {
	a.frames.Add(1)

	a.mu.Lock()
	a.lastResults = slices.Clone(results)
	a.mu.Unlock()

	a.Ingest(detector.Raws(results))
}

// Reset clears the detection log and notifies subscribers.
func (a *App) Reset() {
	a.log.Clear()

	a.mu.Lock()
	a.lastResults = nil
	a.mu.Unlock()

	a.logger.Info("detection statistics reset")
	a.state.PublishReset()
}

// ObserveRecognition counts a stored recognition log towards the next
// detectionStats update.
func (a *App) ObserveRecognition(t store.RecognitionType) {
	switch t {
	case store.RecognitionFace:
		a.face.Add(1)
	case store.RecognitionPose:
		a.pose.Add(1)
	case store.RecognitionGesture:
		a.gesture.Add(1)
	}
}

// LastResults returns the results of the most recent batch.
func (a *App) LastResults() []detector.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.lastResults)
}

// Preview returns the latest annotated camera frame as JPEG.
func (a *App) Preview() ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview, a.preview != nil
}

// Close stops detection and releases the detector and motion gate.
func (a *App) Close() error {
	a.Stop()

	if a.gate != nil {
		a.gate.Close()
	}
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			return fmt.Errorf("close detector: %w", err)
		}
	}
	return nil
}

// Source returns the configured source kind.
func (a *App) Source() string {
	return a.source
}

// Log returns the detection log.
func (a *App) Log() *detection.Log {
	return a.log
}

// State returns the media state service.
func (a *App) State() *mediastate.Service {
	return a.state
}

// Metrics returns the application metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Camera returns the camera, which may be nil.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the frame detector, which may be nil.
func (a *App) Detector() detector.Detector {
	return a.detector
}
