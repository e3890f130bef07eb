// Package capture reads frames from the bin camera and decides which of
// them are worth sending to the classifier. It uses GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Capture settings for the bin camera.
const (
	DefaultFPS    = 10
	DefaultWidth  = 640
	DefaultHeight = 480

	// DefaultWarmupFrames are read and discarded after opening; many USB
	// cameras return dark or half-exposed frames at first.
	DefaultWarmupFrames = 10
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrCameraUnavailable is returned by Open when the device cannot be used.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrNoFrame is returned by ReadFrame when the device yields no image.
	// The detection loop treats it as transient and retries on the next tick.
	ErrNoFrame = errors.New("no frame from camera")
)

// Camera is a source of frames for the detection loop.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// CameraOption configures a camera created by NewCamera.
type CameraOption func(*deviceCamera)

// WithMirror controls horizontal flipping of frames. Enabled by default so
// the preview behaves like a mirror for someone standing at the bin.
func WithMirror(mirror bool) CameraOption {
	return func(c *deviceCamera) { c.mirror = mirror }
}

// WithWarmupFrames sets how many frames are discarded after Open.
func WithWarmupFrames(n int) CameraOption {
	return func(c *deviceCamera) {
		if n >= 0 {
			c.warmup = n
		}
	}
}

// deviceCamera is a local video device opened through OpenCV.
type deviceCamera struct {
	deviceID int
	mirror   bool
	warmup   int

	mu      sync.Mutex
	capture *gocv.VideoCapture
	fps     int
}

// NewCamera creates a Camera for the given device index.
func NewCamera(deviceID int, opts ...CameraOption) Camera {
	c := &deviceCamera{
		deviceID: deviceID,
		mirror:   true,
		warmup:   DefaultWarmupFrames,
		fps:      DefaultFPS,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts capture at 640x480 with MJPG encoding and discards the
// warm-up frames. Opening an open camera is a no-op.
func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, c.deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d", ErrCameraUnavailable, c.deviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	capture.Set(gocv.VideoCaptureFOURCC, float64(capture.ToCodec("MJPG")))

	warm := gocv.NewMat()
	for range c.warmup {
		capture.Read(&warm)
	}
	warm.Close()

	c.capture = capture
	return nil
}

// Close releases the device. Closing a closed camera is a no-op.
func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame returns the next frame, mirrored when configured.
// The caller must Close the returned Mat.
func (c *deviceCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: device %d", ErrNoFrame, c.deviceID)
	}

	if c.mirror {
		gocv.Flip(mat, &mat, 1)
	}
	return &mat, nil
}

// SetFPS changes the requested capture rate. Non-positive values are ignored.
func (c *deviceCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *deviceCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
