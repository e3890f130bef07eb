package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion gate constants
const (
	// BlurSize is the Gaussian kernel used to suppress sensor noise.
	BlurSize = 21
	// PixelDiffThreshold is the per-pixel intensity change that counts as changed.
	PixelDiffThreshold = 25
	// DefaultHold keeps the gate open after the last motion so an item
	// resting in front of the camera is still classified.
	DefaultHold = 2 * time.Second
)

// MotionGate decides whether a frame is worth sending to the detector.
// A frame passes when the share of changed pixels relative to the previous
// frame exceeds the threshold, or while the hold period after the last
// motion has not elapsed. A threshold <= 0 disables gating.
type MotionGate struct {
	threshold   float64
	hold        time.Duration
	prevGray    gocv.Mat
	initialized bool
	lastMotion  time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewMotionGate creates a gate with the given threshold in percent of pixels.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		hold:      DefaultHold,
		prevGray:  gocv.NewMat(),
		now:       time.Now,
	}
}

// Allow reports whether frame should be processed.
func (g *MotionGate) Allow(frame *gocv.Mat) bool {
	if !g.Enabled() {
		return true
	}

	moved, _ := g.Detect(frame)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if moved {
		g.lastMotion = now
		return true
	}
	return !g.lastMotion.IsZero() && now.Sub(g.lastMotion) < g.hold
}

// Enabled reports whether the gate filters frames at all.
func (g *MotionGate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threshold > 0
}

// Detect compares frame with the previous one and returns whether motion
// exceeded the threshold together with the percentage of changed pixels.
// The first frame only establishes the baseline.
func (g *MotionGate) Detect(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !g.initialized {
		blurred.CopyTo(&g.prevGray)
		g.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, PixelDiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&g.prevGray)

	return changed > g.threshold, changed
}

// SetHold changes how long the gate stays open after motion. Values < 0 are ignored.
func (g *MotionGate) SetHold(d time.Duration) {
	if d < 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = d
}

// SetThreshold changes the motion threshold. Values less than 0 are ignored;
// 0 disables gating.
func (g *MotionGate) SetThreshold(threshold float64) {
	if threshold < 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}

// Reset forgets the baseline frame and the last motion time.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

// Close releases the baseline frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

func (g *MotionGate) release() {
	if !g.prevGray.Empty() {
		g.prevGray.Close()
		g.prevGray = gocv.NewMat()
	}
	g.initialized = false
	g.lastMotion = time.Time{}
}
