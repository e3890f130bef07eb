package app

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/mediastate"
)

// Insight thresholds.
const (
	// LowConfidence flags classes whose average confidence falls below it.
	LowConfidence = 0.5
	// RecentWindow is the time-series window, in seconds, used for the activity line.
	RecentWindow = 60
)

// Run publishes detectionStats and activityInsights every refresh interval
// until ctx is cancelled. It runs independently of Start and Stop.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.refreshState()
		}
	}
}

// refreshState computes per-second rates since the previous call and
// publishes them along with fresh insights.
func (a *App) refreshState() {
	now := a.now()

	a.mu.Lock()
	elapsed := now.Sub(a.lastRefresh).Seconds()
	a.lastRefresh = now
	a.mu.Unlock()

	stats := mediastate.DetectionStats{
		Face:    int(a.face.Swap(0)),
		Pose:    int(a.pose.Swap(0)),
		Gesture: int(a.gesture.Swap(0)),
	}
	frames := a.frames.Swap(0)
	if elapsed > 0 {
		stats.FPS = math.Round(float64(frames)/elapsed*10) / 10
	}

	a.state.UpdateDetectionStats(stats)
	a.state.UpdateActivityInsights(a.insights(now))
}

// insights summarises the detection log as short feed lines.
func (a *App) insights(now time.Time) []mediastate.Insight {
	stamp := now.Format("15:04:05")
	line := func(format string, args ...any) mediastate.Insight {
		return mediastate.Insight{Time: stamp, Text: fmt.Sprintf(format, args...)}
	}

	snap := a.log.Snapshot()
	if snap.Total == 0 {
		return []mediastate.Insight{line("No items detected yet")}
	}

	classes := make([]string, 0, len(snap.Counts))
	for c := range snap.Counts {
		classes = append(classes, c)
	}
	// Highest count first; ties by name for stable output.
	slices.SortFunc(classes, func(x, y string) int {
		if d := snap.Counts[y] - snap.Counts[x]; d != 0 {
			return d
		}
		return cmp.Compare(x, y)
	})

	top := classes[0]
	out := []mediastate.Insight{
		line("Most detected: %s (%d of %d)", top, snap.Counts[top], snap.Total),
	}

	recent := a.log.TimeSeries(RecentWindow).Total()
	out = append(out, line("%d items in the last minute", recent))

	for _, c := range classes {
		avg := snap.AverageConfidence[c]
		if !math.IsNaN(avg) && avg < LowConfidence {
			out = append(out, line("Low confidence on %s (%.2f)", c, avg))
		}
	}
	return out
}
