package detection

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultCapacity is the maximum number of events retained by a Log.
const DefaultCapacity = 1000

// Mode controls how Append treats malformed records.
type Mode int

const (
	// ModePermissive stores every record as-is. Out-of-range or NaN
	// confidences flow into the aggregates unchanged.
	ModePermissive Mode = iota
	// ModeStrict drops records whose confidence is NaN or outside [0,1]
	// and rewrites classes outside the label set to LabelUndefined.
	ModeStrict
)

// String returns the mode name used in configuration.
func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	default:
		return "permissive"
	}
}

// ParseMode converts "strict" or "permissive" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "permissive":
		return ModePermissive, nil
	case "strict":
		return ModeStrict, nil
	default:
		return ModePermissive, fmt.Errorf("unknown detection mode %q", s)
	}
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now. Used by tests to control timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithCapacity sets the retention cap. Values <= 0 are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithLabels sets the label set that seeds time-series bins.
func WithLabels(labels []string) Option {
	return func(l *Log) {
		if len(labels) > 0 {
			l.labels = slices.Clone(labels)
		}
	}
}

// WithMode sets the validation mode.
func WithMode(m Mode) Option {
	return func(l *Log) {
		l.mode = m
	}
}

// Log is a bounded, chronologically ordered history of detection events.
// It is safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	events    []Event
	startTime time.Time

	now      func() time.Time
	capacity int
	labels   []string
	mode     Mode
}

// NewLog creates an empty Log whose start time is the current time.
func NewLog(opts ...Option) *Log {
	l := &Log{
		now:      time.Now,
		capacity: DefaultCapacity,
		labels:   DefaultLabels(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.startTime = l.now()
	l.events = make([]Event, 0, l.capacity)
	return l
}

// Append stamps each record with the current time and appends it in input
// order. When the history exceeds the capacity the oldest events are evicted.
func (l *Log) Append(raws []Raw) {
	l.AppendAdmitted(raws)
}

// AppendAdmitted behaves like Append and returns the records as stored,
// after the validation mode dropped or rewrote them. It returns nil when
// nothing was stored.
func (l *Log) AppendAdmitted(raws []Raw) []Raw {
	if len(raws) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rel := now.Sub(l.startTime).Seconds()

	var admitted []Raw
	for _, raw := range raws {
		r, ok := l.admit(raw)
		if !ok {
			continue
		}
		admitted = append(admitted, r)
		l.events = append(l.events, Event{
			Class:        r.Class,
			Confidence:   r.Confidence,
			ObservedAt:   now,
			RelativeTime: rel,
		})
	}

	if excess := len(l.events) - l.capacity; excess > 0 {
		n := copy(l.events, l.events[excess:])
		clear(l.events[n:])
		l.events = l.events[:n]
	}
	return admitted
}

// admit applies the validation mode to r.
func (l *Log) admit(r Raw) (Raw, bool) {
	if l.mode != ModeStrict {
		return r, true
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return r, false
	}
	if !slices.Contains(l.labels, r.Class) {
		r.Class = LabelUndefined
	}
	return r, true
}

// CountsByClass returns the number of retained events per class.
// Classes with no events are absent.
func (l *Log) CountsByClass() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range l.events {
		counts[e.Class]++
	}
	return counts
}

// AverageConfidenceByClass returns the mean confidence of retained events
// per class. Classes with no events are absent.
func (l *Log) AverageConfidenceByClass() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return averages(l.events)
}

func averages(events []Event) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range events {
		sums[e.Class] += e.Confidence
		counts[e.Class]++
	}

	avg := make(map[string]float64, len(sums))
	for class, sum := range sums {
		avg[class] = sum / float64(counts[class])
	}
	return avg
}

// TimeSeries buckets events observed in the last windowSeconds seconds into
// one-second bins per label. Bin 0 is the oldest second, the last bin the most
// recent one. Only classes in the label set are counted.
func (l *Log) TimeSeries(windowSeconds int) TimeSeries {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ts := newTimeSeries(windowSeconds, l.labels)
	if windowSeconds <= 0 {
		return ts
	}

	nowMs := l.now().UnixMilli()
	startMs := nowMs - int64(windowSeconds)*1000

	for _, e := range l.events {
		observedMs := e.ObservedAt.UnixMilli()
		if observedMs < startMs {
			continue
		}
		secondsAgo := int(math.Floor(float64(nowMs-observedMs) / 1000))
		bin := windowSeconds - secondsAgo - 1
		if bin < 0 || bin >= windowSeconds {
			continue
		}
		if counts, ok := ts.Counts[e.Class]; ok {
			counts[bin]++
		}
	}
	return ts
}

// Clear drops all events and restarts the relative clock.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = make([]Event, 0, l.capacity)
	l.startTime = l.now()
}

// Events returns a copy of the retained events, oldest first.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// StartTime returns the time the log was created or last cleared.
func (l *Log) StartTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startTime
}

// Labels returns the label set used for time-series bins.
func (l *Log) Labels() []string {
	return slices.Clone(l.labels)
}

// Capacity returns the retention cap.
func (l *Log) Capacity() int {
	return l.capacity
}

// Mode returns the validation mode.
func (l *Log) Mode() Mode {
	return l.mode
}

// Snapshot is a consistent view of the aggregates at one instant.
type Snapshot struct {
	Total             int
	Counts            map[string]int
	AverageConfidence map[string]float64
	StartTime         time.Time
	TakenAt           time.Time
}

// Snapshot computes counts and averages under a single read lock.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range l.events {
		counts[e.Class]++
	}
	return Snapshot{
		Total:             len(l.events),
		Counts:            counts,
		AverageConfidence: averages(l.events),
		StartTime:         l.startTime,
		TakenAt:           l.now(),
	}
}
