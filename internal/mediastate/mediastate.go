// Package mediastate shares detection state between the pipeline and its
// consumers through explicit topic subscriptions.
package mediastate

import (
	"slices"
	"sync"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// Topic names a stream of state updates.
type Topic string

// Known topics.
const (
	TopicDetectionStats   Topic = "detectionStats"
	TopicActivityInsights Topic = "activityInsights"
	TopicCameraStatus     Topic = "cameraStatus"
	TopicDetections       Topic = "detections"
	TopicReset            Topic = "reset"
)

// Handler receives the payload published on a topic.
type Handler func(payload any)

// DetectionStats summarises recognition activity per second.
type DetectionStats struct {
	Face    int     `json:"face"`
	Pose    int     `json:"pose"`
	Gesture int     `json:"gesture"`
	FPS     float64 `json:"fps"`
}

// DetectionBatch is the payload of TopicDetections.
type DetectionBatch struct {
	Detections []detection.Raw `json:"detections"`
	Timestamp  int64           `json:"timestamp"`
}

// Insight is one line of the activity feed.
type Insight struct {
	Time string `json:"time"`
	Text string `json:"text"`
}

// State is the latest value of every stateful topic.
type State struct {
	DetectionStats   DetectionStats `json:"detectionStats"`
	ActivityInsights []Insight      `json:"activityInsights"`
	CameraRunning    bool           `json:"cameraRunning"`
}

type subscription struct {
	id      uint64
	handler Handler
}

// Service holds the current state and the subscribers of each topic.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Service struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
	state  State
}

// New creates a Service with zero state.
func New() *Service {
	return &Service{
		subs:  make(map[Topic][]subscription),
		state: State{ActivityInsights: []Insight{}},
	}
}

// Subscribe registers handler for topic and returns a function that removes
// the registration. Calling the returned function more than once is a no-op.
func (s *Service) Subscribe(topic Topic, handler Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[topic] = append(s.subs[topic], subscription{id: id, handler: handler})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs[topic] = slices.DeleteFunc(s.subs[topic], func(sub subscription) bool {
				return sub.id == id
			})
		})
	}
}

// Publish delivers payload to the handlers registered on topic at call time.
func (s *Service) Publish(topic Topic, payload any) {
	s.mu.RLock()
	subs := slices.Clone(s.subs[topic])
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// Subscribers returns the number of handlers registered on topic.
func (s *Service) Subscribers(topic Topic) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[topic])
}

// UpdateDetectionStats stores stats and notifies TopicDetectionStats.
func (s *Service) UpdateDetectionStats(stats DetectionStats) {
	s.mu.Lock()
	s.state.DetectionStats = stats
	s.mu.Unlock()
	s.Publish(TopicDetectionStats, stats)
}

// UpdateActivityInsights stores a copy of insights and notifies TopicActivityInsights.
func (s *Service) UpdateActivityInsights(insights []Insight) {
	cp := slices.Clone(insights)
	if cp == nil {
		cp = []Insight{}
	}
	s.mu.Lock()
	s.state.ActivityInsights = cp
	s.mu.Unlock()
	s.Publish(TopicActivityInsights, slices.Clone(cp))
}

// UpdateCameraStatus stores the camera state and notifies TopicCameraStatus.
func (s *Service) UpdateCameraStatus(running bool) {
	s.mu.Lock()
	s.state.CameraRunning = running
	s.mu.Unlock()
	s.Publish(TopicCameraStatus, running)
}

// PublishDetections notifies TopicDetections of a freshly appended batch.
func (s *Service) PublishDetections(batch DetectionBatch) {
	s.Publish(TopicDetections, batch)
}

// PublishReset notifies TopicReset that the detection history was cleared.
func (s *Service) PublishReset() {
	s.Publish(TopicReset, struct{}{})
}

// State returns a copy of the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.ActivityInsights = slices.Clone(s.state.ActivityInsights)
	return st
}
