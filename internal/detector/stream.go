package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventDetectionUpdate is the event name carried by enveloped stream messages.
const EventDetectionUpdate = "detection_update"

// Backoff produces exponentially growing reconnect delays.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	current time.Duration
}

// DefaultBackoff returns 500ms doubling up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
}

// Next returns the delay to wait before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Initial
	}
	d := b.current

	next := time.Duration(float64(b.current) * b.Factor)
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	b.current = next
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Reset restarts the sequence at Initial.
func (b *Backoff) Reset() {
	b.current = 0
}

// StreamClient consumes detection updates pushed by the remote inference
// service over a WebSocket, reconnecting with exponential backoff.
type StreamClient struct {
	url     string
	dialer  *websocket.Dialer
	header  http.Header
	backoff Backoff
	logger  *slog.Logger

	mu        sync.Mutex
	onBatch   func([]Result)
	onState   func(connected bool)
	onAttempt func(attempt int, delay time.Duration)
}

// NewStreamClient creates a client for the given ws:// or wss:// URL.
func NewStreamClient(url string) *StreamClient {
	return &StreamClient{
		url:     url,
		dialer:  websocket.DefaultDialer,
		backoff: DefaultBackoff(),
		logger:  slog.Default().With("component", "stream"),
	}
}

// SetBackoff replaces the reconnect policy. Must be called before Run.
func (c *StreamClient) SetBackoff(b Backoff) {
	c.backoff = b
}

// OnBatch sets the callback receiving each decoded batch.
func (c *StreamClient) OnBatch(fn func([]Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBatch = fn
}

// OnState sets the callback notified on connect and disconnect.
func (c *StreamClient) OnState(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnReconnect sets the callback notified before each reconnect wait.
func (c *StreamClient) OnReconnect(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAttempt = fn
}

// Run connects and consumes messages until ctx is cancelled, which is the
// only way it returns. The returned error is ctx.Err().
func (c *StreamClient) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// A session that got connected resets the backoff.
			c.backoff.Reset()
			attempt = 0
		}

		attempt++
		delay := c.backoff.Next()
		c.logger.Warn("detection stream unavailable, retrying",
			"url", c.url, "attempt", attempt, "delay", delay, "error", err)
		c.notifyAttempt(attempt, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection. It returns nil if the connection was
// established and later dropped, or the dial error otherwise.
func (c *StreamClient) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	c.logger.Info("connected to detection stream", "url", c.url)
	c.notifyState(true)
	defer c.notifyState(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Info("detection stream closed", "error", err)
			return nil
		}

		results, ok, err := ParseUpdate(data)
		if err != nil {
			c.logger.Debug("ignoring malformed stream message", "error", err)
			continue
		}
		if ok {
			c.notifyBatch(results)
		}
	}
}

func (c *StreamClient) notifyBatch(results []Result) {
	c.mu.Lock()
	fn := c.onBatch
	c.mu.Unlock()
	if fn != nil {
		fn(results)
	}
}

func (c *StreamClient) notifyState(connected bool) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(connected)
	}
}

func (c *StreamClient) notifyAttempt(attempt int, delay time.Duration) {
	c.mu.Lock()
	fn := c.onAttempt
	c.mu.Unlock()
	if fn != nil {
		fn(attempt, delay)
	}
}

// ParseUpdate decodes a stream message. Both an envelope
// {"event":"detection_update","data":{"detections":[...]}} and a bare
// {"detections":[...]} are accepted. ok is false for other events.
func ParseUpdate(data []byte) (results []Result, ok bool, err error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("decode message: %w", err)
	}

	payload := data
	if env.Event != "" {
		if env.Event != EventDetectionUpdate {
			return nil, false, nil
		}
		payload = env.Data
	}

	var update struct {
		Detections *[]Result `json:"detections"`
	}
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, false, fmt.Errorf("decode detections: %w", err)
	}
	if update.Detections == nil {
		return nil, false, nil
	}
	return *update.Detections, true, nil
}
