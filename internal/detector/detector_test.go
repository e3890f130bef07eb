package detector

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

func TestResult_UnmarshalJSON(t *testing.T) {
	input := `{"class":"plastic","confidence":0.78,"x":10,"y":20,"width":30,"height":40}`

	var r Result
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if r.Detection.Class != "plastic" || r.Detection.Confidence != 0.78 {
		t.Errorf("Detection = %+v", r.Detection)
	}
	if want := image.Rect(10, 20, 40, 60); r.Box != want {
		t.Errorf("Box = %v, want %v", r.Box, want)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	var back Result
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal(Marshal) error = %v", err)
	}
	if back != r {
		t.Errorf("round trip = %+v, want %+v", back, r)
	}
}

func TestResult_MissingFields(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(`{"x":1}`), &r); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if r.Detection.Class != detection.LabelUndefined {
		t.Errorf("Class = %q, want undefined", r.Detection.Class)
	}
	if !math.IsNaN(r.Detection.Confidence) {
		t.Errorf("Confidence = %f, want NaN", r.Detection.Confidence)
	}
	if !r.Box.Empty() {
		t.Errorf("Box = %v, want empty", r.Box)
	}
}

func TestRaws(t *testing.T) {
	raws := Raws(SortingBinResults())
	if len(raws) != 4 {
		t.Fatalf("len(raws) = %d, want 4", len(raws))
	}
	if raws[0].Class != detection.LabelGlass {
		t.Errorf("raws[0].Class = %q, want glass", raws[0].Class)
	}
}

func TestHTTPDetector_DetectImage(t *testing.T) {
	var gotImage []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotImage, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"detections":[
			{"class":"glass","confidence":0.9,"x":1,"y":2,"width":3,"height":4},
			{"class":"metal","confidence":0.4}
		]}`)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/predict", time.Second)
	defer d.Close()

	results, err := d.DetectImage(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("DetectImage() error = %v", err)
	}
	if string(gotImage) != "jpeg-bytes" {
		t.Errorf("server received %q, want jpeg-bytes", gotImage)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Detection.Class != "glass" || results[1].Detection.Class != "metal" {
		t.Errorf("results = %+v", results)
	}
}

func TestHTTPDetector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "not json")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			d := NewHTTPDetector(srv.URL, time.Second)
			if _, err := d.DetectImage(context.Background(), []byte("x")); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPDetector_EmptyDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	results, err := NewHTTPDetector(srv.URL, time.Second).DetectImage(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("DetectImage() error = %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %v, want empty non-nil", results)
	}
}

func TestHTTPDetector_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict/health" {
			http.NotFound(w, r)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/predict", time.Second)
	if err := d.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	healthy.Store(false)
	if err := d.Health(context.Background()); err == nil {
		t.Error("expected error from unhealthy service")
	}
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()
	m.SetResults(SortingBinResults())

	results, err := m.Detect(context.Background(), nil)
	if err != nil || len(results) != 4 {
		t.Fatalf("Detect() = %d results, %v", len(results), err)
	}

	wantErr := errors.New("inference down")
	m.SetError(wantErr)
	if _, err := m.Detect(context.Background(), nil); !errors.Is(err, wantErr) {
		t.Errorf("Detect() error = %v, want %v", err, wantErr)
	}
	if m.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", m.Calls())
	}

	m.Close()
	if !m.Closed() {
		t.Error("Closed() should be true after Close")
	}
}

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOK  bool
		wantN   int
		wantErr bool
	}{
		{"bare", `{"detections":[{"class":"glass","confidence":0.9}]}`, true, 1, false},
		{"with frame", `{"frame":"aGVsbG8=","detections":[{"class":"glass","confidence":0.9},{"class":"paper","confidence":0.5}]}`, true, 2, false},
		{"envelope", `{"event":"detection_update","data":{"detections":[{"class":"metal","confidence":0.3}]}}`, true, 1, false},
		{"empty batch", `{"detections":[]}`, true, 0, false},
		{"other event", `{"event":"mediapipe_response","data":{"success":true}}`, false, 0, false},
		{"no detections", `{"status":"ok"}`, false, 0, false},
		{"malformed", `{"detections":`, false, 0, true},
		{"detections not a list", `{"detections":"glass"}`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, ok, err := ParseUpdate([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUpdate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if len(results) != tt.wantN {
				t.Errorf("len(results) = %d, want %d", len(results), tt.wantN)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Next(); got != 100*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want 100ms", got)
	}
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	if b.Initial != 500*time.Millisecond || b.Max != 30*time.Second || b.Factor != 2 {
		t.Errorf("DefaultBackoff() = %+v", b)
	}
}

var testUpgrader = websocket.Upgrader{}

func TestStreamClient_ReceivesAndReconnects(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		connections++
		mu.Unlock()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"detections":[{"class":"glass","confidence":0.9}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"detection_update","data":{"detections":[{"class":"metal","confidence":0.5},{"class":"paper","confidence":0.6}]}}`))
		// Dropping the connection forces a reconnect.
	}))
	defer srv.Close()

	client := NewStreamClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	client.SetBackoff(Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 2})

	batches := make(chan []Result, 16)
	client.OnBatch(func(r []Result) { batches <- r })

	var stateMu sync.Mutex
	var states []bool
	client.OnState(func(connected bool) {
		stateMu.Lock()
		states = append(states, connected)
		stateMu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	// Two batches per connection; wait for two connections' worth.
	total := 0
	timeout := time.After(5 * time.Second)
	for got := 0; got < 4; got++ {
		select {
		case b := <-batches:
			total += len(b)
		case <-timeout:
			t.Fatalf("timed out after %d batches", got)
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if total != 6 {
		t.Errorf("received %d detections, want 6", total)
	}

	mu.Lock()
	if connections < 2 {
		t.Errorf("connections = %d, want >= 2", connections)
	}
	mu.Unlock()

	stateMu.Lock()
	defer stateMu.Unlock()
	if len(states) < 2 || !states[0] || states[1] {
		t.Errorf("states = %v, want connect then disconnect", states)
	}
}

func TestStreamClient_RetriesUnreachable(t *testing.T) {
	// Reserve a port and close it so dialing fails.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	client := NewStreamClient(url)
	client.SetBackoff(Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Factor: 2})

	attempts := make(chan time.Duration, 32)
	client.OnReconnect(func(attempt int, delay time.Duration) {
		select {
		case attempts <- delay:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go client.Run(ctx)

	var delays []time.Duration
	for len(delays) < 4 {
		select {
		case d := <-attempts:
			delays = append(delays, d)
		case <-ctx.Done():
			t.Fatalf("only %d reconnect attempts observed", len(delays))
		}
	}
	cancel()

	want := []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}
