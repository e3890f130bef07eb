package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// logIngester appends straight to a log.
type logIngester struct {
	log     *detection.Log
	batches int
}

func (i *logIngester) Ingest(raws []detection.Raw) int {
	i.batches++
	return len(i.log.AppendAdmitted(raws))
}

func postJSON(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDetectionsHandler_Ingest(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantAccepted int
	}{
		{"envelope", `{"detections":[{"class":"glass","confidence":0.9},{"class":"metal","confidence":0.4}]}`, 2},
		{"bare array", ` [{"class":"paper","confidence":0.6}]`, 1},
		{"with boxes", `{"detections":[{"class":"plastic","confidence":0.8,"x":1,"y":2,"width":3,"height":4}]}`, 1},
		{"empty", `{"detections":[]}`, 0},
		{"no detections key", `{}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, _ := newTestLog()
			ing := &logIngester{log: log}
			handler := NewDetectionsHandler(ing, log)

			rec := postJSON(handler, "/api/detections", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
			}

			var response ingestResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Accepted != tt.wantAccepted || response.Retained != tt.wantAccepted {
				t.Errorf("response = %+v, want %d accepted and retained", response, tt.wantAccepted)
			}
			if log.Len() != tt.wantAccepted {
				t.Errorf("Len() = %d, want %d", log.Len(), tt.wantAccepted)
			}
		})
	}
}

func TestDetectionsHandler_StrictModeDrops(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 11, 9, 14, 0, 0, 0, time.UTC)}
	log := detection.NewLog(detection.WithClock(clock.Now), detection.WithMode(detection.ModeStrict))
	handler := NewDetectionsHandler(&logIngester{log: log}, log)

	rec := postJSON(handler, "/api/detections", `[{"class":"glass","confidence":7},{"class":"metal","confidence":0.4}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response ingestResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := ingestResponse{Received: 2, Accepted: 1, Retained: 1}
	if response != want {
		t.Errorf("response = %+v, want %+v", response, want)
	}
}

func TestDetectionsHandler_MissingFields(t *testing.T) {
	log, _ := newTestLog()
	handler := NewDetectionsHandler(&logIngester{log: log}, log)

	rec := postJSON(handler, "/api/detections", `{"detections":[{"confidence":0.5},{"class":"glass"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	events := log.Events()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Class != detection.LabelUndefined {
		t.Errorf("missing class stored as %q, want undefined", events[0].Class)
	}
	if !math.IsNaN(events[1].Confidence) {
		t.Errorf("missing confidence stored as %v, want NaN", events[1].Confidence)
	}
}

func TestDetectionsHandler_Errors(t *testing.T) {
	log, _ := newTestLog()
	ing := &logIngester{log: log}
	handler := NewDetectionsHandler(ing, log)

	t.Run("method not allowed", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/api/detections")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := postJSON(handler, "/api/detections", `{"detections":[`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
		var response errorResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Error == "" {
			t.Error("expected error message")
		}
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"detections":[` + strings.Repeat(`{"class":"glass","confidence":0.9},`, MaxIngestBytes/30) + `]}`
		rec := postJSON(handler, "/api/detections", body)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
		}
	})

	if ing.batches != 0 {
		t.Errorf("rejected requests ingested %d batches", ing.batches)
	}
}
