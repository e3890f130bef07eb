package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// Time-series window bounds in seconds.
const (
	DefaultWindow = 60
	MaxWindow     = 3600
)

// AnalyticsHandler serves the aggregation queries under /api/analytics/.
type AnalyticsHandler struct {
	log   *detection.Log
	reset func()
}

// NewAnalyticsHandler creates a handler over log. reset is invoked by
// POST /api/analytics/reset; when nil the log is cleared directly.
func NewAnalyticsHandler(log *detection.Log, reset func()) *AnalyticsHandler {
	if reset == nil {
		reset = log.Clear
	}
	return &AnalyticsHandler{log: log, reset: reset}
}

// ServeHTTP routes /api/analytics/{counts,confidence,timeseries,summary,reset}.
func (h *AnalyticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/analytics")
	path = strings.Trim(path, "/")

	if path == "reset" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleReset(w, r)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch path {
	case "counts":
		writeJSON(w, http.StatusOK, countsResponse{Counts: h.log.CountsByClass()})
	case "confidence":
		writeJSON(w, http.StatusOK, confidenceResponse{
			AverageConfidence: nullableAverages(h.log.AverageConfidenceByClass()),
		})
	case "timeseries":
		h.handleTimeSeries(w, r)
	case "summary":
		h.handleSummary(w, r)
	default:
		writeError(w, http.StatusNotFound, "Unknown analytics query")
	}
}

type countsResponse struct {
	Counts map[string]int `json:"counts"`
}

type confidenceResponse struct {
	AverageConfidence map[string]*float64 `json:"averageConfidence"`
}

type summaryResponse struct {
	Total             int                 `json:"total"`
	Counts            map[string]int      `json:"counts"`
	AverageConfidence map[string]*float64 `json:"averageConfidence"`
	StartTime         string              `json:"startTime"`
	UptimeSeconds     float64             `json:"uptimeSeconds"`
	Capacity          int                 `json:"capacity"`
	Mode              string              `json:"mode"`
}

type resetResponse struct {
	Status    string `json:"status"`
	StartTime string `json:"startTime"`
}

// nullableAverages maps NaN averages, produced by records without a
// numeric confidence, to JSON null.
func nullableAverages(avg map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(avg))
	for class, v := range avg {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[class] = nil
			continue
		}
		out[class] = &v
	}
	return out
}

// handleTimeSeries handles GET /api/analytics/timeseries?window=N.
func (h *AnalyticsHandler) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	window := DefaultWindow
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxWindow {
			writeError(w, http.StatusBadRequest, "window must be an integer between 1 and "+strconv.Itoa(MaxWindow))
			return
		}
		window = n
	}

	writeJSON(w, http.StatusOK, h.log.TimeSeries(window))
}

// handleSummary handles GET /api/analytics/summary.
func (h *AnalyticsHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap := h.log.Snapshot()
	writeJSON(w, http.StatusOK, summaryResponse{
		Total:             snap.Total,
		Counts:            snap.Counts,
		AverageConfidence: nullableAverages(snap.AverageConfidence),
		StartTime:         snap.StartTime.Format(time.RFC3339Nano),
		UptimeSeconds:     snap.TakenAt.Sub(snap.StartTime).Seconds(),
		Capacity:          h.log.Capacity(),
		Mode:              h.log.Mode().String(),
	})
}

// handleReset handles POST /api/analytics/reset.
func (h *AnalyticsHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.reset()
	writeJSON(w, http.StatusOK, resetResponse{
		Status:    "Statistics reset",
		StartTime: h.log.StartTime().Format(time.RFC3339Nano),
	})
}
