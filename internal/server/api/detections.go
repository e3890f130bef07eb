package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// MaxIngestBytes bounds the body of POST /api/detections.
const MaxIngestBytes = 1 << 20

// Ingester accepts detection batches and reports how many records were kept.
type Ingester interface {
	Ingest(raws []detection.Raw) int
}

// DetectionsHandler accepts detection batches pushed by an external detector.
type DetectionsHandler struct {
	ingester Ingester
	log      *detection.Log
}

// NewDetectionsHandler creates a handler forwarding batches to ingester.
// log is only read to report the retained total.
func NewDetectionsHandler(ingester Ingester, log *detection.Log) *DetectionsHandler {
	return &DetectionsHandler{ingester: ingester, log: log}
}

type ingestRequest struct {
	Detections []detection.Raw `json:"detections"`
}

type ingestResponse struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
	Retained int `json:"retained"`
}

// ServeHTTP handles POST /api/detections. The body is either
// {"detections":[...]} or a bare array of detections.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxIngestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	raws, err := decodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accepted := h.ingester.Ingest(raws)
	writeJSON(w, http.StatusOK, ingestResponse{
		Received: len(raws),
		Accepted: accepted,
		Retained: h.log.Len(),
	})
}

func decodeBatch(body []byte) ([]detection.Raw, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var raws []detection.Raw
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return req.Detections, nil
}
