package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/store"
)

// MaxRecognitionBytes bounds the body of POST /api/mediapipe/store.
const MaxRecognitionBytes = 1 << 20

// RecognitionHandler serves the MediaPipe recognition-log endpoints under
// /api/mediapipe/. Responses carry a "success" flag the dashboard checks.
type RecognitionHandler struct {
	store   *store.Store
	observe func(store.RecognitionType)
}

// NewRecognitionHandler creates a handler over s. observe, when non-nil, is
// called after each successful insert.
func NewRecognitionHandler(s *store.Store, observe func(store.RecognitionType)) *RecognitionHandler {
	return &RecognitionHandler{store: s, observe: observe}
}

// ServeHTTP routes /api/mediapipe/{store,data,db-check}.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/mediapipe")
	path = strings.Trim(path, "/")

	switch path {
	case "store":
		if r.Method != http.MethodPost {
			writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.create(w, r)
	case "data":
		if r.Method != http.MethodGet {
			writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.list(w, r)
	case "db-check":
		if r.Method != http.MethodGet {
			writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.check(w, r)
	default:
		writeFailure(w, http.StatusNotFound, "Not found")
	}
}

type createRecognitionRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type recognitionResponse struct {
	Success bool                `json:"success"`
	Data    []store.Recognition `json:"data"`
	Total   *int                `json:"total,omitempty"`
}

type checkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FailureResponse is the body of every unsuccessful recognition request.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, FailureResponse{Success: false, Error: message})
}

// create handles POST /api/mediapipe/store.
func (h *RecognitionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRecognitionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRecognitionBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeFailure(w, http.StatusBadRequest, "No data provided")
		return
	}

	status, body := h.Record(r.Context(), req.Type, req.Data)
	writeJSON(w, status, body)
}

// Record validates and stores one recognition log, calling observe on
// success. It returns the HTTP status and response body describing the
// outcome, so callers other than the HTTP route can relay the same reply.
func (h *RecognitionHandler) Record(ctx context.Context, recType string, data json.RawMessage) (int, any) {
	if recType == "" || len(data) == 0 || string(data) == "null" {
		return http.StatusBadRequest, FailureResponse{Error: "Missing required fields: type and data"}
	}

	t := store.RecognitionType(recType)
	rec, err := h.store.Recognitions().Create(ctx, t, data)
	if err != nil {
		if errors.Is(err, store.ErrInvalidType) || errors.Is(err, store.ErrInvalidData) {
			return http.StatusBadRequest, FailureResponse{Error: err.Error()}
		}
		return http.StatusInternalServerError, FailureResponse{Error: "Failed to store recognition data"}
	}

	if h.observe != nil {
		h.observe(t)
	}
	return http.StatusCreated, recognitionResponse{
		Success: true,
		Data:    []store.Recognition{*rec},
	}
}

// list handles GET /api/mediapipe/data?type=&limit=&offset=.
func (h *RecognitionHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recType := store.RecognitionType(q.Get("type"))

	limit, err := intParam(q.Get("limit"), store.DefaultListLimit)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	repo := h.store.Recognitions()
	recs, err := repo.List(r.Context(), recType, limit, offset)
	if err != nil {
		if errors.Is(err, store.ErrInvalidType) {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFailure(w, http.StatusInternalServerError, "Failed to retrieve recognition data")
		return
	}

	total, err := repo.Count(r.Context(), recType)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "Failed to count recognition data")
		return
	}

	writeJSON(w, http.StatusOK, recognitionResponse{
		Success: true,
		Data:    recs,
		Total:   &total,
	})
}

// check handles GET /api/mediapipe/db-check.
func (h *RecognitionHandler) check(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Check(r.Context()); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{
		Success: true,
		Message: "recognition_logs table exists",
	})
}

func intParam(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
