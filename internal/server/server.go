// Package server provides the HTTP server for the CycleUp backend.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/app"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/server/api"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/store"
)

// Version is reported by /api/health and /api/info.
const Version = "1.0.0"

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
	Logger    *slog.Logger
}

// Server represents the HTTP server for the CycleUp application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	hub     *Hub
	start   time.Time
	logger  *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "server")
	}
	s.setupRoutes()
	s.handler = cors(s.mux)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	var recognitions *api.RecognitionHandler
	if s.config.Store != nil {
		var observe func(store.RecognitionType)
		if s.config.App != nil {
			observe = s.config.App.ObserveRecognition
		}
		recognitions = api.NewRecognitionHandler(s.config.Store, observe)
		s.mux.Handle("/api/mediapipe/", recognitions)
	}

	if a := s.config.App; a != nil {
		s.mux.HandleFunc("/api/info", s.handleInfo)
		s.mux.HandleFunc("/api/state", s.handleState)
		s.mux.HandleFunc("/api/start-detection", s.handleStartDetection)
		s.mux.HandleFunc("/api/stop-detection", s.handleStopDetection)

		s.mux.Handle("/api/analytics/", api.NewAnalyticsHandler(a.Log(), a.Reset))
		s.mux.Handle("/api/detections", api.NewDetectionsHandler(a, a.Log()))

		s.hub = NewHub(a.State(), a.Metrics(), recognitions, s.logger)
		s.mux.Handle("/api/detections/ws", s.hub)

		s.mux.Handle("/api/stream", NewStreamHandler(a))
		s.mux.Handle("/metrics", a.Metrics().Handler())
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// cors allows the dashboard, served from another origin, to call the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close disconnects WebSocket clients.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type infoResponse struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	DetectionRunning bool     `json:"detection_running"`
	Source           string   `json:"source"`
	Classes          []string `json:"classes"`
	Mode             string   `json:"mode"`
	Capacity         int      `json:"capacity"`
	Detector         string   `json:"detector_status"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.start).Round(time.Second).String(),
	})
}

// healthChecker is implemented by detectors that can check their backend.
type healthChecker interface {
	Health(ctx context.Context) error
}

// handleInfo handles GET requests to /api/info.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	a := s.config.App
	detectorStatus := "not configured"
	if d := a.Detector(); d != nil {
		detectorStatus = "available"
		if hc, ok := d.(healthChecker); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := hc.Health(ctx); err != nil {
				detectorStatus = "unreachable"
			}
		}
	}

	api.WriteJSON(w, http.StatusOK, infoResponse{
		Status:           "ok",
		Version:          Version,
		DetectionRunning: a.IsRunning(),
		Source:           a.Source(),
		Classes:          a.Log().Labels(),
		Mode:             a.Log().Mode().String(),
		Capacity:         a.Log().Capacity(),
		Detector:         detectorStatus,
	})
}

// handleState handles GET requests to /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	api.WriteJSON(w, http.StatusOK, s.config.App.State().State())
}

// handleStartDetection handles POST requests to /api/start-detection.
func (s *Server) handleStartDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	started, err := s.config.App.Start()
	if err != nil {
		if errors.Is(err, app.ErrNoSource) {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start detection", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Failed to start detection")
		return
	}

	if !started {
		api.WriteJSON(w, http.StatusOK, statusResponse{Status: "Detection already running"})
		return
	}
	api.WriteJSON(w, http.StatusOK, statusResponse{Status: "Detection started"})
}

// handleStopDetection handles POST requests to /api/stop-detection.
func (s *Server) handleStopDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !s.config.App.Stop() {
		api.WriteJSON(w, http.StatusOK, statusResponse{Status: "Detection not running"})
		return
	}
	api.WriteJSON(w, http.StatusOK, statusResponse{Status: "Detection stopped"})
}
