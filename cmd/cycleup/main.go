package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/app"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/capture"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/config"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detector"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/logging"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/mediastate"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/metrics"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/server"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/store"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/tray"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cycleup exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Load()
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	slog.Info("CycleUp - trash detection backend", "version", server.Version)

	// Initialize the store
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	mode, err := detection.ParseMode(cfg.Detection.Mode)
	if err != nil {
		return err
	}
	dlog := detection.NewLog(
		detection.WithCapacity(cfg.Detection.Capacity),
		detection.WithLabels(cfg.Detection.Labels),
		detection.WithMode(mode),
	)

	appCfg := app.Config{
		Log:             dlog,
		State:           mediastate.New(),
		Metrics:         metrics.New(dlog.Len),
		Source:          cfg.Source.Kind,
		FPS:             cfg.Source.FPS,
		MotionThreshold: cfg.Source.MotionThreshold,
		RefreshInterval: cfg.Detection.RefreshInterval,
	}
	switch cfg.Source.Kind {
	case config.SourceCamera:
		appCfg.Camera = capture.NewCamera(cfg.Source.CameraID)
		appCfg.Detector = detector.NewHTTPDetector(cfg.Source.InferenceURL, cfg.Source.InferenceTimeout)
	case config.SourceStream:
		appCfg.Stream = detector.NewStreamClient(cfg.Source.StreamURL)
	}
	a := app.New(appCfg)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.Run(ctx)

	if cfg.Source.AutoStart {
		if _, err := a.Start(); err != nil {
			slog.Warn("auto-start detection", "error", err)
		}
	}

	// Find web directory
	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		slog.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       a,
		Store:     st,
	})

	if !cfg.Tray {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	}

	// The tray loop must own the main goroutine.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	t := newTray(a, dashboardURL(cfg.Server.Addr), stop)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	stop()
	return <-errCh
}

// newTray wires the tray menu to the app and keeps it in sync with state updates.
func newTray(a *app.App, dashboard string, quit func()) *tray.Tray {
	t := tray.New()
	t.OnToggle(func(running bool) {
		if running {
			if _, err := a.Start(); err != nil {
				slog.Error("start detection", "error", err)
			}
			return
		}
		a.Stop()
	})
	t.OnReset(a.Reset)
	t.OnOpenDashboard(func() {
		if err := tray.OpenBrowser(dashboard); err != nil {
			slog.Error("open dashboard", "error", err)
		}
	})
	t.OnQuit(quit)

	state := a.State()
	state.Subscribe(mediastate.TopicCameraStatus, func(payload any) {
		if running, ok := payload.(bool); ok {
			t.SetRunning(running)
		}
	})
	state.Subscribe(mediastate.TopicDetections, func(payload any) {
		batch, ok := payload.(mediastate.DetectionBatch)
		if !ok || len(batch.Detections) == 0 {
			return
		}
		t.SetLastDetection(batch.Detections[len(batch.Detections)-1])
		t.SetTotal(a.Log().Len())
	})
	state.Subscribe(mediastate.TopicReset, func(any) {
		t.ClearLastDetection()
		t.SetTotal(0)
	})
	return t
}

// dashboardURL turns a listen address into a browsable local URL.
func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}
	return ""
}
