package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"CYCLEUP_ADDR", "CYCLEUP_WEB_DIR", "CYCLEUP_SOURCE", "CYCLEUP_AUTOSTART",
	"CYCLEUP_CAMERA_ID", "CYCLEUP_FPS", "CYCLEUP_MOTION_THRESHOLD",
	"CYCLEUP_INFERENCE_URL", "CYCLEUP_INFERENCE_TIMEOUT", "CYCLEUP_STREAM_URL",
	"CYCLEUP_HISTORY_SIZE", "CYCLEUP_LABELS", "CYCLEUP_DETECTION_MODE",
	"CYCLEUP_REFRESH_INTERVAL", "CYCLEUP_LOG_LEVEL", "CYCLEUP_LOG_FORMAT",
	"CYCLEUP_DATA_DIR", "CYCLEUP_TRAY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Source.Kind != SourceCamera {
		t.Errorf("Source.Kind = %q, want camera", cfg.Source.Kind)
	}
	if cfg.Source.FPS != 10 {
		t.Errorf("FPS = %d, want 10", cfg.Source.FPS)
	}
	if cfg.Source.InferenceTimeout != 5*time.Second {
		t.Errorf("InferenceTimeout = %v, want 5s", cfg.Source.InferenceTimeout)
	}
	if cfg.Detection.Capacity != 1000 {
		t.Errorf("Capacity = %d, want 1000", cfg.Detection.Capacity)
	}
	if len(cfg.Detection.Labels) != 5 || cfg.Detection.Labels[0] != "glass" {
		t.Errorf("Labels = %v, want default label set", cfg.Detection.Labels)
	}
	if cfg.Detection.Mode != "permissive" {
		t.Errorf("Mode = %q, want permissive", cfg.Detection.Mode)
	}
	if cfg.Detection.RefreshInterval != time.Second {
		t.Errorf("RefreshInterval = %v, want 1s", cfg.Detection.RefreshInterval)
	}
	if cfg.Tray {
		t.Error("expected Tray=false by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CYCLEUP_ADDR", ":9090")
	t.Setenv("CYCLEUP_SOURCE", "Stream")
	t.Setenv("CYCLEUP_FPS", "15")
	t.Setenv("CYCLEUP_MOTION_THRESHOLD", "2.5")
	t.Setenv("CYCLEUP_LABELS", " can, bottle ,,box")
	t.Setenv("CYCLEUP_DETECTION_MODE", "strict")
	t.Setenv("CYCLEUP_REFRESH_INTERVAL", "250ms")
	t.Setenv("CYCLEUP_TRAY", "true")
	t.Setenv("CYCLEUP_DATA_DIR", "/tmp/cycleup-test")

	cfg := Load()

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Source.Kind != SourceStream {
		t.Errorf("Source.Kind = %q, want stream", cfg.Source.Kind)
	}
	if cfg.Source.FPS != 15 {
		t.Errorf("FPS = %d", cfg.Source.FPS)
	}
	if cfg.Source.MotionThreshold != 2.5 {
		t.Errorf("MotionThreshold = %f", cfg.Source.MotionThreshold)
	}
	want := []string{"can", "bottle", "box"}
	if len(cfg.Detection.Labels) != len(want) {
		t.Fatalf("Labels = %v, want %v", cfg.Detection.Labels, want)
	}
	for i := range want {
		if cfg.Detection.Labels[i] != want[i] {
			t.Errorf("Labels[%d] = %q, want %q", i, cfg.Detection.Labels[i], want[i])
		}
	}
	if cfg.Detection.Mode != "strict" {
		t.Errorf("Mode = %q", cfg.Detection.Mode)
	}
	if cfg.Detection.RefreshInterval != 250*time.Millisecond {
		t.Errorf("RefreshInterval = %v", cfg.Detection.RefreshInterval)
	}
	if !cfg.Tray {
		t.Error("expected Tray=true")
	}
	if got := cfg.DBPath(); got != filepath.Join("/tmp/cycleup-test", "cycleup.db") {
		t.Errorf("DBPath() = %q", got)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CYCLEUP_FPS", "fast")
	t.Setenv("CYCLEUP_MOTION_THRESHOLD", "lots")
	t.Setenv("CYCLEUP_TRAY", "maybe")
	t.Setenv("CYCLEUP_REFRESH_INTERVAL", "-1s")

	cfg := Load()

	if cfg.Source.FPS != 10 {
		t.Errorf("FPS = %d, want fallback 10", cfg.Source.FPS)
	}
	if cfg.Source.MotionThreshold != 1.0 {
		t.Errorf("MotionThreshold = %f, want fallback 1.0", cfg.Source.MotionThreshold)
	}
	if cfg.Tray {
		t.Error("expected Tray fallback false")
	}
	if cfg.Detection.RefreshInterval != time.Second {
		t.Errorf("RefreshInterval = %v, want fallback 1s", cfg.Detection.RefreshInterval)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("CYCLEUP_STREAM_URL")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "CYCLEUP_STREAM_URL=ws://detector:9000/ws\nCYCLEUP_ADDR=:7000\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// Already-set variables win over the file.
	t.Setenv("CYCLEUP_ADDR", ":8123")
	t.Cleanup(func() { os.Unsetenv("CYCLEUP_STREAM_URL") })

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg := Load()
	if cfg.Source.StreamURL != "ws://detector:9000/ws" {
		t.Errorf("StreamURL = %q", cfg.Source.StreamURL)
	}
	if cfg.Server.Addr != ":8123" {
		t.Errorf("Addr = %q, want :8123 from the environment", cfg.Server.Addr)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadDotEnv() on missing file error = %v, want nil", err)
	}
}
