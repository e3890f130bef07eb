// Package config loads CycleUp settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// Detection sources.
const (
	SourceCamera = "camera"
	SourceStream = "stream"
	SourceNone   = "none"
)

// Config holds all CycleUp configuration.
type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Detection DetectionConfig
	Log       LogConfig
	DataDir   string
	Tray      bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	StaticDir string
}

// SourceConfig selects and configures where detections come from.
type SourceConfig struct {
	Kind             string // "camera", "stream" or "none"
	AutoStart        bool
	CameraID         int
	FPS              int
	MotionThreshold  float64 // percent of changed pixels; 0 disables gating
	InferenceURL     string
	InferenceTimeout time.Duration
	StreamURL        string
}

// DetectionConfig configures the aggregation store.
type DetectionConfig struct {
	Capacity        int
	Labels          []string
	Mode            string // "permissive" or "strict"
	RefreshInterval time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:      getenv("CYCLEUP_ADDR", ":8000"),
			StaticDir: os.Getenv("CYCLEUP_WEB_DIR"),
		},
		Source: SourceConfig{
			Kind:             strings.ToLower(getenv("CYCLEUP_SOURCE", SourceCamera)),
			AutoStart:        getenvBool("CYCLEUP_AUTOSTART", false),
			CameraID:         getenvInt("CYCLEUP_CAMERA_ID", 0),
			FPS:              getenvInt("CYCLEUP_FPS", 10),
			MotionThreshold:  getenvFloat("CYCLEUP_MOTION_THRESHOLD", 1.0),
			InferenceURL:     getenv("CYCLEUP_INFERENCE_URL", "http://localhost:5000/predict"),
			InferenceTimeout: getenvDuration("CYCLEUP_INFERENCE_TIMEOUT", 5*time.Second),
			StreamURL:        getenv("CYCLEUP_STREAM_URL", "ws://localhost:5000/ws"),
		},
		Detection: DetectionConfig{
			Capacity:        getenvInt("CYCLEUP_HISTORY_SIZE", detection.DefaultCapacity),
			Labels:          getenvList("CYCLEUP_LABELS", detection.DefaultLabels()),
			Mode:            getenv("CYCLEUP_DETECTION_MODE", detection.ModePermissive.String()),
			RefreshInterval: getenvDuration("CYCLEUP_REFRESH_INTERVAL", time.Second),
		},
		Log: LogConfig{
			Level:  getenv("CYCLEUP_LOG_LEVEL", "info"),
			Format: getenv("CYCLEUP_LOG_FORMAT", "text"),
		},
		DataDir: getenv("CYCLEUP_DATA_DIR", defaultDataDir()),
		Tray:    getenvBool("CYCLEUP_TRAY", false),
	}
}

// DBPath returns the SQLite database location inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "cycleup.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cycleup"
	}
	return filepath.Join(home, ".cycleup")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getenvList splits a comma-separated value, dropping empty entries.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
