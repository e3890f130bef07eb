package capture

import (
	"errors"
	"testing"
)

func TestNewCamera(t *testing.T) {
	for _, deviceID := range []int{0, 1, 2} {
		cam := NewCamera(deviceID)
		if cam == nil {
			t.Fatalf("NewCamera(%d) returned nil", deviceID)
		}
		if got := cam.FPS(); got != DefaultFPS {
			t.Errorf("device %d: FPS() = %d, want %d", deviceID, got, DefaultFPS)
		}
		if cam.IsOpen() {
			t.Errorf("device %d: camera should not be open initially", deviceID)
		}
	}
}

func TestNewCamera_Options(t *testing.T) {
	tests := []struct {
		name       string
		opts       []CameraOption
		wantMirror bool
		wantWarmup int
	}{
		{"defaults", nil, true, DefaultWarmupFrames},
		{"no mirror", []CameraOption{WithMirror(false)}, false, DefaultWarmupFrames},
		{"no warmup", []CameraOption{WithWarmupFrames(0)}, true, 0},
		{"negative warmup ignored", []CameraOption{WithWarmupFrames(-3)}, true, DefaultWarmupFrames},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(0, tt.opts...).(*deviceCamera)
			if cam.mirror != tt.wantMirror {
				t.Errorf("mirror = %v, want %v", cam.mirror, tt.wantMirror)
			}
			if cam.warmup != tt.wantWarmup {
				t.Errorf("warmup = %d, want %d", cam.warmup, tt.wantWarmup)
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(0)

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{"set to 15", 15, 15},
		{"set to 1", 1, 1},
		{"zero keeps previous", 0, 1},
		{"negative keeps previous", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam.SetFPS(tt.fps)
			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
		})
	}
}

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera(0)

	_, err := cam.ReadFrame()
	if !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera(0)

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on unopened camera = %v, want nil", err)
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(0, WithWarmupFrames(2))
	if err := cam.Open(); err != nil {
		if !errors.Is(err, ErrCameraUnavailable) {
			t.Errorf("Open() error = %v, want ErrCameraUnavailable", err)
		}
		t.Skipf("skipping test - camera not available: %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Errorf("second Open() = %v, want nil", err)
	}

	if !cam.IsOpen() {
		t.Error("IsOpen() should return true after Open()")
	}

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() failed: %v", err)
	} else {
		if mat.Cols() != DefaultWidth || mat.Rows() != DefaultHeight {
			t.Logf("frame is %dx%d, camera may not support 640x480", mat.Cols(), mat.Rows())
		}
		mat.Close()
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should return false after Close()")
	}
}
