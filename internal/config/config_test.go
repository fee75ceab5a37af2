package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obbcam.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config should be valid, got %v", errs)
	}
	if cfg.Camera.JPEGQuality != 80 {
		t.Errorf("JPEGQuality = %d, want 80", cfg.Camera.JPEGQuality)
	}
	if cfg.Camera.Throttle() != 15*time.Millisecond {
		t.Errorf("Throttle = %v, want 15ms", cfg.Camera.Throttle())
	}
	if cfg.Camera.StopTimeout() != 3*time.Second {
		t.Errorf("StopTimeout = %v, want 3s", cfg.Camera.StopTimeout())
	}
	if cfg.Server.StreamInterval() != 30*time.Millisecond {
		t.Errorf("StreamInterval = %v, want 30ms", cfg.Server.StreamInterval())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OBBCAM_ADDR", "")
	cfg, exists, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Error("exists should be false for a missing file")
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	t.Setenv("OBBCAM_ADDR", "")
	t.Setenv("OBBCAM_CAMERA_INDEX", "")
	path := writeConfig(t, `
[server]
addr = ":9090"

[camera]
index = 2
jpeg_quality = 70
resolutions = ["1920x1080", "1280x720"]
formats = ["MJPG", ""]

[store]
path = "/tmp/overlays.db"
replay_on_start = true
`)

	cfg, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Error("exists should be true")
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Camera.Index != 2 || cfg.Camera.JPEGQuality != 70 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if len(cfg.Camera.Resolutions) != 2 || len(cfg.Camera.Formats) != 2 {
		t.Errorf("lists not parsed: %+v", cfg.Camera)
	}
	if !cfg.Store.ReplayOnStart {
		t.Error("ReplayOnStart should be true")
	}
	// Untouched sections keep their defaults
	if cfg.Camera.ThrottleMS != DefaultThrottleMS {
		t.Errorf("ThrottleMS = %d, want default", cfg.Camera.ThrottleMS)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OBBCAM_ADDR", ":7000")
	t.Setenv("OBBCAM_CAMERA_INDEX", "3")
	t.Setenv("OBBCAM_DB", "/var/lib/obbcam.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Camera.Index != 3 {
		t.Errorf("Index = %d", cfg.Camera.Index)
	}
	if cfg.Store.Path != "/var/lib/obbcam.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("OBBCAM_ADDR", "")
	path := writeConfig(t, `
[camera]
jpeg_quality = 0
resolutions = ["wide"]
formats = ["MJPEG"]
`)
	_, _, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"jpeg_quality", "resolutions", "formats"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoad_RejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, "[camera\nindex = ")
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"1280x720", 1280, 720, false},
		{" 3840X2160 ", 3840, 2160, false},
		{"1280", 0, 0, true},
		{"ax720", 0, 0, true},
		{"0x720", 0, 0, true},
	}
	for _, tt := range tests {
		w, h, err := ParseResolution(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResolution(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if w != tt.w || h != tt.h {
			t.Errorf("ParseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}
