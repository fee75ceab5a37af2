// Package config loads go-obbcam settings from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults mirror the behavior of the capture service out of the box.
const (
	DefaultAddr             = ":8080"
	DefaultStreamIntervalMS = 30
	DefaultCameraIndex      = 0
	DefaultJPEGQuality      = 80
	DefaultThrottleMS       = 15
	DefaultStopTimeoutMS    = 3000
	DefaultWarmupFrames     = 3
	DefaultDBPath           = "app.db"
	DefaultRelayIntervalMS  = 50
)

// Server contains HTTP boundary settings.
type Server struct {
	Addr             string `toml:"addr"`
	CORS             bool   `toml:"cors"`
	StreamIntervalMS int    `toml:"stream_interval_ms"`
}

// Camera contains capture worker settings.
type Camera struct {
	Index         int      `toml:"index"`
	JPEGQuality   int      `toml:"jpeg_quality"`
	ThrottleMS    int      `toml:"throttle_ms"`
	StopTimeoutMS int      `toml:"stop_timeout_ms"`
	WarmupFrames  int      `toml:"warmup_frames"`
	Resolutions   []string `toml:"resolutions"` // "WIDTHxHEIGHT", highest preference first
	Formats       []string `toml:"formats"`     // FOURCC codes, "" leaves the driver default
	LockDir       string   `toml:"lock_dir"`
	WatchDevices  bool     `toml:"watch_devices"`
}

// Store contains overlay persistence settings.
type Store struct {
	Path          string `toml:"path"`
	ReplayOnStart bool   `toml:"replay_on_start"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Relay contains WebRTC relay settings.
type Relay struct {
	Enabled         bool     `toml:"enabled"`
	ICEServers      []string `toml:"ice_servers"`
	FrameIntervalMS int      `toml:"frame_interval_ms"`
}

// Config is the full service configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Camera  Camera  `toml:"camera"`
	Store   Store   `toml:"store"`
	Logging Logging `toml:"logging"`
	Relay   Relay   `toml:"relay"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Addr:             DefaultAddr,
			CORS:             true,
			StreamIntervalMS: DefaultStreamIntervalMS,
		},
		Camera: Camera{
			Index:         DefaultCameraIndex,
			JPEGQuality:   DefaultJPEGQuality,
			ThrottleMS:    DefaultThrottleMS,
			StopTimeoutMS: DefaultStopTimeoutMS,
			WarmupFrames:  DefaultWarmupFrames,
			WatchDevices:  true,
		},
		Store: Store{
			Path: DefaultDBPath,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		Relay: Relay{
			Enabled:         true,
			FrameIntervalMS: DefaultRelayIntervalMS,
		},
	}
}

// Load parses the TOML file at path (when it exists), applies environment
// overrides and validates the result. It reports whether the file was found.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			decoder := toml.NewDecoder(file)
			if err := decoder.Decode(&cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
			exists = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, false, fmt.Errorf("open config: %w", err)
		}
	}

	cfg.applyEnv()

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, exists, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return &cfg, exists, nil
}

// DefaultPath returns ~/.config/obbcam/config.toml, or obbcam.toml when the
// home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "obbcam.toml"
	}
	return filepath.Join(home, ".config", "obbcam", "config.toml")
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("OBBCAM_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if idx := os.Getenv("OBBCAM_CAMERA_INDEX"); idx != "" {
		if v, err := strconv.Atoi(idx); err == nil {
			c.Camera.Index = v
		}
	}
	if db := os.Getenv("OBBCAM_DB"); db != "" {
		c.Store.Path = db
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if c.Server.StreamIntervalMS < 1 || c.Server.StreamIntervalMS > 10000 {
		errs = append(errs, "server.stream_interval_ms must be between 1 and 10000")
	}

	if c.Camera.Index < 0 {
		errs = append(errs, "camera.index must be >= 0")
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errs = append(errs, "camera.jpeg_quality must be between 1 and 100")
	}
	if c.Camera.ThrottleMS < 0 || c.Camera.ThrottleMS > 1000 {
		errs = append(errs, "camera.throttle_ms must be between 0 and 1000")
	}
	if c.Camera.StopTimeoutMS < 1 {
		errs = append(errs, "camera.stop_timeout_ms must be positive")
	}
	if c.Camera.WarmupFrames < 0 || c.Camera.WarmupFrames > 30 {
		errs = append(errs, "camera.warmup_frames must be between 0 and 30")
	}
	for _, r := range c.Camera.Resolutions {
		if _, _, err := ParseResolution(r); err != nil {
			errs = append(errs, fmt.Sprintf("camera.resolutions: %v", err))
		}
	}
	for _, f := range c.Camera.Formats {
		if f != "" && len(f) != 4 {
			errs = append(errs, fmt.Sprintf("camera.formats: %q is not a FOURCC code", f))
		}
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, "store.path must not be empty")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, "logging.format must be auto, text, or json")
	}

	if c.Relay.Enabled && (c.Relay.FrameIntervalMS < 1 || c.Relay.FrameIntervalMS > 10000) {
		errs = append(errs, "relay.frame_interval_ms must be between 1 and 10000")
	}

	return errs
}

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("resolution %q must look like 1280x720", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: bad width: %w", s, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: bad height: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be positive", s)
	}
	return w, h, nil
}

// StreamInterval returns the MJPEG poll interval.
func (s Server) StreamInterval() time.Duration {
	return time.Duration(s.StreamIntervalMS) * time.Millisecond
}

// Throttle returns the capture loop's per-iteration pause.
func (c Camera) Throttle() time.Duration {
	return time.Duration(c.ThrottleMS) * time.Millisecond
}

// StopTimeout returns the bounded join used by stop.
func (c Camera) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// FrameInterval returns the relay push interval.
func (r Relay) FrameInterval() time.Duration {
	return time.Duration(r.FrameIntervalMS) * time.Millisecond
}
