package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/floegence/brushport/internal/tipasset"
)

// Config is the on-disk configuration for brushport. Every field is optional.
type Config struct {
	// ShapeSize is the side of the square Shape.png canvas in pixels.
	ShapeSize int `json:"shape_size,omitempty"`
	// GrainSize is the side of the square Grain.png canvas in pixels.
	GrainSize     int `json:"grain_size,omitempty"`
	PreviewWidth  int `json:"preview_width,omitempty"`
	PreviewHeight int `json:"preview_height,omitempty"`

	// Workers bounds concurrent tip processing. 0 picks the physical core count.
	Workers int `json:"workers,omitempty"`

	// Overwrite replaces an existing output file instead of failing.
	Overwrite bool `json:"overwrite,omitempty"`

	// MappingTable is a YAML table replacing the built-in one.
	MappingTable string `json:"mapping_table,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`

	// StateDir holds the conversion history. Defaults to the config file's directory.
	StateDir string `json:"state_dir,omitempty"`
	// DisableHistory turns off the conversion history.
	DisableHistory bool `json:"disable_history,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ShapeSize:     tipasset.DefaultShapeSize,
		GrainSize:     tipasset.DefaultGrainSize,
		PreviewWidth:  tipasset.DefaultPreviewWidth,
		PreviewHeight: tipasset.DefaultPreviewHeight,
		LogLevel:      "info",
	}
}

const maxCanvas = 8192

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	sizes := []struct {
		name string
		v    int
	}{
		{"shape_size", c.ShapeSize},
		{"grain_size", c.GrainSize},
		{"preview_width", c.PreviewWidth},
		{"preview_height", c.PreviewHeight},
	}
	for _, s := range sizes {
		if s.v < 0 || s.v > maxCanvas {
			return fmt.Errorf("%s must be within [0, %d]", s.name, maxCanvas)
		}
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format: %s", c.LogFormat)
	}
	return nil
}

// Normalize returns the tip asset options described by c.
func (c *Config) Normalize() tipasset.Options {
	return tipasset.Options{
		ShapeSize:     c.ShapeSize,
		GrainSize:     c.GrainSize,
		PreviewWidth:  c.PreviewWidth,
		PreviewHeight: c.PreviewHeight,
	}
}

// DefaultStateDir returns the default state directory:
//
//	~/.brushport
func DefaultStateDir() string {
	return filepath.Dir(DefaultConfigPath())
}

// DefaultConfigPath returns the default config path:
//
//	~/.brushport/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "brushport.config.json"
	}
	return filepath.Join(home, ".brushport", "config.json")
}

// Load reads path over the defaults. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && filepath.Clean(path) == filepath.Clean(DefaultConfigPath()) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NewLogger builds the process logger writing to w.
func NewLogger(w io.Writer, format string, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
	return slog.New(h), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
