package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/floegence/brushport/internal/tipasset"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"shape_size": 512, "workers": 2, "log_format": "text"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.ShapeSize = 512
	want.Workers = 2
	want.LogFormat = "text"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}

	opts := cfg.Normalize()
	if opts.ShapeSize != 512 || opts.GrainSize != tipasset.DefaultGrainSize || opts.PreviewWidth != tipasset.DefaultPreviewWidth {
		t.Fatalf("Normalize=%+v", opts)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for a missing non-default config")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"shape_size": -1}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "shape_size") {
		t.Fatalf("err=%v, want shape_size validation error", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte(`{`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(garbage); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero sizes pick defaults", func(c *Config) { c.ShapeSize, c.PreviewHeight = 0, 0 }, true},
		{"oversized canvas", func(c *Config) { c.GrainSize = maxCanvas + 1 }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, false},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); (err == nil) != tc.ok {
			t.Fatalf("%s: Validate err=%v, want ok=%v", tc.name, err, tc.ok)
		}
	}

	var nilCfg *Config
	if err := nilCfg.Validate(); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Overwrite = true
	cfg.MappingTable = "/etc/brushport/table.yaml"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}

	bad := Default()
	bad.Workers = -3
	if err := Save(path, bad); err == nil {
		t.Fatalf("Save must validate")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := NewLogger(&buf, "json", "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hidden")
	log.Warn("tip dropped", "tip", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rec["msg"] != "tip dropped" || rec["tip"] != float64(2) {
		t.Fatalf("record=%v", rec)
	}

	buf.Reset()
	text, err := NewLogger(&buf, "text", "debug")
	if err != nil {
		t.Fatalf("NewLogger text: %v", err)
	}
	text.Debug("brush read", "tips", 1)
	if !strings.Contains(buf.String(), "msg=\"brush read\"") {
		t.Fatalf("text output=%q", buf.String())
	}

	if _, err := NewLogger(&buf, "xml", "info"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := NewLogger(&buf, "json", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
