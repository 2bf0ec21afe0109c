package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlverezYari/facecam/internal/detect"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if got := Default().DetectConfig(); got != detect.DefaultConfig() {
		t.Errorf("DetectConfig() = %+v, want %+v", got, detect.DefaultConfig())
	}
	if d := Default().Detection; d.Backend != "pigo" || d.CascadePath != "" {
		t.Errorf("detection = %s %q, want pigo with the embedded cascade", d.Backend, d.CascadePath)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.StreamPort() != 8081 {
		t.Errorf("ports = %d/%d", cfg.Server.Port, cfg.StreamPort())
	}
}

func TestLoadFromOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server":{"port":9000},"recognition":{"capacity":3}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Recognition.Capacity != 3 {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Recognition.ConfirmTimes != 5 {
		t.Errorf("default lost: confirm_times = %d", cfg.Recognition.ConfirmTimes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FACECAM_PORT", "7070")
	t.Setenv("FACECAM_LOG_LEVEL", "debug")
	t.Setenv("FACECAM_ROBOT_BAUD", "9600")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Log.Level != "debug" || cfg.Robot.Baud != 9600 {
		t.Errorf("env not applied: port=%d level=%s baud=%d", cfg.Server.Port, cfg.Log.Level, cfg.Robot.Baud)
	}

	t.Setenv("FACECAM_PORT", "seventy")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("non-numeric FACECAM_PORT accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"port too high", func(c *AppConfig) { c.Server.Port = 65535 }, "Port"},
		{"unknown driver", func(c *AppConfig) { c.Camera.Driver = "webcam9000" }, "Driver"},
		{"mjpeg needs url", func(c *AppConfig) { c.Camera.Driver = "mjpeg" }, "URL"},
		{"opencv needs cascade", func(c *AppConfig) { c.Detection.Backend = "opencv" }, "CascadePath"},
		{"odd baud", func(c *AppConfig) { c.Robot.Baud = 12345 }, "Baud"},
		{"threshold above one", func(c *AppConfig) { c.Recognition.MatchThreshold = 1.5 }, "MatchThreshold"},
		{"two stages", func(c *AppConfig) { c.Detection.Stages = c.Detection.Stages[:2] }, "Stages"},
		{"zero capacity", func(c *AppConfig) { c.Recognition.Capacity = 0 }, "Capacity"},
		{"bad resolution", func(c *AppConfig) { c.Camera.Resolution = "big" }, "resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Camera.Driver = "mjpeg"
	cfg.Camera.URL = "http://192.168.4.1:81/stream"

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() = %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if loaded.Camera.URL != cfg.Camera.URL {
		t.Errorf("url = %q", loaded.Camera.URL)
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("640X480")
	if err != nil || w != 640 || h != 480 {
		t.Errorf("ParseResolution = %d, %d, %v", w, h, err)
	}
	if _, _, err := ParseResolution("640x"); err == nil {
		t.Error("ParseResolution(640x) = nil error")
	}
}
