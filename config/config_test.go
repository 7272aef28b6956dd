package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileMissingGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Defaults.Tempo != 120 || cfg.Defaults.Volume != 5 || cfg.Role != "disconnected" {
		t.Fatalf("defaults = %+v role %q", cfg.Defaults, cfg.Role)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
role: conductor
bus:
  kind: serial
  serialPort: /dev/ttyUSB0
timing:
  tickWindow: 100us
defaults:
  tempo: 90
  key: -2
melodies:
  - name: scale
    offsets: [0, 2, 4, 5, 7, 9, 11, 12, 0, 2, 4, 5, 7, 9, 11, 12, 0, 2, 4, 5, 7, 9, 11, 12, 0, 2, 4, 5, 7, 9, 11, 12]
    beats: [1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1]
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Role != "conductor" || cfg.Bus.Kind != BusSerial || cfg.Bus.Baud != 115200 {
		t.Fatalf("bus/role not merged: %q %+v", cfg.Role, cfg.Bus)
	}
	if cfg.Defaults.Tempo != 90 || cfg.Defaults.Key != -2 || cfg.Defaults.Volume != 5 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Timing.TickWindow != 100*time.Microsecond {
		t.Fatalf("tick window = %v", cfg.Timing.TickWindow)
	}
	tables, err := cfg.MelodyTables()
	if err != nil || len(tables) != 1 || tables[0].Name != "scale" {
		t.Fatalf("MelodyTables = %v, %v", tables, err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"role", func(c *Config) { c.Role = "soloist" }, "role"},
		{"bus kind", func(c *Config) { c.Bus.Kind = "carrier-pigeon" }, "unknown kind"},
		{"serial port", func(c *Config) { c.Bus.Kind = BusSerial }, "serialPort"},
		{"midi ports", func(c *Config) { c.Bus.Kind = BusMIDI; c.Bus.MIDIIn = "x" }, "midiOut"},
		{"tempo", func(c *Config) { c.Defaults.Tempo = 241 }, "tempo"},
		{"key", func(c *Config) { c.Defaults.Key = 6 }, "key"},
		{"volume", func(c *Config) { c.Defaults.Volume = 0 }, "volume"},
		{"controller type", func(c *Config) { c.Controllers[0].Type = "knob" }, "unknown type"},
		{"controller channel", func(c *Config) { c.Controllers[0].Channel = 17 }, "channel"},
		{"melody", func(c *Config) {
			c.Melodies = []MelodyConfig{{Name: "short", Offsets: []int{0}, Beats: []float64{1}}}
		}, ""},
		{"melody beat shorter than gap", func(c *Config) {
			beats := make([]float64, 32)
			for i := range beats {
				beats[i] = 1
			}
			beats[9] = 4
			c.Melodies = []MelodyConfig{{Name: "rush", Offsets: make([]int, 32), Beats: beats}}
		}, "gap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate accepted %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Role = "musician"
	cfg.AddController(ControllerConfig{PortName: "Pad", Type: ControllerButton, Note: 36})

	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Role != "musician" || got.FindController("Pad") == nil || got.FindController("Pad").Note != 36 {
		t.Fatalf("reloaded config lost fields: %+v", got)
	}
}

func TestControllers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddController(ControllerConfig{PortName: "Pad", Type: ControllerButton})
	cfg.AddController(ControllerConfig{PortName: "Pad", Type: ControllerButton, AutoConnect: true, Note: 40})

	if len(cfg.Controllers) != 2 {
		t.Fatalf("AddController duplicated: %d controllers", len(cfg.Controllers))
	}
	if cfg.FindController("Pad").Note != 40 {
		t.Fatalf("AddController did not update")
	}
	if cfg.FindController("missing") != nil {
		t.Fatalf("FindController found a missing port")
	}
	if n := len(cfg.AutoConnectControllers()); n != 2 {
		t.Fatalf("AutoConnectControllers = %d, want 2", n)
	}
}

func TestLearnController(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.LearnController("Drum Pad", ControllerButton, 10, 36) {
		t.Fatalf("new port not reported as added")
	}
	got := cfg.FindController("Drum Pad")
	if got == nil || got.Note != 36 || got.Channel != 10 || got.CC != 0 || !got.AutoConnect {
		t.Fatalf("learned button = %+v", got)
	}

	if cfg.LearnController("Drum Pad", ControllerPedal, 1, 67) {
		t.Fatalf("known port reported as added")
	}
	got = cfg.FindController("Drum Pad")
	if got.Type != ControllerPedal || got.CC != 67 || got.Note != 0 {
		t.Fatalf("relearned pedal = %+v", got)
	}
	if len(cfg.Controllers) != 2 {
		t.Fatalf("controllers = %d, want 2", len(cfg.Controllers))
	}
}
