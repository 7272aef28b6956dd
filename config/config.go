package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"gopkg.in/yaml.v3"

	"go-conductor/melody"
	"go-conductor/policy"
)

// ControllerType identifies the kind of tap controller
type ControllerType string

const (
	ControllerButton ControllerType = "button" // a pad or key: note on/off
	ControllerPedal  ControllerType = "pedal"  // a footswitch: control change
)

// ControllerConfig defines a saved tap controller
type ControllerConfig struct {
	PortName    string         `yaml:"portName"`
	Type        ControllerType `yaml:"type"`
	AutoConnect bool           `yaml:"autoConnect"`
	Channel     int            `yaml:"channel,omitempty"` // 1-16, 0 = any
	Note        int            `yaml:"note,omitempty"`    // button note, 0 = any
	CC          int            `yaml:"cc,omitempty"`      // pedal controller number
}

// Bus kinds
const (
	BusNone   = "none"
	BusHub    = "hub" // in-process, for local testing with several nodes
	BusSerial = "serial"
	BusMIDI   = "midi"
)

// BusConfig selects and parameterizes the transport
type BusConfig struct {
	Kind       string `yaml:"kind"`
	SerialPort string `yaml:"serialPort,omitempty"`
	Baud       int    `yaml:"baud,omitempty"`
	MIDIIn     string `yaml:"midiIn,omitempty"`
	MIDIOut    string `yaml:"midiOut,omitempty"`
	Musicians  int    `yaml:"musicians,omitempty"` // extra local nodes on a hub bus
}

// AudioConfig controls where the amplitude register goes
type AudioConfig struct {
	Playback    bool          `yaml:"playback"`
	SampleRate  int           `yaml:"sampleRate"`
	Gain        float64       `yaml:"gain"`
	RecordPath  string        `yaml:"recordPath,omitempty"`
	RecordLimit time.Duration `yaml:"recordLimit,omitempty"`
}

// TimingConfig holds deadline windows
type TimingConfig struct {
	TickWindow time.Duration `yaml:"tickWindow,omitempty"` // 0 = one period
}

// DefaultsConfig is the musical state a node starts in
type DefaultsConfig struct {
	Tempo  int    `yaml:"tempo"`
	Key    int    `yaml:"key"`
	Volume int    `yaml:"volume"`
	Melody string `yaml:"melody"`
}

// MelodyConfig is a user melody; both lists need 32 entries
type MelodyConfig struct {
	Name    string    `yaml:"name"`
	Offsets []int     `yaml:"offsets"`
	Beats   []float64 `yaml:"beats"`
}

// HTTPConfig enables the HTTP command surface when Addr is set
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// DebugConfig enables the debug log
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Role        string             `yaml:"role"`
	Controllers []ControllerConfig `yaml:"controllers,omitempty"`
	Bus         BusConfig          `yaml:"bus"`
	Audio       AudioConfig        `yaml:"audio"`
	Timing      TimingConfig       `yaml:"timing,omitempty"`
	Defaults    DefaultsConfig     `yaml:"defaults"`
	Melodies    []MelodyConfig     `yaml:"melodies,omitempty"`
	HTTP        HTTPConfig         `yaml:"http,omitempty"`
	Debug       DebugConfig        `yaml:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Role: "disconnected",
		Controllers: []ControllerConfig{
			{
				PortName:    "FS-1 Footswitch",
				Type:        ControllerPedal,
				AutoConnect: true,
				CC:          64,
			},
		},
		Bus: BusConfig{
			Kind: BusNone,
			Baud: 115200,
		},
		Audio: AudioConfig{
			Playback:   true,
			SampleRate: 44100,
			Gain:       0.5,
		},
		Defaults: DefaultsConfig{
			Tempo:  policy.DefaultBPM,
			Key:    policy.DefaultKey,
			Volume: policy.DefaultVolume,
			Melody: melody.Default.Name,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-conductor"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults. A missing file
// yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("parse config", fmt.Sprintf("Could not parse %s", path)))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("invalid config", fmt.Sprintf("Invalid settings in %s", path)))
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges and builds every user melody once.
func (c *Config) Validate() error {
	switch c.Role {
	case "", "disconnected", "conductor", "musician":
	default:
		return fmt.Errorf("role %q: want conductor, musician or disconnected", c.Role)
	}
	switch c.Bus.Kind {
	case "", BusNone, BusHub:
	case BusSerial:
		if c.Bus.SerialPort == "" {
			return fmt.Errorf("bus: serial needs serialPort")
		}
	case BusMIDI:
		if c.Bus.MIDIIn == "" || c.Bus.MIDIOut == "" {
			return fmt.Errorf("bus: midi needs midiIn and midiOut")
		}
	default:
		return fmt.Errorf("bus: unknown kind %q", c.Bus.Kind)
	}
	if !policy.Tempo(c.Defaults.Tempo, false) {
		return fmt.Errorf("defaults: tempo %d outside %d..%d", c.Defaults.Tempo, policy.MinTempo, policy.MaxTempo)
	}
	if !policy.Key(c.Defaults.Key) {
		return fmt.Errorf("defaults: key %d outside %d..%d", c.Defaults.Key, policy.MinKey, policy.MaxKey)
	}
	if c.Defaults.Volume < policy.MinVolume || c.Defaults.Volume > policy.MaxVolume {
		return fmt.Errorf("defaults: volume %d outside %d..%d", c.Defaults.Volume, policy.MinVolume, policy.MaxVolume)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate %d", c.Audio.SampleRate)
	}
	for _, ctrl := range c.Controllers {
		if ctrl.Type != ControllerButton && ctrl.Type != ControllerPedal {
			return fmt.Errorf("controller %q: unknown type %q", ctrl.PortName, ctrl.Type)
		}
		if ctrl.Channel < 0 || ctrl.Channel > 16 {
			return fmt.Errorf("controller %q: channel %d", ctrl.PortName, ctrl.Channel)
		}
	}
	_, err := c.MelodyTables()
	return err
}

// MelodyTables builds the user melodies
func (c *Config) MelodyTables() ([]*melody.Table, error) {
	var tables []*melody.Table
	for _, m := range c.Melodies {
		t, err := melody.FromSlices(m.Name, m.Offsets, m.Beats)
		if err != nil {
			return nil, err
		}
		if err := t.Validate(policy.MinKey, policy.MaxKey); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// LearnController records the button a controller was just seen sending,
// enabled for auto-connect. It reports whether portName was new.
func (c *Config) LearnController(portName string, typ ControllerType, channel, number int) bool {
	added := c.FindController(portName) == nil
	ctrl := ControllerConfig{PortName: portName, Type: typ, AutoConnect: true, Channel: channel}
	if typ == ControllerPedal {
		ctrl.CC = number
	} else {
		ctrl.Note = number
	}
	c.AddController(ctrl)
	return added
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
