package turboglow

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/turboglow/internal/conn"
	"libdb.so/turboglow/internal/effect"
	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/tick"
)

// Config is the configuration for the turboglow daemon.
type Config struct {
	// SampleRate is the capture sample rate in Hz.
	SampleRate int `toml:"sample_rate" default:"48000"`
	// Tick is the interval between two ticks. It defaults to 16ms.
	Tick TOMLDuration `toml:"tick"`
	// QueueSize is the capacity of the sample queue between the capture
	// source and the analyzer.
	QueueSize int `toml:"queue_size" default:"8192"`

	Audio   AudioConfig    `toml:"audio"`
	Monitor *MonitorConfig `toml:"monitor"`

	Settings    []SettingsConfig   `toml:"settings"`
	Effects     []EffectConfig     `toml:"effect"`
	Connections []ConnectionConfig `toml:"connection"`
	Strips      []StripConfig      `toml:"strip"`
}

// Audio backends.
const (
	PortAudioBackend = "portaudio"
	WAVBackend       = "wav"
)

// AudioConfig selects where samples come from.
type AudioConfig struct {
	// Backend is either "portaudio" or "wav".
	Backend string `toml:"backend" default:"portaudio"`
	// Device is the portaudio input device name. Empty means the default
	// input device.
	Device string `toml:"device"`
	// FramesPerBuffer is the portaudio callback buffer size.
	FramesPerBuffer int `toml:"frames_per_buffer"`
	// File is the WAV file to play for the wav backend.
	File string `toml:"file"`
	// Loop replays the WAV file when it ends.
	Loop bool `toml:"loop"`
}

// MonitorConfig enables the websocket spectrum monitor.
type MonitorConfig struct {
	Address  string       `toml:"address"`
	Interval TOMLDuration `toml:"interval"`
}

// SettingsConfig is a settings block. Which fields apply depends on Kind.
type SettingsConfig struct {
	ID   int    `toml:"id"`
	Kind string `toml:"kind"`

	// moody, raindrop
	Color       led.RGBColor `toml:"color"`
	Sensitivity TOMLFloat    `toml:"sensitivity"`

	// moody
	Smoothing TOMLFloat `toml:"smoothing"`

	// raindrop
	RainSpeed int       `toml:"rain_speed"`
	DropRate  TOMLFloat `toml:"drop_rate"`
	Decay     TOMLFloat `toml:"decay"`

	// script
	Params map[string]interface{} `toml:"params"`
}

// Build returns the settings variant described by the block.
func (s SettingsConfig) Build() (effect.Settings, error) {
	kind, err := effect.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case effect.KindMoody:
		return &effect.MoodySettings{
			Color:       s.Color,
			Sensitivity: float64(s.Sensitivity),
			Smoothing:   float64(s.Smoothing),
		}, nil
	case effect.KindRaindrop:
		return &effect.RaindropSettings{
			RainSpeed:   s.RainSpeed,
			DropRate:    float64(s.DropRate),
			Color:       s.Color,
			Decay:       float64(s.Decay),
			Sensitivity: float64(s.Sensitivity),
		}, nil
	case effect.KindScript:
		params := s.Params
		if params == nil {
			params = map[string]interface{}{}
		}
		return &effect.ScriptSettings{Params: params}, nil
	default:
		return nil, fmt.Errorf("unknown settings kind %v", kind)
	}
}

// EffectConfig declares an effect and the settings it uses.
type EffectConfig struct {
	ID       int    `toml:"id"`
	Kind     string `toml:"kind"`
	Settings int    `toml:"settings"`
	// Script is the Lua file of a script effect.
	Script string `toml:"script"`
	// Seed seeds a raindrop effect. Zero picks a random seed.
	Seed int64 `toml:"seed"`
}

// ConnectionConfig declares a connection.
type ConnectionConfig struct {
	ID   int    `toml:"id"`
	Kind string `toml:"kind"`
	// Address is host:port for tcp and a ws:// URL for websocket.
	Address string `toml:"address"`
	// Device and Baud configure a serial connection.
	Device string `toml:"device"`
	Baud   int    `toml:"baud"`

	QueueSize    int          `toml:"queue_size"`
	WriteTimeout TOMLDuration `toml:"write_timeout"`
}

// Conn converts the block into a connection config.
func (c ConnectionConfig) Conn() (conn.Config, error) {
	kind, err := conn.ParseKind(c.Kind)
	if err != nil {
		return conn.Config{}, err
	}

	cfg := conn.Config{
		Kind:         kind,
		Address:      c.Address,
		Device:       c.Device,
		Baud:         c.Baud,
		QueueSize:    c.QueueSize,
		WriteTimeout: time.Duration(c.WriteTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return conn.Config{}, err
	}

	return cfg, nil
}

// StripConfig declares an LED strip.
type StripConfig struct {
	Name string `toml:"name"`
	LEDs int    `toml:"leds"`
	// Connection is the id of the connection the strip is sent to. A strip
	// without one still runs its effects.
	Connection *int            `toml:"connection"`
	Bindings   []BindingConfig `toml:"binding"`
}

// BindingConfig draws an effect on the inclusive LED range [First, Last].
type BindingConfig struct {
	Effect int `toml:"effect"`
	First  int `toml:"first"`
	Last   int `toml:"last"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid queue size %d", c.QueueSize)
	}
	if c.Tick < 0 {
		return fmt.Errorf("invalid tick interval %v", time.Duration(c.Tick))
	}

	switch c.Audio.Backend {
	case PortAudioBackend:
	case WAVBackend:
		if c.Audio.File == "" {
			return errors.New("wav backend needs a file")
		}
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}

	if c.Monitor != nil && c.Monitor.Address == "" {
		return errors.New("monitor needs an address")
	}

	settingsKinds := make(map[int]effect.Kind, len(c.Settings))
	for _, s := range c.Settings {
		if _, ok := settingsKinds[s.ID]; ok {
			return fmt.Errorf("duplicate settings id %d", s.ID)
		}
		kind, err := effect.ParseKind(s.Kind)
		if err != nil {
			return errors.Wrapf(err, "settings %d", s.ID)
		}
		settingsKinds[s.ID] = kind
	}

	effects := make(map[int]struct{}, len(c.Effects))
	for _, e := range c.Effects {
		if _, ok := effects[e.ID]; ok {
			return fmt.Errorf("duplicate effect id %d", e.ID)
		}
		effects[e.ID] = struct{}{}

		kind, err := effect.ParseKind(e.Kind)
		if err != nil {
			return errors.Wrapf(err, "effect %d", e.ID)
		}

		settingsKind, ok := settingsKinds[e.Settings]
		if !ok {
			return fmt.Errorf("effect %d uses unknown settings %d", e.ID, e.Settings)
		}
		if settingsKind != kind {
			return fmt.Errorf("effect %d (%s) does not match settings %d (%s)",
				e.ID, kind, e.Settings, settingsKind)
		}

		if kind == effect.KindScript && e.Script == "" {
			return fmt.Errorf("script effect %d needs a script", e.ID)
		}
	}

	connections := make(map[int]struct{}, len(c.Connections))
	for _, cc := range c.Connections {
		if _, ok := connections[cc.ID]; ok {
			return fmt.Errorf("duplicate connection id %d", cc.ID)
		}
		connections[cc.ID] = struct{}{}

		if _, err := cc.Conn(); err != nil {
			return errors.Wrapf(err, "connection %d", cc.ID)
		}
	}

	strips := make(map[string]struct{}, len(c.Strips))
	for _, s := range c.Strips {
		if s.Name == "" {
			return errors.New("strip without a name")
		}
		if _, ok := strips[s.Name]; ok {
			return fmt.Errorf("duplicate strip %q", s.Name)
		}
		strips[s.Name] = struct{}{}

		if s.LEDs <= 0 {
			return fmt.Errorf("strip %q has no LEDs", s.Name)
		}

		if s.Connection != nil {
			if _, ok := connections[*s.Connection]; !ok {
				return fmt.Errorf("strip %q uses unknown connection %d", s.Name, *s.Connection)
			}
		}

		for _, b := range s.Bindings {
			if _, ok := effects[b.Effect]; !ok {
				return fmt.Errorf("strip %q uses unknown effect %d", s.Name, b.Effect)
			}
			if b.First < 0 || b.Last < b.First || b.Last >= s.LEDs {
				return fmt.Errorf("strip %q: range [%d, %d] out of bounds for %d LEDs",
					s.Name, b.First, b.Last, s.LEDs)
			}
		}
	}

	return nil
}

// TickInterval returns the tick interval, falling back to the default.
func (c *Config) TickInterval() time.Duration {
	if c.Tick <= 0 {
		return tick.DefaultInterval
	}
	return time.Duration(c.Tick)
}

// TOMLFloat is a float that can be written as either a TOML float or a TOML
// integer, so that `sensitivity = 1` works as well as `sensitivity = 1.0`.
type TOMLFloat float64

var _ toml.Unmarshaler = (*TOMLFloat)(nil)

func (f *TOMLFloat) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case float64:
		*f = TOMLFloat(v)
	case int64:
		*f = TOMLFloat(v)
	default:
		return fmt.Errorf("expected a number, got %T", v)
	}
	return nil
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Unknown keys are errors.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Strict(true).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
