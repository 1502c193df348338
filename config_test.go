package turboglow

import (
	"strings"
	"testing"
	"time"

	"libdb.so/turboglow/internal/conn"
	"libdb.so/turboglow/internal/effect"
	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/tick"
)

const exampleConfig = `
tick = "20ms"

[audio]
backend = "wav"
file = "music.wav"
loop = true

[monitor]
address = "127.0.0.1:0"

[[settings]]
id = 1
kind = "moody"
color = "#ff8000"
sensitivity = 0.05
smoothing = 0.5

[[settings]]
id = 2
kind = "raindrop"
color = "#0000ff"
rain_speed = 2
drop_rate = 0.3
decay = 0.9

[[settings]]
id = 3
kind = "script"
[settings.params]
speed = 2
name = "wave"

[[effect]]
id = 1
kind = "moody"
settings = 1

[[effect]]
id = 2
kind = "raindrop"
settings = 2
seed = 7

[[effect]]
id = 3
kind = "lua"
settings = 3
script = "wave.lua"

[[connection]]
id = 1
kind = "tcp"
address = "127.0.0.1:7777"
write_timeout = "100ms"

[[strip]]
name = "desk"
leds = 300
connection = 1

[[strip.binding]]
effect = 1
first = 0
last = 299

[[strip.binding]]
effect = 2
first = 100
last = 199

[[strip]]
name = "shelf"
leds = 60

[[strip.binding]]
effect = 3
first = 0
last = 59
`

func parseConfig(t *testing.T, src string) *Config {
	t.Helper()

	cfg, err := ParseConfig(strings.NewReader(src))
	if err != nil {
		t.Fatal("failed to parse config:", err)
	}
	return cfg
}

func TestParseConfig(t *testing.T) {
	cfg := parseConfig(t, exampleConfig)
	if err := cfg.Validate(); err != nil {
		t.Fatal("example config is invalid:", err)
	}

	if cfg.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want the default", cfg.SampleRate)
	}
	if cfg.QueueSize != 8192 {
		t.Errorf("queue size = %d, want the default", cfg.QueueSize)
	}
	if cfg.TickInterval() != 20*time.Millisecond {
		t.Errorf("tick = %v", cfg.TickInterval())
	}
	if cfg.Audio.Backend != WAVBackend || !cfg.Audio.Loop {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Monitor == nil || cfg.Monitor.Address != "127.0.0.1:0" {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}

	if len(cfg.Strips) != 2 {
		t.Fatalf("got %d strips", len(cfg.Strips))
	}
	desk := cfg.Strips[0]
	if desk.Connection == nil || *desk.Connection != 1 {
		t.Errorf("desk connection = %v", desk.Connection)
	}
	if len(desk.Bindings) != 2 || desk.Bindings[1] != (BindingConfig{Effect: 2, First: 100, Last: 199}) {
		t.Errorf("desk bindings = %+v", desk.Bindings)
	}
	if cfg.Strips[1].Connection != nil {
		t.Errorf("shelf has a connection")
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg := parseConfig(t, "")

	if cfg.SampleRate != 48000 || cfg.QueueSize != 8192 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.TickInterval() != tick.DefaultInterval {
		t.Errorf("tick = %v", cfg.TickInterval())
	}
	if cfg.Audio.Backend != PortAudioBackend {
		t.Errorf("backend = %q", cfg.Audio.Backend)
	}
	if cfg.Monitor != nil {
		t.Errorf("monitor enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config is invalid: %v", err)
	}
}

func TestParseConfigUnknownKey(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("sample_rat = 44100\n"))
	if err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestParseConfigBadColor(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`
[[settings]]
id = 1
kind = "moody"
color = "orange"
`))
	if err == nil {
		t.Fatal("bad color accepted")
	}
}

func TestSettingsBuild(t *testing.T) {
	cfg := parseConfig(t, exampleConfig)

	moody, err := cfg.Settings[0].Build()
	if err != nil {
		t.Fatal(err)
	}
	want := &effect.MoodySettings{
		Color:       led.RGB(0xff, 0x80, 0x00),
		Sensitivity: 0.05,
		Smoothing:   0.5,
	}
	if got, ok := moody.(*effect.MoodySettings); !ok || *got != *want {
		t.Errorf("moody settings = %+v, want %+v", moody, want)
	}

	rain, err := cfg.Settings[1].Build()
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := rain.(*effect.RaindropSettings); !ok || got.RainSpeed != 2 || got.Decay != 0.9 {
		t.Errorf("raindrop settings = %+v", rain)
	}

	scr, err := cfg.Settings[2].Build()
	if err != nil {
		t.Fatal(err)
	}
	params := scr.(*effect.ScriptSettings).Params
	if params["speed"] != int64(2) || params["name"] != "wave" {
		t.Errorf("script params = %v", params)
	}
}

func TestParseConfigIntegerFloats(t *testing.T) {
	cfg := parseConfig(t, `
[[settings]]
id = 1
kind = "moody"
sensitivity = 1
smoothing = 0

[[settings]]
id = 2
kind = "raindrop"
sensitivity = 2
drop_rate = 0
decay = 1
`)

	moody, err := cfg.Settings[0].Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := moody.(*effect.MoodySettings); got.Sensitivity != 1 || got.Smoothing != 0 {
		t.Errorf("moody settings = %+v", got)
	}

	rain, err := cfg.Settings[1].Build()
	if err != nil {
		t.Fatal(err)
	}
	got := rain.(*effect.RaindropSettings)
	if got.Sensitivity != 2 || got.DropRate != 0 || got.Decay != 1 {
		t.Errorf("raindrop settings = %+v", got)
	}
}

func TestParseConfigFloatNotNumber(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`
[[settings]]
id = 1
kind = "moody"
sensitivity = "high"
`))
	if err == nil {
		t.Fatal("string sensitivity accepted")
	}
}

func TestConnectionConfig(t *testing.T) {
	cfg := parseConfig(t, exampleConfig)

	c, err := cfg.Connections[0].Conn()
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind != conn.KindStream || c.WriteTimeout != 100*time.Millisecond {
		t.Errorf("connection config = %+v", c)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(*Config)
		errMsg string
	}{
		{
			name:   "duplicate settings",
			edit:   func(c *Config) { c.Settings[1].ID = 1 },
			errMsg: "duplicate settings id 1",
		},
		{
			name:   "duplicate effect",
			edit:   func(c *Config) { c.Effects[1].ID = 1 },
			errMsg: "duplicate effect id 1",
		},
		{
			name:   "unknown settings",
			edit:   func(c *Config) { c.Effects[0].Settings = 42 },
			errMsg: "unknown settings 42",
		},
		{
			name:   "kind mismatch",
			edit:   func(c *Config) { c.Effects[0].Settings = 2 },
			errMsg: "does not match settings 2",
		},
		{
			name:   "unknown effect kind",
			edit:   func(c *Config) { c.Effects[0].Kind = "sparkle" },
			errMsg: `unknown effect kind "sparkle"`,
		},
		{
			name:   "script without file",
			edit:   func(c *Config) { c.Effects[2].Script = "" },
			errMsg: "needs a script",
		},
		{
			name:   "unsupported transport",
			edit:   func(c *Config) { c.Connections[0].Kind = "udp" },
			errMsg: `unsupported connection kind "udp"`,
		},
		{
			name:   "tcp without address",
			edit:   func(c *Config) { c.Connections[0].Address = "" },
			errMsg: "needs an address",
		},
		{
			name: "unknown connection",
			edit: func(c *Config) {
				id := 9
				c.Strips[0].Connection = &id
			},
			errMsg: "unknown connection 9",
		},
		{
			name:   "unknown binding effect",
			edit:   func(c *Config) { c.Strips[0].Bindings[0].Effect = 9 },
			errMsg: "unknown effect 9",
		},
		{
			name:   "binding past the end",
			edit:   func(c *Config) { c.Strips[0].Bindings[0].Last = 300 },
			errMsg: "out of bounds",
		},
		{
			name:   "inverted binding",
			edit:   func(c *Config) { c.Strips[0].Bindings[1].First = 200 },
			errMsg: "out of bounds",
		},
		{
			name:   "duplicate strip",
			edit:   func(c *Config) { c.Strips[1].Name = "desk" },
			errMsg: `duplicate strip "desk"`,
		},
		{
			name:   "empty strip",
			edit:   func(c *Config) { c.Strips[1].LEDs = 0 },
			errMsg: "has no LEDs",
		},
		{
			name:   "wav without file",
			edit:   func(c *Config) { c.Audio.File = "" },
			errMsg: "needs a file",
		},
		{
			name:   "unknown backend",
			edit:   func(c *Config) { c.Audio.Backend = "jack" },
			errMsg: `unknown audio backend "jack"`,
		},
		{
			name:   "bad sample rate",
			edit:   func(c *Config) { c.SampleRate = 0 },
			errMsg: "invalid sample rate",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := parseConfig(t, exampleConfig)
			test.edit(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), test.errMsg) {
				t.Fatalf("error %q does not contain %q", err, test.errMsg)
			}
		})
	}
}
