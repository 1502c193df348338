package effect

import (
	"io"

	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/spectrum"
)

// ScriptRunner runs one tick of an external script. Errors are faults inside
// the script and are never fatal to the caller.
type ScriptRunner interface {
	Tick(leds led.LEDs, params map[string]any, f *spectrum.Frame) error
}

// ScriptSettings holds opaque parameters handed to the script.
type ScriptSettings struct {
	Params map[string]any `toml:"params"`
}

// Script is an effect implemented by a ScriptRunner.
type Script struct {
	id     int
	runner ScriptRunner
}

var (
	_ Effect    = (*Script)(nil)
	_ io.Closer = (*Script)(nil)
)

// NewScript creates a new script effect.
func NewScript(id int, runner ScriptRunner) *Script {
	return &Script{id: id, runner: runner}
}

func (s *Script) ID() int    { return s.id }
func (s *Script) Kind() Kind { return KindScript }

// Update implements Effect. It returns the script's error as-is.
func (s *Script) Update(leds led.LEDs, set Settings, f *spectrum.Frame) error {
	return s.runner.Tick(leds, set.(*ScriptSettings).Params, f)
}

// Close closes the runner if it is an io.Closer.
func (s *Script) Close() error {
	if c, ok := s.runner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
