// Package script runs Lua effect scripts.
//
// A script defines a global function
//
//	function update(colors, params)
//
// where colors is an array of {r=, g=, b=} tables, one per LED, and params is
// the settings table. The function may modify colors in place or return a new
// array. The spectrum of the current tick is available through the globals
// low(), mid(), high(), band(min_hz, max_hz), range_average(low_hz, high_hz)
// and max_amplitude().
package script

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
	"libdb.so/turboglow/internal/effect"
	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/spectrum"
)

// UpdateFunc is the name of the function every script must define.
const UpdateFunc = "update"

// DefaultTimeout bounds a single call to the update function.
const DefaultTimeout = 50 * time.Millisecond

// Runner runs a single Lua script. It is not safe for concurrent use.
type Runner struct {
	name   string
	state  *lua.LState
	update  *lua.LFunction
	frame   *spectrum.Frame
	timeout time.Duration
}

var _ effect.ScriptRunner = (*Runner)(nil)

// Load loads the script at path.
func Load(path string) (*Runner, error) {
	return load(path, func(L *lua.LState) error { return L.DoFile(path) })
}

// LoadString loads a script from source. name is only used in errors.
func LoadString(name, src string) (*Runner, error) {
	return load(name, func(L *lua.LState) error { return L.DoString(src) })
}

func load(name string, do func(*lua.LState) error) (*Runner, error) {
	r := &Runner{
		name:    name,
		state:   lua.NewState(),
		timeout: DefaultTimeout,
	}
	r.registerGlobals()

	if err := do(r.state); err != nil {
		r.state.Close()
		return nil, errors.Wrapf(err, "failed to load script %s", name)
	}

	fn, ok := r.state.GetGlobal(UpdateFunc).(*lua.LFunction)
	if !ok {
		r.state.Close()
		return nil, fmt.Errorf("script %s does not define function %s", name, UpdateFunc)
	}
	r.update = fn

	return r, nil
}

// Name returns the script path or name.
func (r *Runner) Name() string { return r.name }

// SetTimeout changes how long a single update may run. An update that runs
// longer is aborted and Tick returns an error.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Close releases the Lua state.
func (r *Runner) Close() error {
	r.state.Close()
	return nil
}

// Tick calls the script's update function and copies the resulting colors
// back into leds. If the script fails, leds are left untouched.
func (r *Runner) Tick(leds led.LEDs, params map[string]any, f *spectrum.Frame) error {
	r.frame = f
	defer func() { r.frame = nil }()

	L := r.state
	colors := colorsTable(L, leds)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	L.SetContext(ctx)
	defer L.RemoveContext()

	err := L.CallByParam(lua.P{
		Fn:      r.update,
		NRet:    1,
		Protect: true,
	}, colors, toLua(L, params))
	if err != nil {
		return errors.Wrapf(err, "script %s failed", r.name)
	}

	ret := L.Get(-1)
	L.Pop(1)

	if tbl, ok := ret.(*lua.LTable); ok {
		colors = tbl
	}

	return readColors(colors, leds)
}

func colorsTable(L *lua.LState, leds led.LEDs) *lua.LTable {
	tbl := L.CreateTable(len(leds), 0)
	for i, c := range leds {
		entry := L.CreateTable(0, 3)
		entry.RawSetString("r", lua.LNumber(c[0]))
		entry.RawSetString("g", lua.LNumber(c[1]))
		entry.RawSetString("b", lua.LNumber(c[2]))
		tbl.RawSetInt(i+1, entry)
	}
	return tbl
}

// readColors validates the whole table before writing, so a malformed result
// does not leave leds half updated. Entries past len(leds) are ignored.
func readColors(tbl *lua.LTable, leds led.LEDs) error {
	n := min(tbl.Len(), len(leds))
	colors := make([]led.RGBColor, n)

	for i := range colors {
		entry, ok := tbl.RawGetInt(i + 1).(*lua.LTable)
		if !ok {
			return fmt.Errorf("color %d is not a table", i+1)
		}
		for ch, key := range [3]string{"r", "g", "b"} {
			v, ok := entry.RawGetString(key).(lua.LNumber)
			if !ok {
				return fmt.Errorf("color %d: %s is not a number", i+1, key)
			}
			colors[i][ch] = clampChannel(float64(v))
		}
	}

	copy(leds, colors)
	return nil
}

func clampChannel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// toLua converts decoded settings values into Lua values. Unknown types are
// passed as their string form.
func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for i, e := range v {
			tbl.RawSetInt(i+1, toLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, v[k]))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

func (r *Runner) registerGlobals() {
	L := r.state

	number := func(name string, f func() float32) {
		L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(f()))
			return 1
		}))
	}

	number("low", func() float32 { return r.frame.Low() })
	number("mid", func() float32 { return r.frame.Mid() })
	number("high", func() float32 { return r.frame.High() })
	number("max_amplitude", func() float32 { return r.frame.Peak() })

	L.SetGlobal("band", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(r.frame.BandAmplitude(L.CheckInt(1), L.CheckInt(2))))
		return 1
	}))
	L.SetGlobal("range_average", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(r.frame.RangeAverage(L.CheckInt(1), L.CheckInt(2))))
		return 1
	}))
}
