// Package effect implements the visual effects that turn spectra into LED
// colors, along with their settings.
package effect

import (
	"fmt"
	"math"

	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/spectrum"
)

// Kind tags an effect or settings variant. An effect may only be bound to
// settings of the same kind.
type Kind uint8

const (
	_ Kind = iota
	// KindMoody glows the LEDs in a single color following the music.
	KindMoody
	// KindRaindrop spawns ripples that spread out from random LEDs.
	KindRaindrop
	// KindScript delegates to a script.
	KindScript
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMoody:
		return "moody"
	case KindRaindrop:
		return "raindrop"
	case KindScript:
		return "script"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ParseKind parses a kind from its configuration name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "moody":
		return KindMoody, nil
	case "raindrop":
		return KindRaindrop, nil
	case "script", "lua":
		return KindScript, nil
	default:
		return 0, fmt.Errorf("unknown effect kind %q", s)
	}
}

// Effect is a visual effect. Effects may keep state between updates.
type Effect interface {
	// ID returns the identifier the effect is registered under.
	ID() int
	// Kind returns the effect variant.
	Kind() Kind
	// Update computes new colors for leds. s is always of the same Kind as
	// the effect. f is the latest spectrum and may be read but not kept.
	//
	// leds keeps whatever the previous update (or an overlapping effect)
	// wrote to it, so effects may fade from the previous colors.
	Update(leds led.LEDs, s Settings, f *spectrum.Frame) error
}

// Settings holds the tunable parameters of an effect variant.
type Settings interface {
	Kind() Kind
}

func (*MoodySettings) Kind() Kind    { return KindMoody }
func (*RaindropSettings) Kind() Kind { return KindRaindrop }
func (*ScriptSettings) Kind() Kind   { return KindScript }

// level compresses an amplitude into [0, 1).
func level(amplitude float32, sensitivity float64) float64 {
	if amplitude <= 0 || sensitivity <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(amplitude)*sensitivity)
}
