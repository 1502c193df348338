package effect

import (
	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/spectrum"
)

// DefaultSensitivity is used when a settings block leaves sensitivity unset.
const DefaultSensitivity = 0.01

// MoodySettings configures a Moody effect.
type MoodySettings struct {
	// Color is the color at full intensity.
	Color led.RGBColor `toml:"color"`
	// Sensitivity scales the bass and mid amplitude before it is compressed
	// into a brightness.
	Sensitivity float64 `toml:"sensitivity"`
	// Smoothing is how much of the previous color is kept each tick, in
	// [0, 1). Zero jumps straight to the new color.
	Smoothing float64 `toml:"smoothing"`
}

// Moody glows every LED in one color, with the brightness following the low
// and mid frequencies.
type Moody struct {
	id int
}

var _ Effect = (*Moody)(nil)

// NewMoody creates a new Moody effect.
func NewMoody(id int) *Moody {
	return &Moody{id: id}
}

func (m *Moody) ID() int    { return m.id }
func (m *Moody) Kind() Kind { return KindMoody }

// Update implements Effect.
func (m *Moody) Update(leds led.LEDs, s Settings, f *spectrum.Frame) error {
	set := s.(*MoodySettings)

	sensitivity := set.Sensitivity
	if sensitivity == 0 {
		sensitivity = DefaultSensitivity
	}

	target := set.Color.Scale(level(f.Low()+f.Mid(), sensitivity)).Colorful()
	keep := min(max(set.Smoothing, 0), 1)

	for i, c := range leds {
		leds[i] = led.FromColorful(c.Colorful().BlendRgb(target, 1-keep))
	}

	return nil
}
