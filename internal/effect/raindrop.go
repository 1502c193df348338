package effect

import (
	"math/rand/v2"

	"libdb.so/turboglow/internal/led"
	"libdb.so/turboglow/internal/spectrum"
)

// DefaultDecay is used when a settings block leaves decay unset.
const DefaultDecay = 0.85

// minStrength is the strength below which a ripple is dropped.
const minStrength = 0.02

// RaindropSettings configures a Raindrop effect.
type RaindropSettings struct {
	// RainSpeed is how many LEDs a ripple front moves per tick.
	RainSpeed int `toml:"rain_speed"`
	// DropRate is the probability of a new drop each tick.
	DropRate float64 `toml:"drop_rate"`
	// Color is the color of a fresh ripple.
	Color led.RGBColor `toml:"color"`
	// Decay is the factor every LED and ripple fades by each tick.
	Decay float64 `toml:"decay"`
	// Sensitivity makes drops brighter with bass. Zero disables it.
	Sensitivity float64 `toml:"sensitivity"`
}

// Ripple is a single spreading drop.
type Ripple struct {
	Center   int
	Radius   int
	Strength float64
}

// RaindropState is the mutable state of a Raindrop effect.
type RaindropState struct {
	Ripples []Ripple
}

// Raindrop spawns ripples at random LEDs which spread out and fade.
type Raindrop struct {
	id    int
	State RaindropState
	rng   *rand.Rand
}

var _ Effect = (*Raindrop)(nil)

// NewRaindrop creates a new Raindrop effect. The seed makes the drop pattern
// reproducible.
func NewRaindrop(id int, seed uint64) *Raindrop {
	return &Raindrop{
		id:  id,
		rng: rand.New(rand.NewPCG(seed, uint64(id))),
	}
}

func (r *Raindrop) ID() int    { return r.id }
func (r *Raindrop) Kind() Kind { return KindRaindrop }

// Update implements Effect.
func (r *Raindrop) Update(leds led.LEDs, s Settings, f *spectrum.Frame) error {
	set := s.(*RaindropSettings)
	if len(leds) == 0 {
		return nil
	}

	decay := set.Decay
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecay
	}

	for i, c := range leds {
		leds[i] = c.Scale(decay)
	}

	if r.rng.Float64() < set.DropRate {
		strength := 1.0
		if set.Sensitivity > 0 {
			strength = 0.5 + 0.5*level(f.Low(), set.Sensitivity)
		}
		r.State.Ripples = append(r.State.Ripples, Ripple{
			Center:   r.rng.IntN(len(leds)),
			Strength: strength,
		})
	}

	ripples := r.State.Ripples[:0]
	for _, ripple := range r.State.Ripples {
		color := set.Color.Scale(ripple.Strength)
		lighten(leds, ripple.Center-ripple.Radius, color)
		lighten(leds, ripple.Center+ripple.Radius, color)

		ripple.Radius += max(set.RainSpeed, 1)
		ripple.Strength *= decay

		if ripple.Radius < len(leds) && ripple.Strength >= minStrength {
			ripples = append(ripples, ripple)
		}
	}
	r.State.Ripples = ripples

	return nil
}

// lighten keeps the brighter of each channel at LED i. Out of range indices
// are ignored.
func lighten(leds led.LEDs, i int, c led.RGBColor) {
	if i < 0 || i >= len(leds) {
		return
	}
	for ch := range c {
		leds[i][ch] = max(leds[i][ch], c[ch])
	}
}
