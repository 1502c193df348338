// Package led contains the color buffer types shared by effects and
// transports.
package led

import (
	"encoding"
	"fmt"
	"io"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBColor is a single LED color. It is laid out the same way it is sent over
// the wire: red, green, blue.
type RGBColor [3]uint8

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = RGBColor{}
)

// RGB creates a new RGBColor.
func RGB(r, g, b uint8) RGBColor {
	return RGBColor{r, g, b}
}

// FromColorful converts a colorful.Color into an RGBColor, clamping channels
// that are out of gamut.
func FromColorful(c colorful.Color) RGBColor {
	r, g, b := c.Clamped().RGB255()
	return RGBColor{r, g, b}
}

// Colorful converts c into a colorful.Color.
func (c RGBColor) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c[0]) / 255,
		G: float64(c[1]) / 255,
		B: float64(c[2]) / 255,
	}
}

// Scale returns c with every channel multiplied by f. f is clamped to [0, 1].
func (c RGBColor) Scale(f float64) RGBColor {
	switch {
	case f <= 0:
		return RGBColor{}
	case f >= 1:
		return c
	}
	return RGBColor{
		uint8(float64(c[0]) * f),
		uint8(float64(c[1]) * f),
		uint8(float64(c[2]) * f),
	}
}

// String returns the color as #rrggbb.
func (c RGBColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// UnmarshalText parses a #rrggbb color.
func (c *RGBColor) UnmarshalText(text []byte) error {
	cf, err := colorful.Hex(string(text))
	if err != nil {
		return fmt.Errorf("invalid color %q: %w", text, err)
	}
	*c = FromColorful(cf)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// Slice returns the LEDs within the inclusive range [first, last]. The
// returned LEDs share memory with l.
func (l LEDs) Slice(first, last int) LEDs {
	return l[first : last+1 : last+1]
}

// Fill sets every LED to c.
func (l LEDs) Fill(c RGBColor) {
	for i := range l {
		l[i] = c
	}
}

// Bytes serializes the strip into a new slice of 3*len(l) bytes, one R, G, B
// triple per LED in index order. The returned slice does not alias l, so it
// is safe to hand to another goroutine.
func (l LEDs) Bytes() []byte {
	return l.AppendBytes(make([]byte, 0, 3*len(l)))
}

// AppendBytes appends the serialized strip to dst.
func (l LEDs) AppendBytes(dst []byte) []byte {
	for _, c := range l {
		dst = append(dst, c[0], c[1], c[2])
	}
	return dst
}

// WriteTo implements io.WriterTo. It writes the LED strip to the given writer
// as a series of RGBColor values.
func (l LEDs) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(l.Bytes())
	return int64(n), err
}
