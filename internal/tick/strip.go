package tick

import (
	"fmt"

	"libdb.so/turboglow/internal/led"
)

// Binding applies an effect to the inclusive LED range [First, Last].
type Binding struct {
	EffectID int
	First    int
	Last     int
}

// Strip is a chain of LEDs with the effects drawn on it and, optionally, the
// connection its colors are sent to.
type Strip struct {
	Name string
	LEDs led.LEDs

	bindings []Binding
	connID   int
	hasConn  bool
}

// NewStrip creates a strip of numLEDs dark LEDs.
func NewStrip(name string, numLEDs int) *Strip {
	return &Strip{
		Name: name,
		LEDs: led.NewLEDs(numLEDs),
	}
}

// AddEffect binds an effect to the inclusive range [first, last]. Ranges of
// different bindings may overlap; bindings run in the order they were added,
// so later ones draw over earlier ones.
func (s *Strip) AddEffect(effectID, first, last int) error {
	if first < 0 || last < first || last >= len(s.LEDs) {
		return fmt.Errorf("range [%d, %d] out of bounds for strip %q of %d LEDs",
			first, last, s.Name, len(s.LEDs))
	}
	s.bindings = append(s.bindings, Binding{EffectID: effectID, First: first, Last: last})
	return nil
}

// Bindings returns the strip's effect bindings in evaluation order.
func (s *Strip) Bindings() []Binding { return s.bindings }

// BindConnection sets the connection the strip is sent to.
func (s *Strip) BindConnection(id int) {
	s.connID = id
	s.hasConn = true
}

// UnbindConnection clears the strip's connection. The strip keeps running
// its effects.
func (s *Strip) UnbindConnection() {
	s.connID = 0
	s.hasConn = false
}

// Connection returns the bound connection id, if any.
func (s *Strip) Connection() (int, bool) {
	return s.connID, s.hasConn
}
