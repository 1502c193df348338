package tick

import (
	"fmt"
	"io"

	"libdb.so/turboglow/internal/conn"
	"libdb.so/turboglow/internal/effect"
)

// Registry owns every effect, settings block and connection, keyed by the
// integer ids chosen at setup. It is not safe for concurrent use; only the
// control loop touches it once running.
type Registry struct {
	effects        map[int]effect.Effect
	effectOrder    []int
	settings       map[int]effect.Settings
	effectSettings map[int]int
	connections    map[int]conn.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		effects:        make(map[int]effect.Effect),
		settings:       make(map[int]effect.Settings),
		effectSettings: make(map[int]int),
		connections:    make(map[int]conn.Connection),
	}
}

// AddEffect registers an effect under its own id.
func (r *Registry) AddEffect(e effect.Effect) error {
	if _, ok := r.effects[e.ID()]; ok {
		return fmt.Errorf("duplicate effect id %d", e.ID())
	}
	r.effects[e.ID()] = e
	r.effectOrder = append(r.effectOrder, e.ID())
	return nil
}

// AddSettings registers a settings block.
func (r *Registry) AddSettings(id int, s effect.Settings) error {
	if _, ok := r.settings[id]; ok {
		return fmt.Errorf("duplicate settings id %d", id)
	}
	r.settings[id] = s
	return nil
}

// BindSettings makes the effect use the given settings. Kinds are not checked
// here; a mismatch is caught when the effect runs.
func (r *Registry) BindSettings(effectID, settingsID int) error {
	if _, ok := r.effects[effectID]; !ok {
		return fmt.Errorf("unknown effect id %d", effectID)
	}
	if _, ok := r.settings[settingsID]; !ok {
		return fmt.Errorf("unknown settings id %d", settingsID)
	}
	r.effectSettings[effectID] = settingsID
	return nil
}

// AddConnection registers a connection.
func (r *Registry) AddConnection(id int, c conn.Connection) error {
	if _, ok := r.connections[id]; ok {
		return fmt.Errorf("duplicate connection id %d", id)
	}
	r.connections[id] = c
	return nil
}

// Effect looks up an effect.
func (r *Registry) Effect(id int) (effect.Effect, bool) {
	e, ok := r.effects[id]
	return e, ok
}

// SettingsFor looks up the settings bound to an effect and returns them along
// with their id.
func (r *Registry) SettingsFor(effectID int) (effect.Settings, int, bool) {
	id, ok := r.effectSettings[effectID]
	if !ok {
		return nil, 0, false
	}
	s, ok := r.settings[id]
	return s, id, ok
}

// Connection looks up a connection.
func (r *Registry) Connection(id int) (conn.Connection, bool) {
	c, ok := r.connections[id]
	return c, ok
}

// RemoveConnection closes and forgets a connection.
func (r *Registry) RemoveConnection(id int) error {
	c, ok := r.connections[id]
	if !ok {
		return nil
	}
	delete(r.connections, id)
	return c.Close()
}

// Close closes every connection and every effect holding resources.
func (r *Registry) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for id := range r.connections {
		keep(r.RemoveConnection(id))
	}
	for _, id := range r.effectOrder {
		if c, ok := r.effects[id].(io.Closer); ok {
			keep(c.Close())
		}
	}

	return firstErr
}
