// Package tick runs effects over LED strips at a fixed cadence and sends the
// results to their connections.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"libdb.so/turboglow/internal/effect"
	"libdb.so/turboglow/internal/spectrum"
)

// DefaultInterval is the reference tick interval.
const DefaultInterval = 16 * time.Millisecond

// MismatchError is the panic value raised when an effect is bound to settings
// of another kind. It is a setup bug and is never recovered from.
type MismatchError struct {
	EffectID     int
	EffectKind   effect.Kind
	SettingsID   int
	SettingsKind effect.Kind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf(
		"effect %d (%s) does not match settings %d (%s)",
		e.EffectID, e.EffectKind, e.SettingsID, e.SettingsKind)
}

// FrameSource provides the latest spectrum.
type FrameSource interface {
	Frame() *spectrum.Frame
}

// Analyzer refreshes the spectrum once per tick.
type Analyzer interface {
	FrameSource
	Update() int
}

// Scheduler applies effects to strips and dispatches them.
type Scheduler struct {
	registry *Registry
	strips   []*Strip
	frames   FrameSource
	logger   *slog.Logger
}

// NewScheduler creates a scheduler over the given strips.
func NewScheduler(registry *Registry, strips []*Strip, frames FrameSource, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		strips:   strips,
		frames:   frames,
		logger:   logger,
	}
}

// Strips returns the scheduled strips.
func (s *Scheduler) Strips() []*Strip { return s.strips }

// Registry returns the scheduler's registry.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Run calls analyzer.Update and Tick every interval until ctx is done. The
// interval is slept between ticks; late ticks are not caught up.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, analyzer Analyzer) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		analyzer.Update()
		s.Tick()

		timer.Reset(interval)
	}
}

// Tick runs every binding of every strip once, then dispatches each strip.
//
// Tick panics with a *MismatchError if an effect's settings are of another
// kind, and panics if a binding refers to an unknown effect or an effect has
// no settings. Script failures are logged and leave the LEDs as they were.
func (s *Scheduler) Tick() {
	frame := s.frames.Frame()

	for _, strip := range s.strips {
		for _, b := range strip.bindings {
			s.apply(strip, b, frame)
		}
		s.Dispatch(strip)
	}
}

func (s *Scheduler) apply(strip *Strip, b Binding, frame *spectrum.Frame) {
	e, ok := s.registry.Effect(b.EffectID)
	if !ok {
		panic(fmt.Sprintf("strip %q: effect %d not found", strip.Name, b.EffectID))
	}

	settings, settingsID, ok := s.registry.SettingsFor(b.EffectID)
	if !ok {
		panic(fmt.Sprintf("strip %q: effect %d has no settings", strip.Name, b.EffectID))
	}

	if e.Kind() != settings.Kind() {
		panic(&MismatchError{
			EffectID:     e.ID(),
			EffectKind:   e.Kind(),
			SettingsID:   settingsID,
			SettingsKind: settings.Kind(),
		})
	}

	if err := e.Update(strip.LEDs.Slice(b.First, b.Last), settings, frame); err != nil {
		s.logger.Warn(
			"effect update failed",
			"strip", strip.Name,
			"effect", e.ID(),
			"kind", e.Kind(),
			"err", err)
	}
}

// Dispatch sends the strip's colors to its connection, if it has one. If the
// connection is gone, it is removed from the registry and the strip is
// unbound; the strip keeps running without output.
func (s *Scheduler) Dispatch(strip *Strip) {
	id, ok := strip.Connection()
	if !ok {
		return
	}

	c, ok := s.registry.Connection(id)
	if !ok {
		s.logger.Warn(
			"strip bound to a removed connection, unbinding",
			"strip", strip.Name,
			"connection", id)
		strip.UnbindConnection()
		return
	}

	if err := c.Enqueue(strip.LEDs.Bytes()); err != nil {
		s.logger.Warn(
			"failed to send to connection, dropping it",
			"strip", strip.Name,
			"connection", id,
			"err", err)

		if err := s.registry.RemoveConnection(id); err != nil {
			s.logger.Debug("failed to close connection", "connection", id, "err", err)
		}
		strip.UnbindConnection()
	}
}
