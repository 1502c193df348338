// Package turboglow drives addressable LED strips from live audio. Samples
// are turned into a spectrum every tick, effects draw on the strips from it,
// and the colors are sent to each strip's connection.
package turboglow

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/turboglow/internal/capture"
	"libdb.so/turboglow/internal/conn"
	"libdb.so/turboglow/internal/effect"
	"libdb.so/turboglow/internal/monitor"
	"libdb.so/turboglow/internal/script"
	"libdb.so/turboglow/internal/spectrum"
	"libdb.so/turboglow/internal/tick"
)

// Daemon is the main turboglow daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
}

// NewDaemon creates a new turboglow daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the daemon. It blocks until the given context is canceled or
// the audio source fails. Connections are closed before it returns.
func (d *Daemon) Run(ctx context.Context) error {
	queue := spectrum.NewQueue(d.cfg.QueueSize)
	analyzer := spectrum.NewAnalyzer(queue, d.cfg.SampleRate)

	registry, err := d.buildRegistry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			d.logger.Warn("failed to close registry", "err", err)
		}
	}()

	strips, err := d.buildStrips()
	if err != nil {
		return err
	}

	scheduler := tick.NewScheduler(registry, strips, analyzer, d.logger)
	source := d.source()

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		if err := source.Run(ctx, queue); err != nil {
			return errors.Wrap(err, "audio source failed")
		}
		return nil
	})
	errg.Go(func() error {
		d.logger.Info(
			"running",
			"strips", len(strips),
			"tick", d.cfg.TickInterval(),
			"sample_rate", d.cfg.SampleRate)
		return scheduler.Run(ctx, d.cfg.TickInterval(), analyzer)
	})

	if m := d.cfg.Monitor; m != nil {
		server := monitor.NewServer(analyzer.Cell(), time.Duration(m.Interval), d.logger)
		errg.Go(func() error {
			return server.ListenAndServe(ctx, m.Address)
		})
	}

	return errg.Wait()
}

func (d *Daemon) source() capture.Source {
	switch d.cfg.Audio.Backend {
	case WAVBackend:
		return &capture.WAVFile{
			Path:       d.cfg.Audio.File,
			Loop:       d.cfg.Audio.Loop,
			SampleRate: d.cfg.SampleRate,
			Logger:     d.logger,
		}
	default:
		return &capture.PortAudio{
			Device:          d.cfg.Audio.Device,
			SampleRate:      float64(d.cfg.SampleRate),
			FramesPerBuffer: d.cfg.Audio.FramesPerBuffer,
			Logger:          d.logger,
		}
	}
}

// buildRegistry creates every settings block, effect and connection. On
// error, whatever was already created is closed.
func (d *Daemon) buildRegistry(ctx context.Context) (_ *tick.Registry, err error) {
	registry := tick.NewRegistry()
	defer func() {
		if err != nil {
			registry.Close()
		}
	}()

	for _, s := range d.cfg.Settings {
		settings, err := s.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "settings %d", s.ID)
		}
		if err := registry.AddSettings(s.ID, settings); err != nil {
			return nil, err
		}
	}

	for _, e := range d.cfg.Effects {
		eff, err := d.newEffect(e)
		if err != nil {
			return nil, errors.Wrapf(err, "effect %d", e.ID)
		}
		if err := registry.AddEffect(eff); err != nil {
			return nil, err
		}
		if err := registry.BindSettings(e.ID, e.Settings); err != nil {
			return nil, err
		}
	}

	for _, c := range d.cfg.Connections {
		cfg, err := c.Conn()
		if err != nil {
			return nil, errors.Wrapf(err, "connection %d", c.ID)
		}
		cn, err := conn.Open(ctx, c.ID, cfg, d.logger)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open connection %d", c.ID)
		}
		if err := registry.AddConnection(c.ID, cn); err != nil {
			cn.Close()
			return nil, err
		}
	}

	return registry, nil
}

func (d *Daemon) newEffect(e EffectConfig) (effect.Effect, error) {
	kind, err := effect.ParseKind(e.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case effect.KindMoody:
		return effect.NewMoody(e.ID), nil
	case effect.KindRaindrop:
		seed := uint64(e.Seed)
		if seed == 0 {
			seed = rand.Uint64()
		}
		return effect.NewRaindrop(e.ID, seed), nil
	case effect.KindScript:
		runner, err := script.Load(e.Script)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load script")
		}
		return effect.NewScript(e.ID, runner), nil
	default:
		return nil, errors.Errorf("unknown effect kind %v", kind)
	}
}

func (d *Daemon) buildStrips() ([]*tick.Strip, error) {
	strips := make([]*tick.Strip, 0, len(d.cfg.Strips))
	for _, s := range d.cfg.Strips {
		strip := tick.NewStrip(s.Name, s.LEDs)
		for _, b := range s.Bindings {
			if err := strip.AddEffect(b.Effect, b.First, b.Last); err != nil {
				return nil, err
			}
		}
		if s.Connection != nil {
			strip.BindConnection(*s.Connection)
		}
		strips = append(strips, strip)
	}
	return strips, nil
}
