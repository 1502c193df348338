package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
	"libdb.so/turboglow/internal/spectrum"
)

// DefaultFramesPerBuffer is used when PortAudio.FramesPerBuffer is unset.
const DefaultFramesPerBuffer = 256

// PortAudio captures from an input device.
type PortAudio struct {
	// Device is the device name. The default input device is used if empty.
	Device string
	// SampleRate is the capture rate in Hz.
	SampleRate float64
	// FramesPerBuffer is the callback buffer size.
	FramesPerBuffer int
	Logger          *slog.Logger
}

var _ Source = (*PortAudio)(nil)

// Run implements Source.
func (p *PortAudio) Run(ctx context.Context, q *spectrum.Queue) error {
	if err := portaudio.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize portaudio")
	}
	defer portaudio.Terminate()

	device, err := inputDevice(p.Device)
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = p.SampleRate
	params.FramesPerBuffer = p.FramesPerBuffer
	if params.FramesPerBuffer <= 0 {
		params.FramesPerBuffer = DefaultFramesPerBuffer
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		q.PushSlice(in)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to open input stream on %q", device.Name)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return errors.Wrap(err, "failed to start input stream")
	}

	p.Logger.Info(
		"capturing audio",
		"device", device.Name,
		"sample_rate", params.SampleRate,
		"frames_per_buffer", params.FramesPerBuffer)

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		p.Logger.Warn("failed to stop input stream", "err", err)
	}
	if n := q.Dropped(); n > 0 {
		p.Logger.Debug("samples dropped on a full queue", "dropped", n)
	}

	return ctx.Err()
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get default input device")
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	for _, device := range devices {
		if device.Name == name && device.MaxInputChannels > 0 {
			return device, nil
		}
	}

	return nil, fmt.Errorf("no input device named %q", name)
}

// ListDevices prints every device with input channels.
func ListDevices(w io.Writer) error {
	if err := portaudio.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize portaudio")
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return errors.Wrap(err, "failed to list devices")
	}

	for i, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		fmt.Fprintf(w, "[%d] %s\n", i, device.Name)
		fmt.Fprintf(w, "    Input channels: %d\n", device.MaxInputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
	}

	return nil
}
