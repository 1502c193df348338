package capture

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"libdb.so/turboglow/internal/spectrum"
)

// wavChunk is how much audio is pushed at a time.
const wavChunk = 10 * time.Millisecond

// WAVFile plays a WAV file into the queue in real time.
type WAVFile struct {
	Path string
	// Loop restarts the file when it ends. Otherwise Run returns nil at the
	// end of the file.
	Loop bool
	// SampleRate is the rate the analyzer expects. A file with another rate
	// is still played, with a warning.
	SampleRate int
	Logger     *slog.Logger
}

var _ Source = (*WAVFile)(nil)

// Run implements Source.
func (w *WAVFile) Run(ctx context.Context, q *spectrum.Queue) error {
	samples, rate, err := ReadWAV(w.Path)
	if err != nil {
		return err
	}

	if w.SampleRate > 0 && rate != w.SampleRate {
		w.Logger.Warn(
			"WAV sample rate differs from the configured rate",
			"path", w.Path,
			"file_rate", rate,
			"sample_rate", w.SampleRate)
	}

	if len(samples) == 0 {
		return nil
	}

	chunk := max(int(time.Duration(rate)*wavChunk/time.Second), 1)

	ticker := time.NewTicker(wavChunk)
	defer ticker.Stop()

	var pos int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		end := min(pos+chunk, len(samples))
		q.PushSlice(samples[pos:end])
		pos = end

		if pos == len(samples) {
			if !w.Loop {
				w.Logger.Debug("WAV file finished", "path", w.Path)
				return nil
			}
			pos = 0
		}
	}
}

// ReadWAV decodes a WAV file into mono samples in [-1, 1] and returns them
// with the file's sample rate.
func ReadWAV(path string) ([]spectrum.Sample, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to open WAV file")
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, errors.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to decode WAV file")
	}

	return Mono(buf), int(dec.SampleRate), nil
}

// Mono averages the channels of buf into normalized mono samples.
func Mono(buf *audio.IntBuffer) []spectrum.Sample {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1 / float64(int64(1)<<(bitDepth-1))

	out := make([]spectrum.Sample, len(buf.Data)/channels)
	for i := range out {
		var sum int
		for ch := range channels {
			sum += buf.Data[i*channels+ch]
		}
		out[i] = spectrum.Sample(float64(sum) / float64(channels) * scale)
	}
	return out
}
