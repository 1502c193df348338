package capture

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"libdb.so/turboglow/internal/spectrum"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeWAV(t *testing.T, data []int, channels, rate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestMono(t *testing.T) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           []int{16384, 0, -32768, -32768, 0, 32767},
		SourceBitDepth: 16,
	}

	got := Mono(buf)
	want := []float64{0.25, -1, 0.5}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i])-want[i]) > 1e-3 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadWAV(t *testing.T) {
	data := make([]int, 480)
	for i := range data {
		data[i] = int(math.Sin(2*math.Pi*float64(i)/48) * 16000)
	}
	path := writeWAV(t, data, 1, 48000)

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 48000 {
		t.Fatalf("rate = %d", rate)
	}
	if len(samples) != len(data) {
		t.Fatalf("got %d samples, want %d", len(samples), len(data))
	}
	for i := range data {
		want := float64(data[i]) / 32768
		if math.Abs(float64(samples[i])-want) > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], want)
		}
	}
}

func TestReadWAVInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Fatal("invalid file accepted")
	}
}

func TestWAVFileRun(t *testing.T) {
	data := make([]int, 4800)
	for i := range data {
		data[i] = 1000
	}
	path := writeWAV(t, data, 1, 48000)

	q := spectrum.NewQueue(8192)
	src := &WAVFile{Path: path, SampleRate: 48000, Logger: testLogger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := src.Run(ctx, q); err != nil {
		t.Fatal(err)
	}
	if q.Len() != len(data) {
		t.Fatalf("queued %d samples, want %d", q.Len(), len(data))
	}
}

func TestWAVFileLoopStops(t *testing.T) {
	path := writeWAV(t, make([]int, 100), 1, 48000)

	q := spectrum.NewQueue(16)
	src := &WAVFile{Path: path, Loop: true, Logger: testLogger}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Run(ctx, q); err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v", err)
	}
	if q.Dropped() == 0 {
		t.Fatal("a looping source never filled the queue")
	}
}
