// Package spectrum turns a stream of audio samples into published frequency
// spectra and answers band queries on them.
package spectrum

import (
	"math"

	"github.com/noriah/catnip/fft"
	"github.com/noriah/catnip/input"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// WindowSize is the number of samples the analyzer transforms at once.
	// It is also the number of bins in a Frame.
	WindowSize = 1024
	// TransferSize is the most samples a single Ingest drains.
	TransferSize = WindowSize
)

// Analyzer keeps the most recent WindowSize samples and computes Hann
// windowed spectra of them on demand.
//
// Ingest and Compute must be called from one goroutine. Frames published by
// Compute may be read from any goroutine through Cell.
type Analyzer struct {
	queue      *Queue
	sampleRate int

	history  *History
	transfer []Sample
	ordered  []Sample

	window []float64
	in     []input.Sample
	out    []complex128
	plan   *fft.Plan

	frames FrameCell
}

// NewAnalyzer creates an analyzer draining the given queue. sampleRate is the
// rate the capture side produces samples at.
func NewAnalyzer(queue *Queue, sampleRate int) *Analyzer {
	a := &Analyzer{
		queue:      queue,
		sampleRate: sampleRate,
		history:    NewHistory(WindowSize),
		transfer:   make([]Sample, TransferSize),
		ordered:    make([]Sample, WindowSize),
		window:     hannWindow(WindowSize),
		in:         make([]input.Sample, WindowSize),
		out:        make([]complex128, WindowSize/2+1),
	}

	fft.InitPlan(&a.plan, a.in, a.out)

	// Effects never see a nil frame, even before the first Compute.
	a.frames.Store(NewFrame(make([]float32, WindowSize), sampleRate))
	return a
}

// hannWindow returns w(i) = 0.5 - 0.5cos(2πi/(n-1)).
func hannWindow(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	return window.Hann(coeffs)
}

// SampleRate returns the sample rate the analyzer was created with.
func (a *Analyzer) SampleRate() int { return a.sampleRate }

// History returns the sample history. It must only be used from the goroutine
// calling Ingest.
func (a *Analyzer) History() *History { return a.history }

// Ingest drains whatever samples are queued, up to TransferSize, into the
// history. It never blocks and returns the number of samples drained.
func (a *Analyzer) Ingest() int {
	n := a.queue.Drain(a.transfer)
	if n > 0 {
		a.history.Push(a.transfer[:n]...)
	}
	return n
}

// Compute transforms the current history and publishes the resulting Frame.
// Each bin holds |X|²/√N. Calling Compute without new samples publishes the
// same spectrum again.
func (a *Analyzer) Compute() {
	a.history.CopyTo(a.ordered)
	for i, s := range a.ordered {
		a.in[i] = input.Sample(float64(s) * a.window[i])
	}

	a.plan.Execute()

	norm := math.Sqrt(WindowSize)
	bins := make([]float32, WindowSize)
	for k, c := range a.out {
		re, im := real(c), imag(c)
		bins[k] = float32((re*re + im*im) / norm)
	}
	// The input is real, so the upper half mirrors the lower half.
	for k := len(a.out); k < WindowSize; k++ {
		bins[k] = bins[WindowSize-k]
	}

	a.frames.Store(NewFrame(bins, a.sampleRate))
}

// Update runs Ingest followed by Compute.
func (a *Analyzer) Update() int {
	n := a.Ingest()
	a.Compute()
	return n
}

// Frame returns the latest published frame.
func (a *Analyzer) Frame() *Frame { return a.frames.Load() }

// Cell returns the cell frames are published to.
func (a *Analyzer) Cell() *FrameCell { return &a.frames }
