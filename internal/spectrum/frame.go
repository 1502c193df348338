package spectrum

import (
	"math"
	"sync"
)

// Fixed bands used by the named amplitude queries.
var (
	LowBand  = Band{0, 100}
	MidBand  = Band{100, 1000}
	HighBand = Band{1000, 2000}
)

// Band is a half-open frequency range [Min, Max) in Hz.
type Band struct {
	Min int
	Max int
}

// Frame is one published spectrum. A Frame is immutable once published and
// may be shared freely between goroutines.
//
// Every query on a nil Frame returns 0.
type Frame struct {
	bins       []float32
	sampleRate int
}

// NewFrame creates a frame from the given bins. The frame takes ownership of
// bins.
func NewFrame(bins []float32, sampleRate int) *Frame {
	return &Frame{bins: bins, sampleRate: sampleRate}
}

// Len returns the number of bins.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.bins)
}

// Bin returns the amplitude of bin i, or 0 if i is out of range.
func (f *Frame) Bin(i int) float32 {
	if f == nil || i < 0 || i >= len(f.bins) {
		return 0
	}
	return f.bins[i]
}

// Resolution returns the width of one bin in Hz.
func (f *Frame) Resolution() float64 {
	if f == nil || len(f.bins) == 0 {
		return 0
	}
	return float64(f.sampleRate) / float64(len(f.bins))
}

// Low returns the average amplitude of the 0-100 Hz band.
func (f *Frame) Low() float32 { return f.BandAmplitude(LowBand.Min, LowBand.Max) }

// Mid returns the average amplitude of the 100-1000 Hz band.
func (f *Frame) Mid() float32 { return f.BandAmplitude(MidBand.Min, MidBand.Max) }

// High returns the average amplitude of the 1000-2000 Hz band.
func (f *Frame) High() float32 { return f.BandAmplitude(HighBand.Min, HighBand.Max) }

// BandAmplitude returns the mean amplitude over every whole Hz in
// [minHz, maxHz). The amplitude at each frequency is linearly interpolated
// between the two bins around it, so bands narrower than a bin still change
// smoothly. Frequencies past the last bin count as 0.
func (f *Frame) BandAmplitude(minHz, maxHz int) float32 {
	if f == nil || len(f.bins) == 0 || minHz < 0 || maxHz <= minHz {
		return 0
	}

	res := f.Resolution()

	// Past lastHz the upper bracketing bin is out of range and every point
	// contributes 0, so only the width still counts.
	lastHz := int(math.Floor(float64(len(f.bins)-1) * res))
	end := min(maxHz, lastHz+1)

	var sum float64
	for hz := minHz; hz < end; hz++ {
		sum += f.amplitudeAt(float64(hz) / res)
	}

	return float32(sum / float64(maxHz-minHz))
}

// amplitudeAt interpolates the amplitude at a fractional bin index.
func (f *Frame) amplitudeAt(index float64) float64 {
	lo := math.Floor(index)
	hi := math.Ceil(index)
	if hi >= float64(len(f.bins)) {
		return 0
	}

	t := index - lo
	return float64(f.bins[int(lo)])*(1-t) + float64(f.bins[int(hi)])*t
}

// RangeAverage is a coarser estimator than BandAmplitude. It maps both bounds
// to the bin at or below them, clamps the upper one to the last bin, and
// averages the bins in that closed range without interpolating. It returns 0
// unless the low bin is strictly below the high bin.
func (f *Frame) RangeAverage(lowHz, highHz int) float32 {
	if f == nil || len(f.bins) == 0 || lowHz < 0 {
		return 0
	}

	res := f.Resolution()
	lo := int(float64(lowHz) / res)
	hi := min(int(float64(highHz)/res), len(f.bins)-1)
	if lo >= hi {
		return 0
	}

	var sum float64
	for _, v := range f.bins[lo : hi+1] {
		sum += float64(v)
	}

	return float32(sum / float64(hi-lo+1))
}

// Peak returns the largest bin amplitude.
func (f *Frame) Peak() float32 {
	if f == nil {
		return 0
	}
	var peak float32
	for _, v := range f.bins {
		peak = max(peak, v)
	}
	return peak
}

// FrameCell holds the latest published Frame. Loads take a read lock, so
// readers never wait on each other; a Store only holds the write lock for the
// pointer swap.
type FrameCell struct {
	mu    sync.RWMutex
	frame *Frame
}

// Load returns the latest frame. It may be nil if nothing was stored yet.
func (c *FrameCell) Load() *Frame {
	c.mu.RLock()
	f := c.frame
	c.mu.RUnlock()
	return f
}

// Store replaces the latest frame.
func (c *FrameCell) Store(f *Frame) {
	c.mu.Lock()
	c.frame = f
	c.mu.Unlock()
}
