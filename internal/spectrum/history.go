package spectrum

// History is a fixed-size circular buffer of the most recent samples. It
// always holds exactly Len() samples; it starts out as silence and the oldest
// samples are overwritten as new ones arrive.
type History struct {
	buf  []Sample
	head int // index of the oldest sample
}

// NewHistory creates a zeroed history of the given size.
func NewHistory(size int) *History {
	return &History{buf: make([]Sample, size)}
}

// Len returns the size of the history. It never changes.
func (h *History) Len() int { return len(h.buf) }

// Push appends samples, evicting the oldest ones.
func (h *History) Push(samples ...Sample) {
	if len(samples) >= len(h.buf) {
		// Only the newest len(buf) samples survive.
		copy(h.buf, samples[len(samples)-len(h.buf):])
		h.head = 0
		return
	}

	for _, s := range samples {
		h.buf[h.head] = s
		h.head++
		if h.head == len(h.buf) {
			h.head = 0
		}
	}
}

// CopyTo copies the history into dst from oldest to newest and returns the
// number of samples copied.
func (h *History) CopyTo(dst []Sample) int {
	n := copy(dst, h.buf[h.head:])
	n += copy(dst[n:], h.buf[:h.head])
	return n
}
