package spectrum

import "sync/atomic"

// Sample is a single mono audio sample, nominally in [-1, 1].
type Sample = float32

// Queue is a bounded single-producer, single-consumer queue of samples. The
// capture side pushes into it and the analyzer drains it. Neither side ever
// blocks: a push into a full queue drops the sample.
type Queue struct {
	samples chan Sample
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity samples.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{samples: make(chan Sample, capacity)}
}

// Push adds a sample to the queue. It returns false if the queue was full and
// the sample was dropped.
func (q *Queue) Push(s Sample) bool {
	select {
	case q.samples <- s:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// PushSlice pushes every sample in ss and returns how many were accepted.
func (q *Queue) PushSlice(ss []Sample) int {
	var n int
	for _, s := range ss {
		if q.Push(s) {
			n++
		}
	}
	return n
}

// Drain moves as many queued samples as fit into dst and returns the number
// moved. It returns immediately, possibly with zero samples.
func (q *Queue) Drain(dst []Sample) int {
	for n := range dst {
		select {
		case s := <-q.samples:
			dst[n] = s
		default:
			return n
		}
	}
	return len(dst)
}

// Len returns the number of queued samples.
func (q *Queue) Len() int { return len(q.samples) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.samples) }

// Dropped returns the number of samples dropped because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
