package breaker

import "time"

// Sample is a single recorded observation in a rolling window.
type Sample struct {
	At      time.Time
	Success bool
}

// Window is a plain bounded deque of samples, bounded by both count
// (MaxSize) and age (MaxAge). It is not a sliding quantile or EWMA;
// eviction happens lazily on every read/write, from the oldest end.
type Window struct {
	samples []Sample
	MaxSize int
	MaxAge  time.Duration
}

// NewWindow constructs an empty window bounded by size and age.
func NewWindow(maxSize int, maxAge time.Duration) *Window {
	return &Window{
		samples: make([]Sample, 0, maxSize),
		MaxSize: maxSize,
		MaxAge:  maxAge,
	}
}

// Record appends a sample at `at`, then evicts from the head while the
// window exceeds MaxSize or its oldest sample is older than MaxAge
// relative to `at`.
func (w *Window) Record(success bool, at time.Time) {
	w.samples = append(w.samples, Sample{At: at, Success: success})
	w.evict(at)
}

// Snapshot lazily evicts relative to `at`, then returns the total
// sample count and the count of successes among them.
func (w *Window) Snapshot(at time.Time) (total, successes int) {
	w.evict(at)
	total = len(w.samples)
	for _, s := range w.samples {
		if s.Success {
			successes++
		}
	}
	return total, successes
}

// Reset empties the window.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
}

// InjectFailures appends k failure samples at the current time. It is
// only used by the admin/testing surface.
func (w *Window) InjectFailures(k int, at time.Time) {
	for i := 0; i < k; i++ {
		w.samples = append(w.samples, Sample{At: at, Success: false})
	}
	w.evict(at)
}

func (w *Window) evict(at time.Time) {
	if w.MaxSize > 0 {
		for len(w.samples) > w.MaxSize {
			w.samples = w.samples[1:]
		}
	}
	if w.MaxAge > 0 {
		cutoff := at.Add(-w.MaxAge)
		i := 0
		for i < len(w.samples) && w.samples[i].At.Before(cutoff) {
			i++
		}
		if i > 0 {
			w.samples = w.samples[i:]
		}
	}
}
