package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_BoundedBySize(t *testing.T) {
	w := NewWindow(3, 0)
	base := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		w.Record(true, base.Add(time.Duration(i)*time.Second))
	}

	total, successes := w.Snapshot(base.Add(10 * time.Second))
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, successes)
}

func TestWindow_BoundedByAge(t *testing.T) {
	w := NewWindow(0, 10*time.Second)
	base := time.Unix(1000, 0)

	w.Record(true, base)
	w.Record(false, base.Add(5*time.Second))
	w.Record(true, base.Add(9*time.Second))

	total, successes := w.Snapshot(base.Add(12 * time.Second))
	assert.Equal(t, 2, total, "the sample at base should have aged out")
	assert.Equal(t, 1, successes)
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(10, 0)
	base := time.Unix(1000, 0)
	w.Record(false, base)
	w.Record(false, base)

	w.Reset()

	total, successes := w.Snapshot(base)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, successes)
}

func TestWindow_InjectFailures(t *testing.T) {
	w := NewWindow(50, 0)
	base := time.Unix(1000, 0)
	w.Record(true, base)

	w.InjectFailures(4, base)

	total, successes := w.Snapshot(base)
	assert.Equal(t, 5, total)
	assert.Equal(t, 1, successes)
}

func TestWindow_SnapshotIsLazyEviction(t *testing.T) {
	w := NewWindow(2, 0)
	base := time.Unix(1000, 0)
	w.Record(true, base)
	w.Record(true, base)
	w.Record(false, base)

	total, successes := w.Snapshot(base)
	assert.LessOrEqual(t, total, 2)
	assert.LessOrEqual(t, successes, total)
}
