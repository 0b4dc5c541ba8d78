// Package backoff computes bounded, full-jitter retry delays for a
// processor that reports RATE_LIMITED. Each delay is drawn uniformly
// from [0, min(cap, base*2^attempt)], guaranteeing the result never
// exceeds the computed ceiling.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config configures the controller's base delay, cap, and max retries.
type Config struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Controller draws full-jitter delays for successive RATE_LIMITED
// retries of the same processor. It wraps a seedable *rand.Rand so
// tests can assert deterministic draws.
type Controller struct {
	cfg Config
	rng *rand.Rand
}

// New constructs a Controller. If rng is nil, a source seeded from the
// current time is used.
func New(cfg Config, rng *rand.Rand) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Controller{cfg: cfg, rng: rng}
}

// MaxRetries returns the configured R: the number of RATE_LIMITED
// retries allowed before the processor is skipped.
func (c *Controller) MaxRetries() int {
	return c.cfg.MaxRetries
}

// Delay draws a full-jitter delay for the given zero-based attempt
// index: uniform_random(0, min(cap, base*2^attempt)), inclusive of the
// upper bound.
func (c *Controller) Delay(attempt int) time.Duration {
	ceiling := c.ceiling(attempt)
	if ceiling <= 0 {
		return 0
	}
	// Int63n(ceiling+1) draws a whole number of nanoseconds from
	// [0, ceiling], so the upper bound is inclusive.
	n := c.rng.Int63n(int64(ceiling) + 1)
	return time.Duration(n)
}

func (c *Controller) ceiling(attempt int) time.Duration {
	factor := math.Pow(2, float64(attempt))
	scaled := time.Duration(float64(c.cfg.Base) * factor)
	if scaled < 0 || (c.cfg.Cap > 0 && scaled > c.cfg.Cap) {
		return c.cfg.Cap
	}
	return scaled
}
