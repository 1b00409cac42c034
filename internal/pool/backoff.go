package pool

import (
	"math/rand"
	"time"
)

// retryDelay returns the wait before reconnect attempt number attempt
// (zero-based): base doubled per attempt, capped at max, with ±20%
// jitter so many pool instances do not reconnect in lockstep.
func retryDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}

	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
