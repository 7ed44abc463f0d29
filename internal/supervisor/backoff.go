package supervisor

import "time"

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// calculateBackoff doubles base for every consecutive failure, capped at max.
func calculateBackoff(failures int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = defaultInitialBackoff
	}
	if max < base {
		max = base
	}
	if failures <= 0 {
		return base
	}
	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
