package connection

import "time"

// BackoffDelay returns the wait before reconnection attempt n (0-based):
// min(base * 2^n, ceiling).
func BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if ceiling > 0 && delay >= ceiling {
			break
		}
		delay *= 2
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}
