package retry

import "time"

// Conservative suits safety-critical writes: few attempts, long pauses.
func Conservative() Config {
	return Config{
		MaxRetries:   2,
		BaseDelay:    2 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
	}
}

// Aggressive suits best-effort telemetry: many quick attempts.
func Aggressive() Config {
	return Config{
		MaxRetries:   5,
		BaseDelay:    200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.3,
	}
}

// Network is tuned for connectivity flaps on field links.
func Network() Config {
	return Config{
		MaxRetries:   4,
		BaseDelay:    time.Second,
		MaxDelay:     15 * time.Second,
		JitterFactor: 0.25,
	}
}
