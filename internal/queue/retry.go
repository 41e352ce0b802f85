package queue

import "time"

const (
	// DefaultBackoffBase は指数バックオフの初回遅延。
	DefaultBackoffBase = time.Second
	// DefaultBackoffMax は指数バックオフの最大遅延。
	DefaultBackoffMax = time.Minute
	// DefaultMaxAttempts はジョブの最大試行回数。
	DefaultMaxAttempts = 3
)

// CalculateBackoff は試行回数に基づいて次回までの遅延を計算する。
// attempts=1で初回遅延、以降2倍ずつ増加し、最大値で頭打ちになる。
func CalculateBackoff(attempts int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
