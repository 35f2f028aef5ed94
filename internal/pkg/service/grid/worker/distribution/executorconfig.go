package distribution

import (
	"time"
)

// DefaultResetInterval defines interval of periodical ExecutorWork restarts, to fix stuck states.
const DefaultResetInterval = 5 * time.Minute

type ExecutorOption func(c *executorConfig)

type executorConfig struct {
	resetInterval time.Duration
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		resetInterval: DefaultResetInterval,
	}
}

// WithResetInterval defines interval of periodical ExecutorWork restarts.
func WithResetInterval(v time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.resetInterval = v
	}
}
