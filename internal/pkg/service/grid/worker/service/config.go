package service

import (
	"time"
)

// DefaultCleanupInterval defines how often the records of the old finished tasks are deleted.
const DefaultCleanupInterval = time.Hour

type config struct {
	masterLeaveMonitor bool
	cleanup            bool
	cleanupInterval    time.Duration
}

type Option func(c *config)

func newConfig(ops []Option) config {
	c := config{
		masterLeaveMonitor: true,
		cleanup:            true,
		cleanupInterval:    DefaultCleanupInterval,
	}
	for _, o := range ops {
		o(&c)
	}
	return c
}

// WithMasterLeaveMonitor enables/disables cancellation of the tasks of departed master nodes.
func WithMasterLeaveMonitor(v bool) Option {
	return func(c *config) {
		c.masterLeaveMonitor = v
	}
}

// WithCleanup enables/disables deletion of the records of the old finished tasks.
func WithCleanup(v bool) Option {
	return func(c *config) {
		c.cleanup = v
	}
}

// WithCleanupInterval defines how often the cleanup is triggered.
func WithCleanupInterval(v time.Duration) Option {
	return func(c *config) {
		c.cleanupInterval = v
	}
}
