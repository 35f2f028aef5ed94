package task

const (
	DefaultSessionTTL = 15 // seconds, see WithTTL
)

type Option func(c *managerConfig)

type managerConfig struct {
	ttlSeconds int
}

func defaultConfig() managerConfig {
	return managerConfig{ttlSeconds: DefaultSessionTTL}
}

// WithTTL defines time after the session is canceled if the client is unavailable.
// Client sends periodic keep-alive requests.
func WithTTL(v int) Option {
	return func(c *managerConfig) {
		c.ttlSeconds = v
	}
}
