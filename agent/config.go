package agent

import "time"

type config struct {
	metaCacheSize   int
	metaCacheExpire time.Duration
}

type Option func(*config)

// WithMetaCache tunes the sidecar descriptor cache. size<=0 disables it.
func WithMetaCache(size int, expire time.Duration) Option {
	return func(c *config) {
		c.metaCacheSize = size
		c.metaCacheExpire = expire
	}
}
