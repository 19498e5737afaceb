package server

import "github.com/xxxsen/davbackup/agent"

type config struct {
	agent   agent.IBackupAgent
	userMap map[string]string
}

type Option func(*config)

func WithAgent(a agent.IBackupAgent) Option {
	return func(c *config) {
		c.agent = a
	}
}

func WithUser(users map[string]string) Option {
	return func(c *config) {
		c.userMap = users
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
