package davclient

import "net/http"

type config struct {
	endpoint   string
	username   string
	password   string
	backupPath string
	skipVerify bool
	client     *http.Client
}

type Option func(*config)

func WithEndpoint(u string) Option {
	return func(c *config) {
		c.endpoint = u
	}
}

func WithAuth(user string, pass string) Option {
	return func(c *config) {
		c.username = user
		c.password = pass
	}
}

func WithBackupPath(p string) Option {
	return func(c *config) {
		c.backupPath = p
	}
}

func WithSkipVerify(v bool) Option {
	return func(c *config) {
		c.skipVerify = v
	}
}

// WithHTTPClient overrides the default transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.client = hc
	}
}
