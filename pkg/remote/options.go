package remote

import (
	"time"

	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/config"
)

// Defaults for the tunable engine parameters.
const (
	// DefaultRequestRetries is the total attempt budget of Request.
	DefaultRequestRetries = 3
	// DefaultSwitchRetryInterval is the wait between failed candidates
	// in the switch loop.
	DefaultSwitchRetryInterval = 1 * time.Second
	// DefaultIdleThreshold is how long without a successful request the
	// client is considered idle.
	DefaultIdleThreshold = 3 * time.Second
	// DefaultConnectTimeout bounds a single ConnectToServer attempt.
	DefaultConnectTimeout = 10 * time.Second
)

// Option customizes a Client at construction time.
type Option func(*Client)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestRetries sets the total attempt budget of Request.
func WithRequestRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.requestRetries = n
		}
	}
}

// WithSwitchRetryInterval sets the wait between failed connect
// attempts in the switch loop.
func WithSwitchRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.switchRetryInterval = d
		}
	}
}

// WithIdleThreshold sets the idle-detection threshold used by
// OverActiveTime.
func WithIdleThreshold(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.idleThreshold = d
		}
	}
}

// WithConnectTimeout bounds a single connect attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithLabels seeds the client's static labels.
func WithLabels(labels map[string]string) Option {
	return func(c *Client) {
		for k, v := range labels {
			c.labels[k] = v
		}
	}
}

// WithResetContextHook registers a hook invoked before every switch
// triggered by a server reset or stale registration, so embedders can
// discard connection-scoped caches.
func WithResetContextHook(hook func()) Option {
	return func(c *Client) {
		c.resetHook = hook
	}
}

// WithConfig applies the engine settings from a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		WithRequestRetries(cfg.Client.RequestRetries)(c)
		WithSwitchRetryInterval(cfg.Client.SwitchRetryInterval)(c)
		WithIdleThreshold(cfg.Client.IdleThreshold)(c)
		WithConnectTimeout(cfg.Client.ConnectTimeout)(c)
		WithLabels(cfg.Client.Labels)(c)
	}
}
