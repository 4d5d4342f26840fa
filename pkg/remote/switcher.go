package remote

import (
	"time"

	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/metrics"
)

// switchServerAsync asks the engine to replace the current connection.
// Fire-and-forget: failures are retried internally and never surfaced
// to the caller; only the emitted Connected event marks completion.
// Concurrent triggers while a loop is active are dropped, not queued.
func (c *Client) switchServerAsync() {
	// Fast-path no-op if a switch is already announced.
	if c.switching.Load() {
		return
	}
	if c.GetStatus() == StatusShutdown {
		return
	}

	c.wg.Add(1)
	go c.switchLoop()
}

// switchLoop is the single-flight failover loop: it rotates through
// candidate servers until one accepts a connection, then swaps it in.
// The trylock is the authoritative gate; a scheduling race loses it and
// simply returns.
func (c *Client) switchLoop() {
	defer c.wg.Done()

	if !c.switchMu.TryLock() {
		return
	}
	defer c.switchMu.Unlock()

	c.switching.Store(true)
	defer c.switching.Store(false)

	metrics.ReconnectionsTotal.Inc()
	c.logger.Info("Server switch started",
		zap.String("connection_id", c.connectionID),
	)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, endpoint, err := c.connectOnce()
		if err == nil {
			if !c.installConnection(conn, endpoint) {
				// Shutdown won the race; the connection was discarded.
				return
			}
			metrics.SwitchAttemptsTotal.WithLabelValues("success").Inc()
			c.logger.Info("Server switch completed",
				zap.String("connection_id", c.connectionID),
				zap.String("server", endpoint.Address()),
			)
			return
		}

		metrics.SwitchAttemptsTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("Server switch attempt failed, trying next candidate",
			zap.String("connection_id", c.connectionID),
			zap.Duration("retry_interval", c.switchRetryInterval),
			zap.Error(err),
		)

		select {
		case <-time.After(c.switchRetryInterval):
		case <-c.ctx.Done():
			return
		}
	}
}
