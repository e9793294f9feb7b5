package vmdbg

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/coldbrew-vm/vmdbg/metrics"
	"github.com/coldbrew-vm/vmdbg/wire"
)

// handshakeRetryInterval is how often HandShake is retransmitted while
// awaiting a reply.
const handshakeRetryInterval = 2 * time.Second

// Handshake negotiates protocol compatibility: a read task awaits the next
// inbound command while a retry task repeatedly sends HandShake(version)
// every 2s until the read completes or the deadline fires, structured as a
// joined pair per the Design Notes guidance (a safer rendition of the
// source's fire-and-forget retry loop). version must satisfy minCompatible
// under semantic-versioning rules; on deadline, fails with
// ErrHandshakeTimeout.
func (c *Controller) Handshake(ctx context.Context, version string, minCompatible string) error {
	if minCompatible != "" {
		if err := checkVersionCompatible(version, minCompatible); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	type readResult struct {
		cmd wire.InboundCommand
		err error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		cmd, err := c.engine.readNext(true)
		resultCh <- readResult{cmd, err}
	}()

	go c.retryHandshake(readCtx, version)

	start := time.Now()
	select {
	case res := <-resultCh:
		cancelRead()
		if res.err != nil {
			return res.err
		}
		metrics.Get().HandshakeDurationMs.Observe(float64(time.Since(start).Milliseconds()))
		if _, ok := res.cmd.(wire.HandShakeResult); !ok {
			return c.protocolViolation("expected HandShakeResult", res.cmd)
		}
		return nil
	case <-ctx.Done():
		cancelRead()
		return newSessionError(ErrHandshakeTimeout, ctx.Err().Error(), ctx.Err())
	}
}

func (c *Controller) retryHandshake(ctx context.Context, version string) {
	ticker := time.NewTicker(handshakeRetryInterval)
	defer ticker.Stop()

	if err := c.engine.send(wire.HandShake{Version: version}); err != nil {
		c.log.Warn("handshake send failed", zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.Get().HandshakeRetries.Inc()
			if err := c.engine.send(wire.HandShake{Version: version}); err != nil {
				c.log.Warn("handshake retry send failed", zap.Error(err))
				return
			}
		}
	}
}

// checkVersionCompatible verifies version satisfies >= minCompatible under
// semantic versioning, grounding protocol-version gating in a real semver
// constraint rather than string comparison.
func checkVersionCompatible(version, minCompatible string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return newSessionError(ErrProtocolViolation, "malformed version: "+err.Error(), err)
	}
	constraint, err := semver.NewConstraint(">= " + minCompatible)
	if err != nil {
		return newSessionError(ErrProtocolViolation, "malformed version constraint: "+err.Error(), err)
	}
	if !constraint.Check(v) {
		return newSessionError(ErrProtocolViolation,
			"protocol version "+version+" is older than minimum compatible "+minCompatible, nil)
	}
	return nil
}
