package explorer

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Run drives the controller from a stream of batches until the stream ends,
// ctx is cancelled, or a fatal error occurs. A closed stream is reported as
// ErrConnectionLost. When no batch arrives within the watchdog interval the
// controller asks for the position again, which restarts the cycle.
func (c *Controller) Run(ctx context.Context, batches <-chan Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("controller panicked")
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if err := c.Start(); err != nil {
		return err
	}

	watchdog := time.NewTimer(c.cfg.Watchdog)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("exploration cancelled")
			return ctx.Err()

		case b, ok := <-batches:
			if !ok {
				return ErrConnectionLost
			}
			if err := c.HandleBatch(b); err != nil {
				return err
			}
			resetTimer(watchdog, c.cfg.Watchdog)

		case <-watchdog.C:
			if err := c.Watchdog(); err != nil {
				return err
			}
			watchdog.Reset(c.cfg.Watchdog)
		}
	}
}

// Watchdog re-issues the position query after a silent interval
func (c *Controller) Watchdog() error {
	c.metrics.WatchdogFired()
	c.log.Warn().
		Dur("interval", c.cfg.Watchdog).
		Stringer("state", c.state).
		Msg("no events, re-requesting position")
	c.flags.MotionExpected = false
	return c.act.RequestPosition()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
