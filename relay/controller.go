package relay

import (
	"context"
	"errors"
	"time"

	"memrelay/input"
)

// ControllerStats counts the outcome of a controller run
type ControllerStats struct {
	Sent   int
	Failed int
}

// Controller relays deltas from a Source to the owner at a fixed cadence
type Controller struct {
	Session  *Session
	Source   input.Source
	Interval time.Duration

	// OnSend is called after every attempted send, if set
	OnSend func(dx, dy int32, err error)
}

// Run polls the source once per interval and sends every non-zero delta.
// Send failures are counted and the loop continues. Run returns when ctx is
// done or the source is exhausted; exhaustion is not an error.
func (c *Controller) Run(ctx context.Context) (ControllerStats, error) {
	var stats ControllerStats

	interval := c.Interval
	if interval <= 0 {
		interval = c.Session.Config().SendInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		dx, dy, err := c.Source.Poll()
		if errors.Is(err, input.ErrExhausted) {
			c.Session.log.Infoln("Input exhausted after", stats.Sent, "sends,", stats.Failed, "failures")
			return stats, nil
		}
		if err != nil {
			c.Session.log.Warn("Input poll failed: ", err)
		} else if dx != 0 || dy != 0 {
			err := c.Session.Send(ctx, dx, dy)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Failed++
				c.Session.log.Warn("Send failed: ", err)
			} else {
				stats.Sent++
				if stats.Sent%100 == 0 {
					c.Session.log.Infoln("Sent", stats.Sent, "movements")
				}
			}
			if c.OnSend != nil {
				c.OnSend(dx, dy, err)
			}
		}

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-ticker.C:
		}
	}
}
