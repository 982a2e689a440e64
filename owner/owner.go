package owner

import (
	"context"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const DefaultPollInterval = 5 * time.Millisecond

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "owner"))

// Actuator performs the local effect of one movement request
type Actuator interface {
	Apply(dx, dy int32) error
}

// FuncActuator adapts a function to Actuator
type FuncActuator func(dx, dy int32) error

func (f FuncActuator) Apply(dx, dy int32) error {
	return f(dx, dy)
}

// LogActuator logs every movement instead of moving anything
type LogActuator struct{}

func (LogActuator) Apply(dx, dy int32) error {
	log.Infoln("Movement", dx, dy)
	return nil
}

// Stats counts consumed requests
type Stats struct {
	Movements int
	Errors    int
}

// Run is the owner loop: every interval it consumes a pending request, if
// any, and hands it to act. Actuator errors are counted, the request is
// still cleared. Run returns when ctx is done.
func Run(ctx context.Context, r *Region, act Actuator, interval time.Duration) (Stats, error) {
	var stats Stats
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	b := r.Block()
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		consumed, err := b.Consume(act.Apply)
		if consumed {
			stats.Movements++
			if err != nil {
				stats.Errors++
				log.Warn("Actuator failed: ", err)
			}
		}

		time.Sleep(interval)
	}
}
