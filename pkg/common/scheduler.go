package common

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ScheduleInput configures a recurring job
type ScheduleInput struct {
	// Name labels the job in log output
	Name string

	// InitialDelay postpones the first run after Schedule is called
	InitialDelay time.Duration

	// Interval is the spacing between runs
	Interval time.Duration

	// FixedRate anchors runs to the start of the previous run rather than
	// its completion; slow cycles then fire again immediately instead of
	// drifting
	FixedRate bool

	// Run executes one cycle. A returned error is logged and the loop
	// keeps going.
	Run func(ctx context.Context) error
}

// Schedule runs the job until the context is cancelled. One cycle's
// failure never stops the loop; a panicking cycle is recovered and logged.
func Schedule(ctx context.Context, input ScheduleInput) {
	log := logrus.WithField("job", input.Name)

	select {
	case <-ctx.Done():
		return
	case <-time.After(input.InitialDelay):
	}

	for {
		started := time.Now()
		runCycle(ctx, log, input.Run)

		wait := input.Interval
		if input.FixedRate {
			wait -= time.Since(started)
			if wait < 0 {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func runCycle(ctx context.Context, log *logrus.Entry, run func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("job cycle panicked")
		}
	}()
	if err := run(ctx); err != nil {
		log.WithError(err).Error("job cycle failed")
	}
}
