package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	// Hz overrides the rate programmed into the timer.
	Hz    int
	Ticks uint64
}

// RunHeadless runs the machine without opening a window. step is called once
// per timer tick.
func RunHeadless(ctx context.Context, h *Host, step func() error, cfg HeadlessConfig) error {
	hz := cfg.Hz
	if hz <= 0 {
		hz = h.TimerHz()
	}
	if hz <= 0 {
		hz = 100
	}

	d := time.Second / time.Duration(hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			tick++
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}
