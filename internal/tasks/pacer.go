package tasks

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/desertthunder/portalsync/internal/shared"
)

// Pacer is a politeness delay between upstream requests.
type Pacer interface {
	Pause(ctx context.Context) error
}

// RandomPacer sleeps for a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

// Pause implements [Pacer].
func (p RandomPacer) Pause(ctx context.Context) error {
	d := p.Min
	if p.Max > p.Min {
		d += rand.N(p.Max - p.Min + 1)
	}
	return sleep(ctx, d)
}

// FixedPacer always sleeps for the same duration.
type FixedPacer time.Duration

// Pause implements [Pacer].
func (p FixedPacer) Pause(ctx context.Context) error {
	return sleep(ctx, time.Duration(p))
}

// NoPacer never sleeps.
type NoPacer struct{}

// Pause implements [Pacer].
func (NoPacer) Pause(ctx context.Context) error { return ctx.Err() }

// PacersFromConfig builds the unit and batch pacers described by cfg.
func PacersFromConfig(cfg shared.SyncConfig) (unit, batch Pacer) {
	unit = RandomPacer{Min: cfg.UnitDelayMin.Duration, Max: cfg.UnitDelayMax.Duration}
	batch = FixedPacer(cfg.BatchDelay.Duration)
	return unit, batch
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
