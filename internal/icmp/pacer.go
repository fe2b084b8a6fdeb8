package icmp

import (
	"context"
	"time"
)

// sequences yields SequenceNumbers starting at 1: count of them if
// count > 0, otherwise the infinite cycle 1..65535,1..65535,... (spec
// C5, grounded on original_source/multiping/tools.py's `cycle`).
func sequences(count int) <-chan SequenceNumber {
	out := make(chan SequenceNumber)
	go func() {
		defer close(out)
		seq := SequenceNumber(1)
		sent := 0
		for {
			if count > 0 && sent >= count {
				return
			}
			out <- seq
			sent++
			seq = seq.Next()
		}
	}()
	return out
}

// pacer drives a sequence of sweeps at either a fixed phase ("strict")
// or a fixed gap ("relaxed") between them (spec C5). Relaxed pacing
// sleeps exactly interval after each item, so drift accumulates when a
// sweep overruns; strict pacing measures every wake-up against the
// instant the first item was produced, so the phase never drifts.
type pacer struct {
	interval time.Duration
	strict   bool

	start time.Time
}

func newPacer(interval time.Duration, strict bool) *pacer {
	return &pacer{interval: interval, strict: strict}
}

// begin marks the instant the first item is about to be produced. Call
// it once, immediately before starting the first sweep.
func (p *pacer) begin() {
	p.start = now()
}

// wait blocks (honoring ctx cancellation) for the gap before the next
// item. index is the 1-based count of items produced so far.
func (p *pacer) wait(ctx context.Context, index int) error {
	if p.interval <= 0 {
		return nil
	}

	if !p.strict {
		return sleepCtx(ctx, p.interval)
	}

	target := p.start.Add(time.Duration(index) * p.interval)
	if d := time.Until(target); d > 0 {
		return sleepCtx(ctx, d)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
