package icmp

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// asyncReceiver is satisfied by Endpoint implementations that support
// the readiness-callback receive path (the real asyncEndpoint). Test
// doubles that don't implement it fall back to the sweeper's default,
// TryRecvOne-based recvFunc.
type asyncReceiver interface {
	Listen(ctx context.Context) <-chan asyncPacket
}

// listenRecv adapts the cooperative queue Listen feeds into a recvFunc:
// the sweep's receive step blocks on whichever of (a packet arrives),
// (the per-sweep deadline elapses), or (ctx is cancelled) happens
// first, so cancellation is observed at the next receive wake rather
// than only between sweeps (spec §4.8).
func listenRecv(packets <-chan asyncPacket) recvFunc {
	return func(ctx context.Context, deadline time.Time) ([]byte, string, error) {
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, "", ErrTimeout
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			timeoutCh = t.C
		}

		select {
		case pkt, ok := <-packets:
			if !ok {
				return nil, "", errors.New("icmp: readiness loop ended")
			}
			return pkt.payload, pkt.peerIP, pkt.err
		case <-timeoutCh:
			return nil, "", ErrTimeout
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
}

// PingAsync is the cooperative counterpart to Ping: inputs resolve
// concurrently via ResolveAsync, and sweeps run over a readiness-driven
// asyncEndpoint instead of a blocking one. A single background goroutine
// (asyncEndpoint.Listen) registers readiness on the socket's fd and
// pushes arriving datagrams onto a queue; the sweep's recvFunc (see
// listenRecv) consumes that queue instead of blocking in TryRecvOne, so
// the sweep loop itself only ever suspends on a select, honoring ctx
// cancellation at every receive and timer wake (spec §4.8, §5). It
// reuses the exact same sweeper state machine as the blocking path
// (sweep.go) — only how a receive is awaited differs.
//
// Lifecycle follows the errgroup+context pattern the pack uses for
// long-running network loops: cancelling ctx, or any fatal error from
// the loop, unwinds the group and closes the returned channel.
func (e *Engine) PingAsync(ctx context.Context, inputs []string) <-chan Outcome {
	out := make(chan Outcome)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(out)

		addrMap, errs := ResolveAsync(ctx, inputs, e.family)
		for input, msg := range errs {
			select {
			case out <- Outcome{IP: input, Host: input, Error: msg, HasError: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(addrMap) == 0 {
			return nil
		}

		ips := make([]string, 0, len(addrMap))
		for ip := range addrMap {
			ips = append(ips, ip)
		}
		sort.Strings(ips)

		ep, err := e.newAsyncEndpoint(e.family)
		if err != nil {
			out <- Outcome{Error: err.Error(), HasError: true}
			return err
		}
		defer ep.Close()

		sw := newSweeper(ep, e.family, e.wireID, e.timeout, e.log)
		if ar, ok := ep.(asyncReceiver); ok {
			listenCtx, stopListen := context.WithCancel(ctx)
			defer stopListen() // ends the readiness loop when the stream ends, before ep.Close
			sw.recv = listenRecv(ar.Listen(listenCtx))
		}

		pc := newPacer(e.interval, e.strict)
		pc.begin()

		index := 0
		for seq := range sequences(e.count) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := sw.run(ctx, ips, seq, func(o Outcome) { fanOut(out, addrMap, o) }); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				out <- Outcome{Error: err.Error(), HasError: true}
				return err
			}

			index++
			if err := pc.wait(ctx, index); err != nil {
				return nil // context cancellation ends the stream cleanly
			}
		}
		return nil
	})

	return out
}
