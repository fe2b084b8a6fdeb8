package icmp

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Engine holds one sweep engine's configuration, built via New and a set
// of functional options (grounded on the teacher's cmd/pulse flag-driven
// construction, generalized into the options pattern the rest of the
// pack favors for long-lived objects).
type Engine struct {
	family   Family
	interval time.Duration
	timeout  time.Duration
	count    int
	strict   bool
	log      *logrus.Entry
	wireID   WireId

	// newEndpoint/newAsyncEndpoint are overridden in tests to substitute
	// a fakeEndpoint for a real socket.
	newEndpoint      func(Family) (Endpoint, error)
	newAsyncEndpoint func(Family) (Endpoint, error)
}

// Option configures an Engine.
type Option func(*Engine)

func WithFamily(f Family) Option { return func(e *Engine) { e.family = f } }

func WithInterval(d time.Duration) Option { return func(e *Engine) { e.interval = d } }

func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithCount sets how many sweeps to run; 0 (the default) runs forever.
func WithCount(n int) Option { return func(e *Engine) { e.count = n } }

// WithStrictInterval selects fixed-phase pacing instead of fixed-gap.
func WithStrictInterval(strict bool) Option { return func(e *Engine) { e.strict = strict } }

func WithLogger(log *logrus.Entry) Option { return func(e *Engine) { e.log = log } }

// WithWireID overrides the engine's wire id, otherwise derived from a
// freshly minted xid. Mostly useful in tests that need a deterministic id.
func WithWireID(id WireId) Option { return func(e *Engine) { e.wireID = id } }

// New builds an Engine with sane defaults: IPv4, one-second relaxed
// pacing, a two-second per-sweep timeout, unbounded sweep count.
func New(opts ...Option) *Engine {
	e := &Engine{
		family:   FamilyV4,
		interval: time.Second,
		timeout:  2 * time.Second,
		log:      discardLogger(),
		newEndpoint: func(f Family) (Endpoint, error) {
			return NewEndpoint(f)
		},
		newAsyncEndpoint: func(f Family) (Endpoint, error) {
			return NewAsyncEndpoint(f)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.wireID == 0 {
		e.wireID = newWireID()
	}
	return e
}

// newWireID derives a 16-bit wire id from the low two bytes of a freshly
// minted xid's counter, which advances on every xid, so concurrently
// running engines in the same process don't collide on the matching id
// the way a fixed os.Getpid()-derived id could.
func newWireID() WireId {
	id := xid.New()
	b := id.Bytes()
	return WireId(binary.BigEndian.Uint16(b[10:12]))
}

// Ping resolves inputs and runs sweeps against them until ctx is
// cancelled or the configured sweep count is exhausted, streaming one
// Outcome per (sweep, label) pair on the returned channel. The channel
// is closed when the run ends; a fatal socket error is reported as one
// final error Outcome before closing.
func (e *Engine) Ping(ctx context.Context, inputs []string) <-chan Outcome {
	out := make(chan Outcome)

	go func() {
		defer close(out)

		addrMap, errs := Resolve(inputs, e.family)
		for input, msg := range errs {
			out <- Outcome{IP: input, Host: input, Error: msg, HasError: true}
		}
		if len(addrMap) == 0 {
			return
		}

		ips := make([]string, 0, len(addrMap))
		for ip := range addrMap {
			ips = append(ips, ip)
		}
		sort.Strings(ips)

		ep, err := e.newEndpoint(e.family)
		if err != nil {
			out <- Outcome{Error: err.Error(), HasError: true}
			return
		}
		defer ep.Close()

		sw := newSweeper(ep, e.family, e.wireID, e.timeout, e.log)
		pc := newPacer(e.interval, e.strict)
		pc.begin()

		index := 0
		for seq := range sequences(e.count) {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := sw.run(ctx, ips, seq, func(o Outcome) { fanOut(out, addrMap, o) }); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					out <- Outcome{Error: err.Error(), HasError: true}
				}
				return
			}

			index++
			if err := pc.wait(ctx, index); err != nil {
				return
			}
		}
	}()

	return out
}

// fanOut re-joins a sweep Outcome (keyed by peer IP) with every input
// label that resolved to that IP, per spec §4.3's addr_map semantics:
// two distinct inputs collapsing onto the same IP each get their own
// Outcome, with Host set to their own display host.
func fanOut(out chan<- Outcome, addrMap map[string][]Label, o Outcome) {
	labels, ok := addrMap[o.IP]
	if !ok || len(labels) == 0 {
		out <- o
		return
	}
	for _, l := range labels {
		c := o
		c.Host = l.DisplayHost
		out <- c
	}
}
