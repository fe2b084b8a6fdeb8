package icmp

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// recvFunc fetches the next incoming packet, honoring both deadline (a
// zero Time means wait forever) and ctx cancellation. The blocking
// variant's recvFunc wraps Endpoint.TryRecvOne directly; the async
// variant's wraps a channel fed by a background readiness-callback loop
// (endpoint_async.go's Listen), so a cancelled ctx is observed at the
// next receive attempt rather than only between sweeps (spec §4.8,
// §5: "cancellation during a sweep is honored at the next receive or
// timer wake").
type recvFunc func(ctx context.Context, deadline time.Time) (payload []byte, peerIP string, err error)

// sweeper runs one sweep at a time against a shared Endpoint, following
// the state machine in spec §4.4:
//
//	pending := set(ips)
//	send one request per ip in pending
//	loop until pending empty or deadline:
//	  reply := recv(remaining)
//	  on timeout: emit a timeout Outcome per still-pending ip, return
//	  on stale/foreign/wrong-type: log, continue
//	  else: remove ip from pending, emit a success Outcome
type sweeper struct {
	ep      Endpoint
	family  Family
	wireID  WireId
	timeout time.Duration // 0 means wait forever
	log     *logrus.Entry
	recv    recvFunc
}

func newSweeper(ep Endpoint, family Family, wireID WireId, timeout time.Duration, log *logrus.Entry) *sweeper {
	if log == nil {
		log = discardLogger()
	}
	return &sweeper{
		ep: ep, family: family, wireID: wireID, timeout: timeout, log: log,
		recv: func(_ context.Context, deadline time.Time) ([]byte, string, error) {
			return ep.TryRecvOne(deadline)
		},
	}
}

// run sends one Echo Request to every ip in ips and emits one Outcome
// per ip via emit, in arrival order followed by a block of timeouts in
// the original ips order (spec §4.4 ordering guarantee). It returns only
// on a fatal, stream-ending socket error (spec §7 SocketError) or on ctx
// cancellation observed at a receive attempt.
func (s *sweeper) run(ctx context.Context, ips []string, seq SequenceNumber, emit func(Outcome)) error {
	pending := make(map[string]int, len(ips)) // ip -> insertion index, for stable timeout order
	for i, ip := range ips {
		pending[ip] = i
	}

	sendTime := now()
	payload := encodeRequest(s.family, s.wireID, seq, sendTime)

	for _, ip := range ips {
		if _, ok := pending[ip]; !ok {
			continue // duplicate destination in this sweep
		}
		if err := s.ep.SendOne(ip, payload); err != nil {
			s.log.WithFields(logrus.Fields{"ip": ip, "sequence": uint16(seq)}).
				WithError(err).Warn("send failed")
			delete(pending, ip)
			emit(Outcome{
				IP: ip, Host: ip, Sequence: seq,
				TimeSent: sendTime, Error: err.Error(), HasError: true,
			})
		}
	}

	var deadline time.Time
	if s.timeout > 0 {
		deadline = sendTime.Add(s.timeout)
	}

	effectiveID := uint16(s.wireID)
	if !s.ep.HasOuterIPHeader() {
		effectiveID = uint16(s.ep.LocalPort())
	}

	for len(pending) > 0 {
		buf, peerIP, err := s.recv(ctx, deadline)
		if errors.Is(err, ErrTimeout) {
			s.emitTimeouts(pending, ips, seq, emit)
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err // cooperative cancellation, honored mid-sweep
		}
		if err != nil {
			return err // SocketError: fatal, ends the stream
		}

		r, derr := decodeReply(buf, s.ep.HasOuterIPHeader())
		if derr != nil {
			var wt *WrongTypeError
			if errors.As(derr, &wt) {
				if wt.Type == typeDestUnreach {
					if _, ok := pending[peerIP]; ok {
						delete(pending, peerIP)
						emit(Outcome{
							IP: peerIP, Host: peerIP, Sequence: seq,
							TimeSent: sendTime, Error: wt.Error(), HasError: true,
						})
					}
					continue
				}
				s.log.WithField("type", wt.Type).Debug("ignoring non-echo-reply packet")
			} else {
				s.log.WithError(derr).Debug("ignoring malformed packet")
			}
			continue
		}
		r.peerIP = peerIP

		if r.id != effectiveID {
			s.log.WithFields(logrus.Fields{"ip": peerIP, "id": r.id}).Debug("ignoring reply with foreign id")
			continue
		}
		if r.sequence != seq {
			s.log.WithFields(logrus.Fields{"ip": peerIP, "sequence": uint16(r.sequence)}).Warn("old response")
			continue
		}
		if _, ok := pending[peerIP]; !ok {
			s.log.WithField("ip", peerIP).Debug("unsolicited reply")
			continue
		}

		delete(pending, peerIP)
		received := now()
		emit(Outcome{
			IP:           peerIP,
			Host:         peerIP,
			Sequence:     seq,
			TimeSent:     sendTime,
			TimeReceived: received,
			RTT:          received.Sub(sendTime),
			HasRTT:       true,
			Size:         r.size,
			Type:         r.typ,
			Code:         r.code,
		})
	}
	return nil
}

// emitTimeouts emits one timeout Outcome per ip still in pending, in the
// original ips insertion order (spec §4.4: "SHOULD emit them in the
// original IP insertion order for testability").
func (s *sweeper) emitTimeouts(pending map[string]int, ips []string, seq SequenceNumber, emit func(Outcome)) {
	for _, ip := range ips {
		if _, ok := pending[ip]; !ok {
			continue
		}
		emit(Outcome{
			IP: ip, Host: ip, Sequence: seq,
			Error: "timeout", HasError: true,
		})
	}
}
