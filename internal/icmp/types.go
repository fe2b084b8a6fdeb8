// Package icmp provides a concurrent ICMP Echo ("ping") engine that
// multiplexes a single socket across many destinations.
//
// Unlike sending one packet per target per round-trip, the engine
// broadcasts one Echo Request per destination on every sweep and streams
// matching replies back to the caller as they arrive, so the aggregate
// send rate is independent of the number of targets.
package icmp

import "time"

// Family selects the IP version an Echo Request is built for.
type Family int

const (
	// FamilyV4 builds/expects ICMPv4 echo (type 8 request, type 0 reply).
	FamilyV4 Family = iota
	// FamilyV6 builds/expects ICMPv6 echo (type 128 request, type 129 reply).
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "ip6"
	}
	return "ip4"
}

// WireId is the 16-bit ICMP identifier used to correlate requests and
// replies belonging to this engine. On unprivileged datagram ICMP the
// kernel substitutes the socket's source port for this field (see
// Endpoint.LocalPort).
type WireId uint16

// SequenceNumber identifies one sweep. It starts at 1, increments per
// sweep, and wraps from 65535 back to 1.
type SequenceNumber uint16

// Next returns the sequence number following s, wrapping 65535 -> 1.
func (s SequenceNumber) Next() SequenceNumber {
	if s >= 65535 {
		return 1
	}
	return s + 1
}

// RequestSize is the fixed, bit-exact size of an Echo Request/Reply
// payload: 8-byte ICMP header + 8-byte timestamp + 48 bytes of padding.
const RequestSize = 64

// TimestampPaddingByte is the ASCII byte ('Q') used to pad a request out
// to RequestSize after the embedded timestamp.
const TimestampPaddingByte = 0x51

// IPv4HeaderSize is the size of the IPv4 header some kernels prepend to
// a delivered ICMP datagram (see Endpoint.HasOuterIPHeader).
const IPv4HeaderSize = 20

// Destination is one resolved ping target: a canonical IP plus the
// label(s) it should be reported back under. Multiple source inputs may
// collapse onto a single IP; Labels preserves the full fan-out.
type Destination struct {
	IP     string
	Labels []Label
}

// Label pairs an original user-supplied input with the display host
// chosen for it (reverse-lookup result, or a fallback to the input/IP
// itself).
type Label struct {
	Input       string
	DisplayHost string
}

// Outcome is one record emitted per destination per sweep.
type Outcome struct {
	IP           string
	Host         string
	Sequence     SequenceNumber
	TimeSent     time.Time
	TimeReceived time.Time
	RTT          time.Duration
	Size         int
	Type         int
	Code         int
	Error        string
	HasError     bool
	HasRTT       bool

	// Annotations populated only once the stream passes through Stats.
	MinTime    time.Duration
	MaxTime    time.Duration
	AvgTime    time.Duration
	Loss       float64
	NBOk       int
	NBErrors   int
	NBRequests int
	AccumTime  time.Duration
	HasStats   bool
}

// reply is the decoded payload of one received ICMP echo reply, prior to
// being matched against a sweep's pending set.
type reply struct {
	peerIP   string
	typ      int
	code     int
	id       uint16
	sequence SequenceNumber
	timeSent time.Time
	size     int
}

// request groups the fields an encoded Echo Request carries. Nothing in
// the package or its tests constructs one; the codec round-trip tests
// compare decoded reply fields directly.
type request struct {
	family   Family
	id       uint16
	sequence SequenceNumber
	timeSent time.Time
}
