package icmp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// ICMP types per RFC 792 / RFC 4443.
const (
	typeEchoReplyV4   = 0
	typeDestUnreach   = 3
	typeEchoRequestV4 = 8
	typeEchoRequestV6 = 128
	typeEchoReplyV6   = 129
)

// errorCodeTable is the RFC 792 Destination Unreachable code table. The
// engine only uses it for reporting (spec C1).
var errorCodeTable = map[int]string{
	0:  "Destination network unreachable",
	1:  "Destination host unreachable",
	2:  "Destination protocol unreachable",
	3:  "Destination port unreachable",
	4:  "Fragmentation required",
	5:  "Source route failed",
	6:  "Destination network unknown",
	7:  "Destination host unknown",
	8:  "Source host isolated",
	9:  "Network administratively prohibited",
	10: "Host administratively prohibited",
	11: "Network unreachable for ToS",
	12: "Host unreachable for ToS",
	13: "Communication administratively prohibited",
	14: "Host Precedence Violation",
	15: "Precedence cutoff in effect",
}

// Classify returns the RFC 792 reason for a Destination Unreachable
// (type 3) code, and false if typ isn't that type or the code is unknown.
func Classify(typ, code int) (string, bool) {
	if typ != typeDestUnreach {
		return "", false
	}
	reason, ok := errorCodeTable[code]
	return reason, ok
}

// WrongTypeError is returned by decodeReply when the packet isn't an
// echo reply of the expected family. Most are simply ignored (spec §7);
// a Destination Unreachable (Type 3) is the one case the sweep engine
// surfaces to the caller, via Classify(Type, Code).
type WrongTypeError struct {
	Type int
	Code int
}

func (e *WrongTypeError) Error() string {
	if reason, ok := Classify(e.Type, e.Code); ok {
		return reason
	}
	return fmt.Sprintf("wrong ICMP type: %d", e.Type)
}

// encodeRequest builds a bit-exact 64-octet Echo Request:
//
//	type(1) code(1) checksum(2) id(2) seq(2) time_sent(8, float64 LE) pad(48, 'Q')
//
// now must come from a monotonic clock reading; its only use is RTT
// subtraction within the same process.
func encodeRequest(family Family, id WireId, seq SequenceNumber, now time.Time) []byte {
	buf := make([]byte, RequestSize)

	typ := byte(typeEchoRequestV4)
	if family == FamilyV6 {
		typ = typeEchoRequestV6
	}
	buf[0] = typ
	buf[1] = 0 // code
	// buf[2:4] checksum, patched below
	binary.BigEndian.PutUint16(buf[4:6], uint16(id))
	binary.BigEndian.PutUint16(buf[6:8], uint16(seq))

	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(monotonicSeconds(now)))

	for i := 16; i < RequestSize; i++ {
		buf[i] = TimestampPaddingByte
	}

	csum := checksum(buf)
	binary.BigEndian.PutUint16(buf[2:4], csum)

	return buf
}

// decodeReply parses a received Echo Reply. hasOuterIPHeader tells the
// decoder to skip a prepended 20-byte IPv4 header first (spec §4.1/§4.2).
func decodeReply(b []byte, hasOuterIPHeader bool) (reply, error) {
	off := 0
	if hasOuterIPHeader {
		off = IPv4HeaderSize
	}
	if len(b) < off+2 {
		return reply{}, fmt.Errorf("short packet: %d bytes", len(b))
	}

	typ := int(b[off])
	code := int(b[off+1])
	if typ != typeEchoReplyV4 && typ != typeEchoReplyV6 {
		return reply{}, &WrongTypeError{Type: typ, Code: code}
	}
	if len(b) < off+RequestSize {
		return reply{}, fmt.Errorf("short echo reply: %d bytes", len(b))
	}

	id := binary.BigEndian.Uint16(b[off+4 : off+6])
	seq := SequenceNumber(binary.BigEndian.Uint16(b[off+6 : off+8]))
	secs := math.Float64frombits(binary.LittleEndian.Uint64(b[off+8 : off+16]))

	return reply{
		typ:      typ,
		code:     code,
		id:       id,
		sequence: seq,
		timeSent: monotonicEpoch.Add(durationFromSeconds(secs)),
		size:     len(b) - off,
	}, nil
}

// checksum computes the RFC 1071 16-bit ones-complement checksum over b.
// Odd-length buffers are padded with a trailing zero byte.
func checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// validateChecksum returns true iff the RFC 1071 checksum of the whole
// buffer (header checksum field included) folds to zero, the codec
// round-trip invariant from spec §3/§8.
func validateChecksum(b []byte) bool {
	return checksum(b) == 0
}
