package icmp

import "time"

// processEpoch anchors the float64 timestamps embedded in the wire
// format to this process's monotonic clock. Only differences between
// readings taken in this process are ever meaningful (spec §3, §4.1);
// the epoch itself carries no significance and is never compared across
// processes.
var processEpoch = time.Now()

// monotonicEpoch is the zero point decoded timestamps are rebuilt
// relative to.
var monotonicEpoch = processEpoch

// monotonicSeconds returns t's offset from processEpoch in seconds, the
// value embedded verbatim as the request payload's 8-byte float64.
func monotonicSeconds(t time.Time) float64 {
	return t.Sub(processEpoch).Seconds()
}

// durationFromSeconds is the inverse of the float64-seconds encoding
// used by monotonicSeconds.
func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// now returns a monotonic clock reading suitable for encoding and RTT
// arithmetic. A package-level indirection so tests can substitute a
// deterministic clock.
var now = time.Now
