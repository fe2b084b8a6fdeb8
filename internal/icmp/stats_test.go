package icmp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAnnotateAccumulates(t *testing.T) {
	in := make(chan Outcome, 4)
	in <- Outcome{IP: "10.0.0.1", Host: "10.0.0.1", HasRTT: true, RTT: 10 * time.Millisecond}
	in <- Outcome{IP: "10.0.0.1", Host: "10.0.0.1", HasRTT: true, RTT: 30 * time.Millisecond}
	in <- Outcome{IP: "10.0.0.1", Host: "10.0.0.1", HasError: true, Error: "timeout"}
	close(in)

	stats := NewStats()
	var last Outcome
	for o := range stats.Annotate(in) {
		require.True(t, o.HasStats)
		last = o
	}

	assert.Equal(t, 3, last.NBRequests)
	assert.Equal(t, 2, last.NBOk)
	assert.Equal(t, 1, last.NBErrors)
	assert.Equal(t, 10*time.Millisecond, last.MinTime)
	assert.Equal(t, 30*time.Millisecond, last.MaxTime)
	assert.Equal(t, 20*time.Millisecond, last.AvgTime)
	assert.InDelta(t, 0.333, last.Loss, 0.001)
}

func TestStatsSummaryFormatsLikeClassicPing(t *testing.T) {
	stats := NewStats()
	in := make(chan Outcome, 2)
	in <- Outcome{IP: "10.0.0.1", Host: "router", HasRTT: true, RTT: 5 * time.Millisecond}
	in <- Outcome{IP: "10.0.0.1", Host: "router", HasRTT: true, RTT: 15 * time.Millisecond}
	close(in)
	for range stats.Annotate(in) {
	}

	summary := stats.Summary("10.0.0.1")
	assert.Contains(t, summary, "2 packets transmitted")
	assert.Contains(t, summary, "2 received")
	assert.Contains(t, summary, "0% packet loss")
}

func TestStatsSummaryUnknownIP(t *testing.T) {
	stats := NewStats()
	assert.Contains(t, stats.Summary("203.0.113.1"), "no data")
}

func TestStatsSummariesOneLinePerDestination(t *testing.T) {
	stats := NewStats()
	in := make(chan Outcome, 2)
	in <- Outcome{IP: "10.0.0.1", Host: "a", HasRTT: true, RTT: time.Millisecond}
	in <- Outcome{IP: "10.0.0.2", Host: "b", HasRTT: true, RTT: time.Millisecond}
	close(in)
	for range stats.Annotate(in) {
	}

	assert.Len(t, stats.Summaries(), 2)
}
