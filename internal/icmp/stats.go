package icmp

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// hostStats accumulates the running counters for one destination IP.
type hostStats struct {
	host              string
	total, ok, errors int
	min, max, sum     int64 // time.Duration, nanoseconds
}

// Stats maintains per-destination RTT/loss counters across an arbitrary
// number of sweeps and annotates each Outcome as it passes through
// Annotate, the way the original tool's running summary accumulates
// across the life of a ping run rather than per-sweep.
type Stats struct {
	mu   sync.Mutex
	byIP map[string]*hostStats
}

// NewStats returns an empty statistics accumulator.
func NewStats() *Stats {
	return &Stats{byIP: map[string]*hostStats{}}
}

// Annotate wraps in, recording every Outcome into the running
// per-destination totals and stamping the annotation fields (MinTime,
// MaxTime, AvgTime, Loss, NBOk, NBErrors, NBRequests, AccumTime,
// HasStats) onto a copy before forwarding it.
func (s *Stats) Annotate(in <-chan Outcome) <-chan Outcome {
	out := make(chan Outcome)
	go func() {
		defer close(out)
		for o := range in {
			out <- s.record(o)
		}
	}()
	return out
}

func (s *Stats) record(o Outcome) Outcome {
	key := o.IP
	if key == "" {
		key = o.Host
	}

	s.mu.Lock()
	st, ok := s.byIP[key]
	if !ok {
		st = &hostStats{host: o.Host}
		s.byIP[key] = st
	}
	if o.Host != "" {
		st.host = o.Host
	}

	st.total++
	switch {
	case o.HasError:
		st.errors++
	case o.HasRTT:
		rtt := int64(o.RTT)
		st.ok++
		st.sum += rtt
		if st.ok == 1 || rtt < st.min {
			st.min = rtt
		}
		if rtt > st.max {
			st.max = rtt
		}
	}

	total, okN, errN, min, max, sum := st.total, st.ok, st.errors, st.min, st.max, st.sum
	s.mu.Unlock()

	o.NBRequests = total
	o.NBOk = okN
	o.NBErrors = errN
	o.MinTime = durationOf(min)
	o.MaxTime = durationOf(max)
	o.AccumTime = durationOf(sum)
	if okN > 0 {
		o.AvgTime = durationOf(sum / int64(okN))
	}
	if total > 0 {
		o.Loss = float64(total-okN) / float64(total)
	}
	o.HasStats = true
	return o
}

func durationOf(ns int64) time.Duration {
	return time.Duration(ns)
}

// Summary renders the running totals for ip in the same shape as the
// classic ping(8) trailer: "N packets transmitted, N received, L%
// packet loss / rtt min/max/avg (ms) = a/b/c".
func (s *Stats) Summary(ip string) string {
	s.mu.Lock()
	st, ok := s.byIP[ip]
	s.mu.Unlock()
	if !ok {
		return fmt.Sprintf("%s: no data", ip)
	}
	return formatSummary(st)
}

// Summaries renders one summary line per destination seen so far, in no
// particular order. Callers that only have the original input strings
// (hostnames, CIDR-expanded addresses) and not the resolved IPs should
// use this instead of Summary, since a hostname input may resolve to a
// display host that differs from the literal input string.
func (s *Stats) Summaries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.byIP))
	for _, st := range s.byIP {
		out = append(out, formatSummary(st))
	}
	return out
}

func formatSummary(st *hostStats) string {
	loss := 0.0
	if st.total > 0 {
		loss = float64(st.total-st.ok) / float64(st.total) * 100
	}
	avg := int64(0)
	if st.ok > 0 {
		avg = st.sum / int64(st.ok)
	}

	return fmt.Sprintf(
		"%s: %d packets transmitted, %d received, %.0f%% packet loss / rtt min/max/avg (ms) = %.3f/%.3f/%.3f",
		st.host, st.total, st.ok, loss,
		float64(st.min)/1e6, float64(st.max)/1e6, float64(avg)/1e6,
	)
}

// collector exposes the running per-destination counters as Prometheus
// gauges, following the mutex-guarded-map custom collector pattern used
// for long-lived in-process counters elsewhere in the pack.
type collector struct {
	stats *Stats
	rtt   *prometheus.Desc
	loss  *prometheus.Desc
}

// NewCollector wraps stats as a prometheus.Collector exposing
// echosweep_host_rtt_seconds and echosweep_host_loss_ratio gauges, one
// series per destination IP seen so far, labelled with the most recent
// host recorded for that IP.
func NewCollector(stats *Stats) prometheus.Collector {
	return &collector{
		stats: stats,
		rtt: prometheus.NewDesc(
			"echosweep_host_rtt_seconds",
			"Most recent average round-trip time to a destination.",
			[]string{"ip", "host"}, nil,
		),
		loss: prometheus.NewDesc(
			"echosweep_host_loss_ratio",
			"Fraction of requests to a destination that have gone unanswered.",
			[]string{"ip", "host"}, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rtt
	ch <- c.loss
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	for ip, st := range c.stats.byIP {
		avg := int64(0)
		if st.ok > 0 {
			avg = st.sum / int64(st.ok)
		}
		loss := 0.0
		if st.total > 0 {
			loss = float64(st.total-st.ok) / float64(st.total)
		}
		ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, float64(avg)/1e9, ip, st.host)
		ch <- prometheus.MustNewConstMetric(c.loss, prometheus.GaugeValue, loss, ip, st.host)
	}
}
