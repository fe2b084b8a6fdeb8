// echosweep — a concurrent ICMP sweep tool: one socket, many
// destinations, one Echo Request per destination per sweep.
//
// Usage:
//
//	sudo echosweep [flags] <host|cidr> [<host|cidr> ...]
//
// Flags:
//
//	-c int              Number of sweeps to run (0 = infinite, default 0)
//	-i duration         Interval between sweeps (default 1s)
//	-w duration         Per-sweep reply timeout (default 2s)
//	--strict-interval   Pace sweeps against a fixed phase instead of a fixed gap
//	--async             Use the cooperative, readiness-driven engine
//	--log-level string  One of panic/fatal/error/warn/info/debug/trace (default "warn")
//
// Example:
//
//	sudo echosweep -c 5 -i 500ms 10.0.0.0/28 example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ravvdevv/echosweep/internal/cidrexpand"
	"github.com/ravvdevv/echosweep/internal/icmp"
)

func main() {
	count := flag.Int("c", 0, "number of sweeps to run (0 = infinite)")
	interval := flag.Duration("i", time.Second, "interval between sweeps")
	timeout := flag.Duration("w", 2*time.Second, "per-sweep reply timeout")
	strict := flag.Bool("strict-interval", false, "pace sweeps against a fixed phase instead of a fixed gap")
	async := flag.Bool("async", false, "use the cooperative, readiness-driven engine")
	family6 := flag.Bool("6", false, "resolve and ping over IPv6")
	logLevel := flag.String("log-level", "warn", "panic|fatal|error|warn|info|debug|trace")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: echosweep [flags] <host|cidr> [<host|cidr> ...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	targets := flag.Args()
	if len(targets) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echosweep: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(level)
	entry := log.WithField("component", "icmp")

	inputs, err := expandTargets(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echosweep: %v\n", err)
		os.Exit(1)
	}

	family := icmp.FamilyV4
	if *family6 {
		family = icmp.FamilyV6
	}

	engine := icmp.New(
		icmp.WithFamily(family),
		icmp.WithInterval(*interval),
		icmp.WithTimeout(*timeout),
		icmp.WithCount(*count),
		icmp.WithStrictInterval(*strict),
		icmp.WithLogger(entry),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		fmt.Println()
		cancel()
	}()

	var results <-chan icmp.Outcome
	if *async {
		results = engine.PingAsync(ctx, inputs)
	} else {
		results = engine.Ping(ctx, inputs)
	}

	stats := icmp.NewStats()
	for o := range stats.Annotate(results) {
		printOutcome(o)
	}

	fmt.Println()
	for _, line := range stats.Summaries() {
		fmt.Println(line)
	}
}

func expandTargets(targets []string) ([]string, error) {
	var out []string
	for _, t := range targets {
		if !strings.Contains(t, "/") {
			out = append(out, t)
			continue
		}
		hosts, err := cidrexpand.Expand(t)
		if err != nil {
			return nil, err
		}
		out = append(out, hosts...)
	}
	return out, nil
}

func printOutcome(o icmp.Outcome) {
	switch {
	case o.HasError:
		fmt.Printf("%-32s seq=%-5d error=%s\n", o.Host, uint16(o.Sequence), o.Error)
	case o.HasRTT:
		fmt.Printf("%-32s seq=%-5d time=%s\n", o.Host, uint16(o.Sequence), fmtRTT(o.RTT))
	}
}

func fmtRTT(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
