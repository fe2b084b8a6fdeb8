package icmp

import (
	"context"
	"fmt"
	"net"

	"github.com/alitto/pond/v2"
	"github.com/cornelk/hashmap"
)

// resolution is one memoized (input, family) lookup result.
type resolution struct {
	ip          string
	displayHost string
	err         string
}

// memo is the process-wide, append-only, idempotent-insert memoization
// table required by spec §5/§9: "global memoization of DNS... no TTL is
// intended by design." cornelk/hashmap is a lock-free concurrent map, so
// concurrent GetOrInsert calls from the async resolver's worker pool
// race safely onto the same (harmless, since resolution is pure) value.
var memo = hashmap.New[string, resolution]()

func memoKey(input string, family Family) string {
	return fmt.Sprintf("%s|%s", input, family)
}

// Resolve maps each input (host name, IPv4/IPv6 literal) to a canonical
// destination IP plus display host, collapsing duplicates while
// preserving every originating input for reporting (spec §4.3).
//
// Inputs are resolved sequentially in insertion order: the blocking
// variant's resolver has no need for concurrency, and sequential order
// makes failures deterministic to test.
func Resolve(inputs []string, family Family) (addrMap map[string][]Label, errs map[string]string) {
	addrMap = map[string][]Label{}
	errs = map[string]string{}

	for _, input := range inputs {
		res := resolveOne(input, family)
		if res.err != "" {
			errs[input] = res.err
			continue
		}
		addrMap[res.ip] = append(addrMap[res.ip], Label{Input: input, DisplayHost: res.displayHost})
	}
	return addrMap, errs
}

// ResolveAsync is the concurrent counterpart used by the async variant
// (C8): every input is dispatched to an independent worker-pool task,
// and per-input failures are captured without cancelling the others
// (spec §4.8), grounded on original_source/yaping/socket.py's
// async_resolve_addresses TaskGroup fan-out.
func ResolveAsync(ctx context.Context, inputs []string, family Family) (addrMap map[string][]Label, errs map[string]string) {
	type result struct {
		input string
		res   resolution
	}

	concurrency := len(inputs)
	if concurrency > 32 {
		concurrency = 32
	}
	if concurrency < 1 {
		concurrency = 1
	}

	pool := pond.NewPool(concurrency)
	defer pool.StopAndWait()

	results := make(chan result, len(inputs))
	group := pool.NewGroup()
	for _, input := range inputs {
		input := input
		group.Submit(func() {
			select {
			case <-ctx.Done():
				results <- result{input: input, res: resolution{err: ctx.Err().Error()}}
			default:
				results <- result{input: input, res: resolveOne(input, family)}
			}
		})
	}
	group.Wait()
	close(results)

	addrMap = map[string][]Label{}
	errs = map[string]string{}
	for r := range results {
		if r.res.err != "" {
			errs[r.input] = r.res.err
			continue
		}
		addrMap[r.res.ip] = append(addrMap[r.res.ip], Label{Input: r.input, DisplayHost: r.res.displayHost})
	}
	return addrMap, errs
}

func resolveOne(input string, family Family) resolution {
	key := memoKey(input, family)
	if v, ok := memo.Get(key); ok {
		return v
	}

	res := doResolve(input, family)
	actual, _ := memo.GetOrInsert(key, res)
	return actual
}

func doResolve(input string, family Family) resolution {
	if ip := net.ParseIP(input); ip != nil {
		if !matchesFamily(ip, family) {
			return resolution{err: fmt.Sprintf("%s: address family mismatch", input)}
		}
		display := input
		if names, err := net.LookupAddr(input); err == nil && len(names) > 0 {
			display = names[0]
		}
		return resolution{ip: input, displayHost: display}
	}

	addrs, err := net.LookupIP(input)
	if err != nil {
		return resolution{err: err.Error()}
	}
	for _, addr := range addrs {
		if matchesFamily(addr, family) {
			return resolution{ip: addr.String(), displayHost: input}
		}
	}
	return resolution{err: fmt.Sprintf("%s: no address of the requested family", input)}
}

func matchesFamily(ip net.IP, family Family) bool {
	if family == FamilyV4 {
		return ip.To4() != nil
	}
	return ip.To4() == nil && ip.To16() != nil
}
