package icmp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"golang.org/x/net/icmp"
)

// ErrTimeout is returned by Endpoint.TryRecvOne when no packet arrives
// before the given deadline.
var ErrTimeout = errors.New("icmp: receive timeout")

// Endpoint is the single-socket transport capability the sweep engine
// (C4) drives. Both the blocking and the cooperative-async variant (C8)
// share this interface and the same sweep state machine; only how a
// receive is awaited differs (spec §9, "Two parallel code paths").
type Endpoint interface {
	// SendOne writes the whole payload to ip in a single transport
	// operation.
	SendOne(ip string, payload []byte) error
	// TryRecvOne blocks until a packet arrives or deadline passes.
	// A zero deadline means wait forever.
	TryRecvOne(deadline time.Time) (payload []byte, peerIP string, err error)
	// ReadinessFD exposes the underlying socket descriptor for an
	// external readiness multiplexer (used only by the async variant).
	ReadinessFD() (uintptr, error)
	// HasOuterIPHeader reports whether received datagrams are prefixed
	// with a 20-byte IPv4 header.
	HasOuterIPHeader() bool
	// LocalPort is the effective WireId on kernels that rewrite the
	// ICMP id to the socket's ephemeral source port (unprivileged
	// datagram ICMP on Linux).
	LocalPort() int
	// Close releases the socket.
	Close() error
}

// socketMode records which listen strategy succeeded.
type socketMode int

const (
	modeRaw socketMode = iota
	modeDatagram
)

// endpoint is the blocking Endpoint implementation: receives block the
// calling goroutine up to a deadline via the kernel, exactly the shape
// of the teacher's SetReadDeadline+ReadFrom loop.
type endpoint struct {
	family Family
	mode   socketMode
	conn   *icmp.PacketConn
}

// NewEndpoint opens a single ICMP socket for family, preferring a raw
// socket and falling back to an unprivileged datagram ("ping") socket on
// EPERM, exactly as the teacher's Pinger.SendPing does per-call and as
// the original's ICMPSocket.__init__ does once per run (spec §4.2).
func NewEndpoint(family Family) (Endpoint, error) {
	rawNet, dgramNet := "ip4:icmp", "udp4"
	if family == FamilyV6 {
		rawNet, dgramNet = "ip6:ipv6-icmp", "udp6"
	}

	conn, err := icmp.ListenPacket(rawNet, "")
	mode := modeRaw
	if err != nil {
		if !errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("listen %s: %w", rawNet, err)
		}
		conn, err = icmp.ListenPacket(dgramNet, "")
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", dgramNet, err)
		}
		mode = modeDatagram
	}

	return &endpoint{family: family, mode: mode, conn: conn}, nil
}

func (e *endpoint) SendOne(ip string, payload []byte) error {
	dst, err := destAddr(e.family, e.mode, ip)
	if err != nil {
		return err
	}
	n, err := e.conn.WriteTo(payload, dst)
	if err != nil {
		return fmt.Errorf("sendto %s: %w", ip, err)
	}
	if n != len(payload) {
		return fmt.Errorf("sendto %s: short write %d/%d", ip, n, len(payload))
	}
	return nil
}

func (e *endpoint) TryRecvOne(deadline time.Time) ([]byte, string, error) {
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, "", fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, 1500)
	n, peer, err := e.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, "", ErrTimeout
		}
		return nil, "", fmt.Errorf("recvfrom: %w", err)
	}
	return buf[:n], peerHost(peer), nil
}

// ReadinessFD is not supported by the blocking endpoint: golang.org/x/net/icmp
// does not expose the underlying socket descriptor, and the blocking
// variant never needs one (its suspension point is TryRecvOne itself).
// The async variant (C8) uses a separate Endpoint implementation built
// directly on golang.org/x/sys/unix raw syscalls for exactly this reason.
func (e *endpoint) ReadinessFD() (uintptr, error) {
	return 0, errors.New("icmp: readiness fd not supported by the blocking endpoint")
}

func (e *endpoint) HasOuterIPHeader() bool {
	return e.mode == modeRaw || runtime.GOOS != "linux"
}

func (e *endpoint) LocalPort() int {
	switch addr := e.conn.LocalAddr().(type) {
	case *net.UDPAddr:
		return addr.Port
	default:
		return 0
	}
}

func (e *endpoint) Close() error {
	return e.conn.Close()
}

func destAddr(family Family, mode socketMode, ip string) (net.Addr, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP literal: %q", ip)
	}
	if mode == modeRaw {
		return &net.IPAddr{IP: parsed}, nil
	}
	return &net.UDPAddr{IP: parsed}, nil
}

func peerHost(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	default:
		return addr.String()
	}
}
