//go:build !windows

package icmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by asyncEndpoint.ReadNonBlocking when no
// datagram is queued yet.
var ErrWouldBlock = errors.New("icmp: would block")

// asyncPacket is one item pushed onto the channel Listen returns:
// either a successfully received datagram, or a terminal receive error
// that ends the readiness loop.
type asyncPacket struct {
	payload []byte
	peerIP  string
	err     error
}

// pollQuantum bounds each readiness wait in Listen so the loop rechecks
// ctx at a steady cadence instead of blocking indefinitely inside one
// poll(2) call.
const pollQuantum = 100 * time.Millisecond

// Listen starts the readiness-callback loop spec §4.8 describes: it
// polls ReadinessFD() for readability and, on each notification, makes
// one non-blocking ReadNonBlocking read, pushing the result onto the
// returned channel — the cooperative queue the async sweeper's recvFunc
// consumes from (async.go). The loop exits and closes the channel when
// ctx is cancelled or the endpoint reports a fatal error.
func (e *asyncEndpoint) Listen(ctx context.Context) <-chan asyncPacket {
	out := make(chan asyncPacket)
	go func() {
		defer close(out)

		fd, err := e.ReadinessFD()
		if err != nil {
			select {
			case out <- asyncPacket{err: err}:
			case <-ctx.Done():
			}
			return
		}

		for {
			if ctx.Err() != nil {
				return
			}

			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
			n, perr := unix.Poll(fds, int(pollQuantum/time.Millisecond))
			if errors.Is(perr, unix.EINTR) {
				continue
			}
			if perr != nil {
				select {
				case out <- asyncPacket{err: fmt.Errorf("poll: %w", perr)}:
				case <-ctx.Done():
				}
				return
			}
			if n == 0 {
				continue // readiness quantum elapsed with nothing pending; recheck ctx
			}

			payload, peerIP, rerr := e.ReadNonBlocking()
			if errors.Is(rerr, ErrWouldBlock) {
				continue
			}
			select {
			case out <- asyncPacket{payload: payload, peerIP: peerIP, err: rerr}:
			case <-ctx.Done():
				return
			}
			if rerr != nil {
				return // fatal recv error: the readiness loop itself ends
			}
		}
	}()
	return out
}

// asyncEndpoint is the readiness-driven Endpoint implementation used by
// the cooperative variant (C8). It is built directly on raw syscalls
// instead of golang.org/x/net/icmp so that the socket's file descriptor
// can be put in non-blocking mode and handed to an external readiness
// loop, following the raw-socket pattern in the pack's ICMP scanners
// (send via syscall, poll for readiness, non-blocking recv) rather than
// Go's net package, whose internal runtime poller already owns the fd
// and cannot be safely shared with a second, external one.
type asyncEndpoint struct {
	family Family
	mode   socketMode
	fd     int
}

// NewAsyncEndpoint opens a non-blocking ICMP socket for family, with the
// same raw-then-datagram fallback as NewEndpoint.
func NewAsyncEndpoint(family Family) (*asyncEndpoint, error) {
	domain := unix.AF_INET
	proto := unix.IPPROTO_ICMP
	if family == FamilyV6 {
		domain = unix.AF_INET6
		proto = unix.IPPROTO_ICMPV6
	}

	fd, err := unix.Socket(domain, unix.SOCK_RAW, proto)
	mode := modeRaw
	if err != nil {
		if !errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("socket(raw): %w", err)
		}
		fd, err = unix.Socket(domain, unix.SOCK_DGRAM, proto)
		if err != nil {
			return nil, fmt.Errorf("socket(dgram): %w", err)
		}
		mode = modeDatagram
	}

	var sa unix.Sockaddr
	if family == FamilyV6 {
		sa = &unix.SockaddrInet6{}
	} else {
		sa = &unix.SockaddrInet4{}
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}

	return &asyncEndpoint{family: family, mode: mode, fd: fd}, nil
}

func (e *asyncEndpoint) SendOne(ip string, payload []byte) error {
	sa, err := unixSockaddr(e.family, ip)
	if err != nil {
		return err
	}
	if err := unix.Sendto(e.fd, payload, 0, sa); err != nil {
		return fmt.Errorf("sendto %s: %w", ip, err)
	}
	return nil
}

// TryRecvOne polls the socket until deadline (a zero Time blocks
// forever) then performs one recv. It exists so asyncEndpoint also
// satisfies Endpoint standalone (e.g. in tests that don't drive a
// readiness loop); PingAsync itself drives receives through Listen,
// which polls this same fd via ReadinessFD and reads with
// ReadNonBlocking instead of calling this method.
func (e *asyncEndpoint) TryRecvOne(deadline time.Time) ([]byte, string, error) {
	timeoutMs := -1
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			timeoutMs = 0
		} else {
			timeoutMs = int(remaining/time.Millisecond) + 1
		}
	}

	for {
		fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return nil, "", ErrTimeout
		}
		break
	}

	return e.recv()
}

// ReadNonBlocking performs one non-blocking recv, meant to be called
// only after the readiness loop observed the fd readable.
func (e *asyncEndpoint) ReadNonBlocking() ([]byte, string, error) {
	return e.recv()
}

func (e *asyncEndpoint) recv() ([]byte, string, error) {
	buf := make([]byte, 1500)
	n, from, err := unix.Recvfrom(e.fd, buf, 0)
	if errors.Is(err, unix.EAGAIN) {
		return nil, "", ErrWouldBlock
	}
	if err != nil {
		return nil, "", fmt.Errorf("recvfrom: %w", err)
	}
	return buf[:n], sockaddrHost(from), nil
}

func (e *asyncEndpoint) ReadinessFD() (uintptr, error) {
	return uintptr(e.fd), nil
}

func (e *asyncEndpoint) HasOuterIPHeader() bool {
	return e.mode == modeRaw || runtime.GOOS != "linux"
}

func (e *asyncEndpoint) LocalPort() int {
	sa, err := unix.Getsockname(e.fd)
	if err != nil {
		return 0
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	default:
		return 0
	}
}

func (e *asyncEndpoint) Close() error {
	return unix.Close(e.fd)
}

func unixSockaddr(family Family, ip string) (unix.Sockaddr, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP literal: %q", ip)
	}
	if family == FamilyV6 {
		a16 := parsed.To16()
		if a16 == nil {
			return nil, fmt.Errorf("not an IPv6 address: %q", ip)
		}
		var addr [16]byte
		copy(addr[:], a16)
		return &unix.SockaddrInet6{Addr: addr}, nil
	}
	a4 := parsed.To4()
	if a4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", ip)
	}
	var addr [4]byte
	copy(addr[:], a4)
	return &unix.SockaddrInet4{Addr: addr}, nil
}

func sockaddrHost(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String()
	default:
		return ""
	}
}
