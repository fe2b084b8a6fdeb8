package icmp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingAsyncHappyPath(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(1), WithWireID(7))
	ep := newFakeEndpoint()
	seq := SequenceNumber(1)
	ep.queue = []fakeReply{{payload: replyPacket(FamilyV4, 7, seq), peerIP: "10.0.0.1"}}
	e.newAsyncEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	got := drainOutcomes(e.PingAsync(context.Background(), []string{"10.0.0.1"}), time.Second)

	require.Len(t, got, 1)
	assert.True(t, got[0].HasRTT)
	assert.Equal(t, "10.0.0.1", got[0].IP)
}

func TestPingAsyncSurfacesResolutionErrors(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(1))
	e.newAsyncEndpoint = func(Family) (Endpoint, error) {
		t.Fatal("no IP resolved successfully, the engine must not open a socket")
		return nil, nil
	}

	got := drainOutcomes(e.PingAsync(context.Background(), []string{"::1"}), time.Second)
	require.Len(t, got, 1)
	assert.True(t, got[0].HasError)
	assert.Equal(t, "::1", got[0].IP)
}

func TestPingAsyncStopsOnFatalSocketError(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(5))
	ep := &fatalEndpoint{fakeEndpoint: newFakeEndpoint()}
	e.newAsyncEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	got := drainOutcomes(e.PingAsync(context.Background(), []string{"10.0.0.1"}), time.Second)
	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1].HasError)
}

// listeningFakeEndpoint adds the asyncReceiver method to fakeEndpoint so
// PingAsync drives it through the Listen/listenRecv readiness path
// instead of the default TryRecvOne-based recvFunc.
type listeningFakeEndpoint struct {
	*fakeEndpoint
	packets chan asyncPacket
	sending chan struct{} // if non-nil, closed by the first SendOne
}

func (f *listeningFakeEndpoint) Listen(context.Context) <-chan asyncPacket {
	return f.packets
}

func (f *listeningFakeEndpoint) SendOne(ip string, payload []byte) error {
	if f.sending != nil {
		close(f.sending)
		f.sending = nil
	}
	return f.fakeEndpoint.SendOne(ip, payload)
}

func TestPingAsyncDrivesReceiveThroughListen(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(1), WithWireID(7))
	ep := &listeningFakeEndpoint{fakeEndpoint: newFakeEndpoint(), packets: make(chan asyncPacket, 1)}
	seq := SequenceNumber(1)
	ep.packets <- asyncPacket{payload: replyPacket(FamilyV4, 7, seq), peerIP: "10.0.0.1"}
	e.newAsyncEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	got := drainOutcomes(e.PingAsync(context.Background(), []string{"10.0.0.1"}), time.Second)

	require.Len(t, got, 1)
	assert.True(t, got[0].HasRTT)
	assert.Equal(t, "10.0.0.1", got[0].IP)
}

func TestPingAsyncHonorsCancellationMidSweep(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithTimeout(0)) // no per-sweep deadline: only ctx can end the wait
	sending := make(chan struct{})
	ep := &listeningFakeEndpoint{fakeEndpoint: newFakeEndpoint(), packets: make(chan asyncPacket), sending: sending}
	e.newAsyncEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.PingAsync(ctx, []string{"10.0.0.1"})

	<-sending // the sweep has sent its request and is about to wait for a reply
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "cancellation must end the stream without ever receiving a reply")
}
