package icmp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainOutcomes(ch <-chan Outcome, timeout time.Duration) []Outcome {
	var got []Outcome
	deadline := time.After(timeout)
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, o)
		case <-deadline:
			return got
		}
	}
}

func TestPingAllInputsUnresolvableNeverOpensASocket(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(1))
	e.newEndpoint = func(Family) (Endpoint, error) {
		t.Fatal("no IP resolved successfully, the engine must not open a socket")
		return nil, nil
	}

	got := drainOutcomes(e.Ping(context.Background(), []string{"::1"}), time.Second)
	require.Len(t, got, 1)
	assert.True(t, got[0].HasError)
	assert.Equal(t, "::1", got[0].IP)
	assert.Equal(t, "::1", got[0].Host)
}

func TestPingHappyPathFansOutToEveryLabel(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(1), WithWireID(42))
	ep := newFakeEndpoint()
	seq := SequenceNumber(1)
	ep.queue = []fakeReply{{payload: replyPacket(FamilyV4, 42, seq), peerIP: "10.0.0.1"}}
	e.newEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	got := drainOutcomes(e.Ping(context.Background(), []string{"10.0.0.1", "10.0.0.1"}), time.Second)

	require.Len(t, got, 2, "two inputs resolving to the same IP must each get their own Outcome")
	for _, o := range got {
		assert.True(t, o.HasRTT)
		assert.Equal(t, "10.0.0.1", o.IP)
	}
}

func TestPingStopsOnFatalSocketError(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithCount(5))
	ep := &fatalEndpoint{fakeEndpoint: newFakeEndpoint()}
	e.newEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	got := drainOutcomes(e.Ping(context.Background(), []string{"10.0.0.1"}), time.Second)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.HasError)
}

// fatalEndpoint times out once (letting the sweep's first recv proceed
// normally) is unnecessary here: the very first recv returns a fatal,
// non-ErrTimeout error, which must end the stream after one sweep.
type fatalEndpoint struct {
	*fakeEndpoint
}

func (f *fatalEndpoint) TryRecvOne(deadline time.Time) ([]byte, string, error) {
	return nil, "", assertSendErr
}

func TestPingRespectsContextCancellation(t *testing.T) {
	e := New(WithFamily(FamilyV4), WithInterval(time.Hour)) // unbounded count, long gap
	ep := newFakeEndpoint()
	e.newEndpoint = func(Family) (Endpoint, error) { return ep, nil }

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Ping(ctx, []string{"10.0.0.1"})

	// Let the first (timed-out) sweep complete, then cancel before the
	// hour-long pacer gap would otherwise elapse.
	<-ch
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "the channel must close once the pacer observes cancellation")
}
