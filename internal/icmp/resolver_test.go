package icmp

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIPLiteralsCollapseOntoOneEntry(t *testing.T) {
	addrMap, errs := Resolve([]string{"127.0.0.1", "127.0.0.1"}, FamilyV4)
	require.Empty(t, errs)
	require.Contains(t, addrMap, "127.0.0.1")
	assert.Len(t, addrMap["127.0.0.1"], 2, "both inputs must be preserved as separate labels")
}

func TestResolveFamilyMismatchIsAnError(t *testing.T) {
	_, errs := Resolve([]string{"::1"}, FamilyV4)
	require.Contains(t, errs, "::1")
}

func TestResolveDistinctInputsSameIPKeepDistinctLabels(t *testing.T) {
	addrMap, errs := Resolve([]string{"10.1.2.3", "10.1.2.3"}, FamilyV4)
	require.Empty(t, errs)
	labels := addrMap["10.1.2.3"]
	require.Len(t, labels, 2)
	assert.Equal(t, "10.1.2.3", labels[0].Input)
	assert.Equal(t, "10.1.2.3", labels[1].Input)
}

func TestMatchesFamily(t *testing.T) {
	assert.True(t, matchesFamily(net.ParseIP("1.2.3.4"), FamilyV4))
	assert.False(t, matchesFamily(net.ParseIP("1.2.3.4"), FamilyV6))
	assert.True(t, matchesFamily(net.ParseIP("::1"), FamilyV6))
	assert.False(t, matchesFamily(net.ParseIP("::1"), FamilyV4))
}

func TestResolveAsyncHandlesMixedInputs(t *testing.T) {
	addrMap, errs := ResolveAsync(context.Background(), []string{"127.0.0.1", "::1"}, FamilyV4)
	assert.Contains(t, addrMap, "127.0.0.1")
	assert.Contains(t, errs, "::1", "the IPv6 literal is a family mismatch under FamilyV4")
}
