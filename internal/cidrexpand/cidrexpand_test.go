package cidrexpand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandIncludesNetworkAndBroadcast(t *testing.T) {
	got, err := Expand("192.0.2.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.0", "192.0.2.1", "192.0.2.2", "192.0.2.3"}, got)
}

func TestExpandSlash31KeepsBothAddresses(t *testing.T) {
	got, err := Expand("192.0.2.0/31")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.0", "192.0.2.1"}, got)
}

func TestExpandSlash32IsTheSingleHost(t *testing.T) {
	got, err := Expand("192.0.2.5/32")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.5"}, got)
}

func TestExpandIPv6(t *testing.T) {
	got, err := Expand("2001:db8::/126")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestExpandInvalidCIDR(t *testing.T) {
	_, err := Expand("not-a-cidr")
	assert.Error(t, err)
}
