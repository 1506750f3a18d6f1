package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrubIPv6(t *testing.T) {
	t.Run("flat list", func(t *testing.T) {
		in, err := Parse([]byte(`[{"ipType":"IPv6","ipAddress":"::1"},{"ipType":"IPv4","ipAddress":"1.2.3.4"}]`))
		require.NoError(t, err)

		want, err := Parse([]byte(`[{"ipType":"IPv4","ipAddress":"1.2.3.4"}]`))
		require.NoError(t, err)

		if diff := cmp.Diff(want.Raw(), ScrubIPv6(in).Raw()); diff != "" {
			t.Errorf("ScrubIPv6 mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nested topology", func(t *testing.T) {
		in, err := Parse([]byte(`{
			"model": "CGA4233",
			"online": true,
			"clients": [
				{"name": "laptop", "ipAddresses": [
					{"ipType": "IPv6", "ipAddress": "fe80::1"},
					{"ipType": "IPv6", "ipAddress": "2a02::2"},
					{"ipType": "IPv4", "ipAddress": "192.168.0.10"}
				]},
				{"name": "tv", "wired": {"ipAddresses": [{"ipType": "IPv6", "ipAddress": "fe80::2"}]}}
			],
			"empty": []
		}`))
		require.NoError(t, err)

		want, err := Parse([]byte(`{
			"model": "CGA4233",
			"online": true,
			"clients": [
				{"name": "laptop", "ipAddresses": [{"ipType": "IPv4", "ipAddress": "192.168.0.10"}]},
				{"name": "tv", "wired": {"ipAddresses": []}}
			],
			"empty": []
		}`))
		require.NoError(t, err)

		if diff := cmp.Diff(want.Raw(), ScrubIPv6(in).Raw()); diff != "" {
			t.Errorf("ScrubIPv6 mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("entry without address is kept", func(t *testing.T) {
		in := Of([]any{map[string]any{"ipType": "IPv6"}})
		assert.Equal(t, 1, ScrubIPv6(in).Len())
	})

	t.Run("input untouched", func(t *testing.T) {
		in, err := Parse([]byte(`[{"ipType":"IPv6","ipAddress":"::1"}]`))
		require.NoError(t, err)
		out := ScrubIPv6(in)
		assert.Equal(t, 0, out.Len())
		assert.Equal(t, 1, in.Len())
	})

	t.Run("scalars", func(t *testing.T) {
		assert.Equal(t, "x", ScrubIPv6(Of("x")).Str())
		assert.True(t, ScrubIPv6(Value{}).IsNull())
	})
}
