package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/canonical"
)

func TestParse_HostForms(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{{
		name: "decimal",
		in:   "http://3279880203/",
		want: "195.127.0.11",
	}, {
		name: "octal",
		in:   "http://0301.0177.0.013/",
		want: "193.127.0.11",
	}, {
		name: "hex",
		in:   "http://0xC0A80001/",
		want: "192.168.0.1",
	}, {
		name: "dotted_hex",
		in:   "http://0x18.0x11.0x17.0x1/",
		want: "24.17.23.1",
	}, {
		name: "three_segment_form",
		in:   "http://192.0x0.0x101/",
		want: "192.0.1.1",
	}, {
		name: "mixed_case_host",
		in:   "http://ExAmPlE.COM/",
		want: "example.com",
	}, {
		name: "trailing_dot",
		in:   "http://example.com./",
		want: "example.com",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := canonical.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.Host)
		})
	}
}
