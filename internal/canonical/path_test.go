package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/canonical"
)

func TestParse_PathForms(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{{
		name: "empty_path",
		in:   "http://example.com",
		want: "/",
	}, {
		name: "dot_segment",
		in:   "http://example.com/a/./b",
		want: "/a/b",
	}, {
		name: "dot_dot_at_root",
		in:   "http://example.com/../a",
		want: "/a",
	}, {
		name: "trailing_dot_segments_collapse_to_root",
		in:   "http://example.com/a/../",
		want: "/",
	}, {
		name: "double_slash_collapses",
		in:   "http://example.com/a//b",
		want: "/a/b",
	}, {
		name: "preserves_trailing_slash",
		in:   "http://example.com/a/b/",
		want: "/a/b/",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := canonical.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.Path)
		})
	}
}
