package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/canonical"
)

func TestExpressions(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want []string
	}{{
		name: "host_and_path_cross_product",
		in:   "http://a.b.c/1/2.html?param=1",
		want: []string{
			"a.b.c/1/2.html?param=1",
			"a.b.c/1/2.html",
			"a.b.c/",
			"a.b.c/1/",
			"b.c/1/2.html?param=1",
			"b.c/1/2.html",
			"b.c/",
			"b.c/1/",
		},
	}, {
		name: "ipv4_host_only_itself",
		in:   "http://1.2.3.4/1/",
		want: []string{
			"1.2.3.4/1/",
			"1.2.3.4/",
		},
	}, {
		name: "five_label_suffixes",
		in:   "http://a.b.c.d.e.f.g/1.html",
		want: nil, // checked by length and membership below.
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := canonical.Parse(tc.in)
			require.NoError(t, err)

			got := canonical.Expressions(u)

			if tc.want != nil {
				assert.ElementsMatch(t, tc.want, got)
			}
		})
	}
}

func TestExpressions_SevenLabelHost(t *testing.T) {
	u, err := canonical.Parse("http://a.b.c.d.e.f.g/1.html")
	require.NoError(t, err)

	got := canonical.Expressions(u)
	assert.Len(t, got, 10)

	wantHostSuffixes := []string{
		"a.b.c.d.e.f.g",
		"f.g",
		"e.f.g",
		"d.e.f.g",
		"c.d.e.f.g",
	}
	for _, h := range wantHostSuffixes {
		assert.Contains(t, got, h+"/1.html")
		assert.Contains(t, got, h+"/")
	}
}

func TestExpressions_Deduplicated(t *testing.T) {
	u, err := canonical.Parse("http://example.com/")
	require.NoError(t, err)

	got := canonical.Expressions(u)
	seen := make(map[string]struct{}, len(got))
	for _, e := range got {
		_, dup := seen[e]
		assert.False(t, dup, "duplicate expression %q", e)
		seen[e] = struct{}{}
	}
}
