package hashutil_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sb4client/safebrowsing4/internal/hashutil"
)

func TestSum(t *testing.T) {
	want := sha256.Sum256([]byte("example.com/"))
	got := hashutil.Sum("example.com/")

	assert.Equal(t, hashutil.FullHash(want), got)
}

func TestFullHash_Prefix(t *testing.T) {
	h := hashutil.Sum("example.com/")

	p4 := h.Prefix(4)
	assert.Len(t, p4, 4)
	assert.Equal(t, string(h.Bytes()[:4]), p4)

	p32 := h.Prefix(32)
	assert.Equal(t, h.String(), p32)
}

func TestFullHash_Prefix_PanicsOutOfRange(t *testing.T) {
	h := hashutil.Sum("example.com/")

	assert.Panics(t, func() { h.Prefix(3) })
	assert.Panics(t, func() { h.Prefix(33) })
}

func TestFullHash_HasPrefix(t *testing.T) {
	h := hashutil.Sum("example.com/")

	assert.True(t, h.HasPrefix(h.Prefix(4)))
	assert.False(t, h.HasPrefix("not-a-real-prefix!!"))
}

func TestFullHash_String(t *testing.T) {
	h := hashutil.Sum("example.com/")
	assert.Equal(t, string(h.Bytes()), h.String())
	assert.Len(t, h.String(), sha256.Size)
}
