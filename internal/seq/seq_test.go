package seq

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBetweenRotationInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		a := r.Uint32()
		k := uint32(1 + r.Intn((1<<31)-1))
		b := a + 1 + uint32(r.Intn(1<<20))
		c := a + k

		want := Between(a, b, c)
		rot := uint32(r.Intn(1 << 20))
		got := Between(a+rot, b+rot, c+rot)
		require.Equal(t, want, got, "Between should be rotation-invariant")
	}
}

func TestLeqAndLtAgree(t *testing.T) {
	require.True(t, Leq(100, 100))
	require.True(t, Leq(100, 101))
	require.False(t, Leq(101, 100))
	require.True(t, Lt(100, 101))
	require.False(t, Lt(100, 100))
}

func TestLeqWrapsAroundSpace(t *testing.T) {
	var maxU32 uint32 = 1<<32 - 1
	require.True(t, Leq(maxU32, 0))
	require.True(t, Lt(maxU32, 0))
	require.False(t, Lt(0, maxU32))
}

func TestWindowAcceptableEmpty(t *testing.T) {
	w := Window{Start: 1006, Size: 10}
	require.True(t, w.AcceptableEmpty(1006))
	require.True(t, w.AcceptableEmpty(1010))
	require.False(t, w.AcceptableEmpty(2000))

	zero := Window{Start: 1006, Size: 0}
	require.True(t, zero.AcceptableEmpty(1006))
	require.False(t, zero.AcceptableEmpty(1007))
}

func TestWindowAcceptableNonEmptyOutOfWindowDrop(t *testing.T) {
	// Mirrors the seed scenario: recv.nxt=1006, recv.wnd=10, segment at
	// seq=2000 must be rejected.
	w := Window{Start: 1006, Size: 10}
	require.False(t, w.AcceptableNonEmpty(2000, 5))
	require.True(t, w.AcceptableNonEmpty(1006, 5))
	require.True(t, w.AcceptableNonEmpty(1004, 5)) // overlaps window tail
}
