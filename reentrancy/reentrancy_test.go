package reentrancy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterLeaveNormalChain(t *testing.T) {
	g := New()

	require.False(t, g.Enter(1, "a"))
	require.False(t, g.Enter(1, "b"))
	require.Equal(t, 2, g.Depth(1))

	g.Leave(1, "b")
	g.Leave(1, "a")
	require.Equal(t, 0, g.Depth(1))
}

func TestEnterDetectsImmediateSelfCall(t *testing.T) {
	g := New()

	require.False(t, g.Enter(7, "a"))
	require.True(t, g.Enter(7, "a"))

	require.Equal(t, 1, g.Depth(7))

	g.Leave(7, "a")
	require.Equal(t, 0, g.Depth(7))
}

func TestEnterAllowsNonAdjacentRepeat(t *testing.T) {
	g := New()

	require.False(t, g.Enter(3, "a"))
	require.False(t, g.Enter(3, "b"))
	// a is not reentrant here because b is on top: A -> B -> A is
	// transitive reentrancy, which this package deliberately does not catch.
	require.False(t, g.Enter(3, "a"))
	require.Equal(t, 3, g.Depth(3))
}

func TestLeaveOnEmptyChainIsNoop(t *testing.T) {
	g := New()
	g.Leave(99, "ghost")
	require.Equal(t, 0, g.Depth(99))
}

func TestChainsAreIndependent(t *testing.T) {
	g := New()

	require.False(t, g.Enter(1, "a"))
	require.False(t, g.Enter(2, "a"))
	require.Equal(t, 1, g.Depth(1))
	require.Equal(t, 1, g.Depth(2))
}
