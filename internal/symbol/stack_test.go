package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marselester/kperf/internal/pmutypes"
)

func TestArenaInternDedupesSharedSuffix(t *testing.T) {
	a := NewArena()

	stackA := []pmutypes.Symbol{{Addr: 1}, {Addr: 2}, {Addr: 3}}
	stackB := []pmutypes.Symbol{{Addr: 9}, {Addr: 2}, {Addr: 3}}

	idA := a.Intern(7, stackA)
	idB := a.Intern(7, stackB)

	require.NotEqual(t, idA, idB)
	// Both chains share the {2,3} root-ward suffix, so the arena should only
	// hold 4 distinct nodes (1, 2, 3, 9), not 6.
	assert.Equal(t, 4, a.Len())

	got := a.Frames(idA)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].Addr)
	assert.Equal(t, uint64(2), got[1].Addr)
	assert.Equal(t, uint64(3), got[2].Addr)
}

func TestArenaInternScopesByPid(t *testing.T) {
	a := NewArena()

	stack := []pmutypes.Symbol{{Addr: 1}, {Addr: 2}, {Addr: 3}}

	idPid1 := a.Intern(1, stack)
	idPid2 := a.Intern(2, stack)

	// Identical ip-chains from different pids must never collapse onto the
	// same node, even though every edge matches.
	assert.NotEqual(t, idPid1, idPid2)
	assert.Equal(t, 6, a.Len())
}

func TestArenaInternEmptyStack(t *testing.T) {
	a := NewArena()
	id := a.Intern(1, nil)
	assert.Equal(t, noStack, id)
	assert.Nil(t, a.Frames(id))
}
