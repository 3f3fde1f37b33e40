package symbol

import (
	"sync"

	"github.com/marselester/kperf/internal/pmutypes"
)

// StackID indexes one interned call stack in an Arena. Spec.md section 9
// ("Cyclic references") calls for the Call-Stack Graph to avoid chains of
// shared pointers between frames, since two stacks sharing a suffix would
// otherwise need back-references that complicate both lifetime and
// concurrent access; an arena of nodes addressed by integer index sidesteps
// that entirely — a node's "parent" is just another index into the same
// slice, never a pointer.
type StackID int32

// noStack is the sentinel for "no parent"/"empty stack", never a valid
// StackID since arena indices start at 0.
const noStack StackID = -1

type stackNode struct {
	parent StackID
	frame  pmutypes.Symbol
	depth  int
}

// Arena interns call stacks, per pid, into a shared node pool, deduplicating
// common root-ward paths the way a real profiler's stack table does: two
// samples from the same pid whose call chains agree near the root (e.g. the
// same main -> libc_start_main ancestry) share that node chain, diverging
// only where their leaves differ. Stacks from different pids never share
// nodes, even when their raw ip-chains happen to coincide, since a pid is
// part of every edge key (spec.md section 3: stacks are deduplicated per
// pid).
type Arena struct {
	mu    sync.Mutex
	nodes []stackNode
	// index maps (pid, parent, frame addr) -> child StackID, so appending
	// one more frame to an already-seen prefix finds the existing node
	// instead of allocating a duplicate.
	index map[edgeKey]StackID
}

type edgeKey struct {
	pid    int
	parent StackID
	addr   uint64
}

// NewArena returns an empty stack arena.
func NewArena() *Arena {
	return &Arena{index: make(map[edgeKey]StackID)}
}

// Intern inserts frames (innermost call first, as a perf IP chain is
// ordered) under pid and returns the StackID of the full chain's leaf node.
// It walks frames from the outermost (root) frame inward so that chains
// sharing a root-ward path reuse the same nodes, matching Frames' innermost-
// first traversal back out.
func (a *Arena) Intern(pid int, frames []pmutypes.Symbol) StackID {
	a.mu.Lock()
	defer a.mu.Unlock()

	parent := noStack
	depth := 0
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		key := edgeKey{pid: pid, parent: parent, addr: f.Addr}
		if id, ok := a.index[key]; ok {
			parent = id
			depth++
			continue
		}
		id := StackID(len(a.nodes))
		a.nodes = append(a.nodes, stackNode{parent: parent, frame: f, depth: depth + 1})
		a.index[key] = id
		parent = id
		depth++
	}
	return parent
}

// Frames walks id back to noStack and returns the chain innermost-first,
// the inverse of Intern.
func (a *Arena) Frames(id StackID) []pmutypes.Symbol {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id == noStack {
		return nil
	}
	out := make([]pmutypes.Symbol, 0, a.nodes[id].depth)
	for cur := id; cur != noStack; cur = a.nodes[cur].parent {
		out = append(out, a.nodes[cur].frame)
	}
	return out
}

// Len reports how many distinct frame-nodes the arena holds, useful for
// session statistics/tests.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes)
}
