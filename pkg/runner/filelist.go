package runner

import (
	"sync"

	"github.com/akernet/logbuddy/pkg/types"
)

// FileList is the shared, ordered list of leaves discovered by every
// submission. Writers append whole results; readers get copies, so they see
// either the state before an append or after it.
type FileList struct {
	mu     sync.RWMutex
	leaves []types.Leaf
}

// Append adds leaves under one lock acquisition and returns a copy of the
// list as it stands afterwards.
func (l *FileList) Append(leaves ...types.Leaf) []types.Leaf {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leaves = append(l.leaves, leaves...)
	return cloneLeaves(l.leaves)
}

// Snapshot returns a copy of the current list.
func (l *FileList) Snapshot() []types.Leaf {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneLeaves(l.leaves)
}

// Paths returns the leaf paths in list order.
func (l *FileList) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	paths := make([]string, len(l.leaves))
	for i, leaf := range l.leaves {
		paths[i] = leaf.Path
	}
	return paths
}

// Len returns the number of leaves.
func (l *FileList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.leaves)
}

func cloneLeaves(leaves []types.Leaf) []types.Leaf {
	if len(leaves) == 0 {
		return nil
	}
	dup := make([]types.Leaf, len(leaves))
	copy(dup, leaves)
	return dup
}
