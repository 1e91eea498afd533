package store

import (
	"sync"

	"github.com/akernet/logbuddy/pkg/types"
)

// submissionRecord holds one submission and what it produced.
type submissionRecord struct {
	sub      Submission
	leaves   []types.Leaf
	members  map[string]struct{}
	failures []types.Failure
}

// MemoryStore implements Store using in-memory data structures.
type MemoryStore struct {
	mu          sync.RWMutex
	order       []string                     // submission IDs in insertion order
	submissions map[string]*submissionRecord // keyed by submission ID
	blobs       map[types.BlobID]int         // leaf count per content hash
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]*submissionRecord),
		blobs:       make(map[types.BlobID]int),
	}
}

// record returns the entry for id, creating a placeholder when a leaf or
// failure arrives before its submission.
func (m *MemoryStore) record(id string) *submissionRecord {
	rec, ok := m.submissions[id]
	if !ok {
		rec = &submissionRecord{sub: Submission{ID: id}, members: make(map[string]struct{})}
		m.submissions[id] = rec
		m.order = append(m.order, id)
	}
	return rec
}

// AddSubmission stores a submission record.
func (m *MemoryStore) AddSubmission(s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, exists := m.submissions[s.ID]; exists {
		// Fill in a placeholder, otherwise idempotent.
		if rec.sub.Source == "" {
			rec.sub = s
		}
		return nil
	}
	m.record(s.ID).sub = s
	return nil
}

// AddLeaf stores a leaf under a submission.
func (m *MemoryStore) AddLeaf(submission string, l types.Leaf) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(submission)
	if _, exists := rec.members[l.Member]; exists {
		return nil
	}
	rec.members[l.Member] = struct{}{}
	rec.leaves = append(rec.leaves, l)
	m.blobs[l.BlobID]++
	return nil
}

// AddFailure stores a branch failure under a submission.
func (m *MemoryStore) AddFailure(submission string, f types.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(submission)
	for _, existing := range rec.failures {
		if existing == f {
			return nil
		}
	}
	rec.failures = append(rec.failures, f)
	return nil
}

// GetSubmissions retrieves all submissions in insertion order.
func (m *MemoryStore) GetSubmissions() ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Submission, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.submissions[id].sub)
	}
	return result, nil
}

// GetLeaves retrieves a submission's leaves in insertion order.
func (m *MemoryStore) GetLeaves(submission string) ([]types.Leaf, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.submissions[submission]
	if !ok {
		return []types.Leaf{}, nil
	}

	// Return a copy to avoid external modifications
	result := make([]types.Leaf, len(rec.leaves))
	copy(result, rec.leaves)
	return result, nil
}

// GetFailures retrieves a submission's failures in insertion order.
func (m *MemoryStore) GetFailures(submission string) ([]types.Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.submissions[submission]
	if !ok {
		return []types.Failure{}, nil
	}

	result := make([]types.Failure, len(rec.failures))
	copy(result, rec.failures)
	return result, nil
}

// LeafExists checks if any submission produced content with this blob ID.
func (m *MemoryStore) LeafExists(id types.BlobID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.blobs[id] > 0, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
