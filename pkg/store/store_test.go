package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akernet/logbuddy/pkg/types"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func sampleResult() *types.Result {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.Result{
		Submission: "sub-1",
		Source:     "/home/me/logs.tar.gz",
		Started:    started,
		Finished:   started.Add(2 * time.Second),
		Leaves: []types.Leaf{
			{
				Path:   "/scratch/sub-1/logs.tar.gz_1/app.log",
				Member: "logs.tar.gz/app.log",
				Kind:   types.KindOther,
				Size:   5,
				BlobID: types.ComputeBlobID([]byte("hello")),
			},
			{
				Path:   "/scratch/sub-1/logs.tar.gz_1/core",
				Member: "logs.tar.gz/core",
				Kind:   types.KindUnknown,
			},
		},
		Failures: []*types.Error{
			types.NewError(types.OpUnpack, "/scratch/sub-1/logs.tar.gz_1/bad.zip", assert.AnError),
		},
	}
}

func TestNew(t *testing.T) {
	// Memory
	s, err := New(Config{Path: MemoryPath})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	// SQLite
	s, err = New(Config{Path: filepath.Join(t.TempDir(), "m.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	// Missing path
	_, err = New(Config{})
	assert.Error(t, err)
}

func TestStore_Interface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Arrange
			res := sampleResult()

			// Act
			require.NoError(t, Record(s, res))

			// Assert
			subs, err := s.GetSubmissions()
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, "sub-1", subs[0].ID)
			assert.Equal(t, res.Source, subs[0].Source)
			assert.True(t, res.Started.Equal(subs[0].Started))
			assert.True(t, res.Finished.Equal(subs[0].Finished))

			leaves, err := s.GetLeaves("sub-1")
			require.NoError(t, err)
			assert.Equal(t, res.Leaves, leaves)

			failures, err := s.GetFailures("sub-1")
			require.NoError(t, err)
			require.Len(t, failures, 1)
			assert.Equal(t, types.OpUnpack, failures[0].Op)
			assert.Equal(t, assert.AnError.Error(), failures[0].Message)
		})
	}
}

func TestStore_Deduplicates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res := sampleResult()
			require.NoError(t, Record(s, res))
			require.NoError(t, Record(s, res))

			subs, err := s.GetSubmissions()
			require.NoError(t, err)
			assert.Len(t, subs, 1)

			leaves, err := s.GetLeaves("sub-1")
			require.NoError(t, err)
			assert.Len(t, leaves, 2)

			failures, err := s.GetFailures("sub-1")
			require.NoError(t, err)
			assert.Len(t, failures, 1)
		})
	}
}

func TestStore_SubmissionOrderAndIsolation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"b", "a", "c"} {
				require.NoError(t, s.AddSubmission(Submission{ID: id, Source: "/src/" + id}))
				require.NoError(t, s.AddLeaf(id, types.Leaf{Path: "/p/" + id, Member: id + ".log", BlobID: types.ComputeBlobID([]byte(id))}))
			}

			subs, err := s.GetSubmissions()
			require.NoError(t, err)
			require.Len(t, subs, 3)
			assert.Equal(t, "b", subs[0].ID)
			assert.Equal(t, "a", subs[1].ID)
			assert.Equal(t, "c", subs[2].ID)
			assert.True(t, subs[0].Started.IsZero())

			leaves, err := s.GetLeaves("a")
			require.NoError(t, err)
			require.Len(t, leaves, 1)
			assert.Equal(t, "a.log", leaves[0].Member)

			none, err := s.GetLeaves("missing")
			require.NoError(t, err)
			assert.Empty(t, none)

			noFailures, err := s.GetFailures("missing")
			require.NoError(t, err)
			assert.Empty(t, noFailures)
		})
	}
}

func TestStore_LeafExists(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Record(s, sampleResult()))

			exists, err := s.LeafExists(types.ComputeBlobID([]byte("hello")))
			require.NoError(t, err)
			assert.True(t, exists)

			exists, err = s.LeafExists(types.ComputeBlobID([]byte("nope")))
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestRecord_Invalid(t *testing.T) {
	s := NewMemory()
	assert.Error(t, Record(s, nil))
	assert.Error(t, Record(s, &types.Result{Source: "/x"}))
}
