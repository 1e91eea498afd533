package main

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akernet/logbuddy/pkg/store"
	"github.com/akernet/logbuddy/pkg/types"
)

func writeTestManifest(t *testing.T, path, id string) {
	t.Helper()
	s, err := store.New(store.Config{Path: path})
	require.NoError(t, err)

	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.Record(s, &types.Result{
		Submission: id,
		Source:     "/logs/" + id + ".zip",
		Started:    started,
		Finished:   started.Add(time.Second),
		Leaves: []types.Leaf{
			{Path: "/scratch/" + id + "/a.log", Member: id + ".zip/a.log", Kind: types.KindOther, Size: 2048},
		},
		Failures: []*types.Error{types.NewError(types.OpUnpack, "/scratch/"+id+"/bad.zip", assert.AnError)},
	}))
	require.NoError(t, s.Close())
}

func TestRunManifest_Human(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	writeTestManifest(t, path, "sub-1")

	manifestFormat = "human"
	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runManifest(cmd, []string{path}))

	output := stdout.String()
	assert.Contains(t, output, "Manifest: "+path)
	assert.Contains(t, output, "Submissions: 1")
	assert.Contains(t, output, "/logs/sub-1.zip (sub-1)")
	assert.Contains(t, output, "Files: 1, 2.0 kB")
	assert.Contains(t, output, "sub-1.zip/a.log")
	assert.Contains(t, output, "Failed unpack")
}

func TestRunManifest_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	writeTestManifest(t, path, "sub-1")

	manifestFormat = "json"
	defer func() { manifestFormat = "human" }()

	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runManifest(cmd, []string{path}))

	var entries []manifestEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "sub-1", entries[0].ID)
	assert.Len(t, entries[0].Leaves, 1)
	assert.Len(t, entries[0].Failures, 1)
}

func TestRunManifest_Datastore(t *testing.T) {
	dir := t.TempDir()
	writeTestManifest(t, filepath.Join(dir, "manifest.db"), "sub-1")

	manifestFormat = "human"
	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runManifest(cmd, []string{dir}))
	assert.Contains(t, stdout.String(), "/logs/sub-1.zip (sub-1)")

	err := runManifest(cmd, []string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")
}

func TestRunManifest_Missing(t *testing.T) {
	cmd, _, _ := newTestCmd()

	err := runManifest(cmd, []string{filepath.Join(t.TempDir(), "none.db")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")

	err = runManifest(cmd, []string{store.MemoryPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-memory")
}

func TestRunManifestMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	writeTestManifest(t, a, "sub-a")
	writeTestManifest(t, b, "sub-b")

	mergeOutput = filepath.Join(dir, "merged.db")
	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runManifestMerge(cmd, []string{a, b}))

	output := stdout.String()
	assert.Contains(t, output, "Sources processed: 2")
	assert.Contains(t, output, "Submissions merged: 2")
	assert.Contains(t, output, "Leaves merged: 2")
	assert.Contains(t, output, "Output: "+mergeOutput)
}
