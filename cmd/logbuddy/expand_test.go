package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/akernet/logbuddy/internal/archivetest"
	"github.com/akernet/logbuddy/pkg/datastore"
	"github.com/akernet/logbuddy/pkg/store"
)

// resetExpandFlags restores flag defaults and points the scratch root at a
// test directory.
func resetExpandFlags(t *testing.T) {
	t.Helper()
	expandFormat = "human"
	expandExclude = nil
	expandMaxConcurrent = 0
	expandManifest = ""
	expandSave = ""
	expandKeep = false
	expandColor = "never"
	expandMaxEntries = 0
	expandMaxBytes = ""
	expandIncludeHidden = false
	expandFollowLinks = false
	scratchDir = t.TempDir()
	verbose, quiet = false, true
}

func newTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func writeBundle(t *testing.T) string {
	t.Helper()
	return archivetest.Write(t, t.TempDir(), "bundle.zip", archivetest.Zip(t,
		archivetest.Text("app.log", "started"),
		archivetest.File("inner.tar", archivetest.Tar(t, archivetest.Text("db.log", "query"))),
		archivetest.Text("cache.tmp", "junk"),
	))
}

func TestRunExpand_Human(t *testing.T) {
	resetExpandFlags(t)
	bundle := writeBundle(t)

	cmd, stdout, _ := newTestCmd()
	err := runExpand(cmd, []string{bundle})
	require.NoError(t, err)

	output := stdout.String()
	assert.Contains(t, output, "bundle.zip: 3 files")
	assert.Contains(t, output, "bundle.zip/app.log")
	assert.Contains(t, output, "bundle.zip/inner.tar/db.log")

	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch root should be removed")
}

func TestRunExpand_JSONPreservesArgumentOrder(t *testing.T) {
	resetExpandFlags(t)
	expandFormat = "json"
	expandExclude = []string{"*.tmp"}
	bundle := writeBundle(t)
	plain := archivetest.Write(t, t.TempDir(), "plain.log", []byte("hello"))

	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{plain, bundle}))

	var reports []report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, plain, reports[0].Source)
	require.Len(t, reports[0].Leaves, 1)
	assert.Equal(t, "plain.log", reports[0].Leaves[0].Member)

	assert.Equal(t, bundle, reports[1].Source)
	require.Len(t, reports[1].Leaves, 2)
	assert.Equal(t, "bundle.zip/app.log", reports[1].Leaves[0].Member)
	assert.Equal(t, "bundle.zip/inner.tar/db.log", reports[1].Leaves[1].Member)
}

func TestRunExpand_YAML(t *testing.T) {
	resetExpandFlags(t)
	expandFormat = "yaml"
	plain := archivetest.Write(t, t.TempDir(), "plain.log", []byte("hello"))

	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{plain}))

	var reports []map[string]any
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, plain, reports[0]["source"])
}

func TestRunExpand_Tree(t *testing.T) {
	resetExpandFlags(t)
	expandFormat = "tree"
	bundle := writeBundle(t)

	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{bundle}))

	assert.Equal(t, "bundle.zip/\n  app.log\n  cache.tmp\n  inner.tar/\n    db.log\n", stdout.String())
}

func TestRunExpand_MissingFile(t *testing.T) {
	resetExpandFlags(t)
	plain := archivetest.Write(t, t.TempDir(), "plain.log", []byte("hello"))
	missing := filepath.Join(t.TempDir(), "missing.log")

	cmd, stdout, _ := newTestCmd()
	err := runExpand(cmd, []string{plain, missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files could not be loaded")
	assert.Contains(t, stdout.String(), "missing.log: could not be loaded")
	assert.Contains(t, stdout.String(), "plain.log: 1 files")
}

func TestRunExpand_Manifest(t *testing.T) {
	resetExpandFlags(t)
	expandManifest = filepath.Join(t.TempDir(), "manifest.db")
	bundle := writeBundle(t)

	cmd, _, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{bundle}))

	s, err := store.New(store.Config{Path: expandManifest})
	require.NoError(t, err)
	defer s.Close()

	subs, err := s.GetSubmissions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, bundle, subs[0].Source)

	leaves, err := s.GetLeaves(subs[0].ID)
	require.NoError(t, err)
	assert.Len(t, leaves, 3)
}

func TestRunExpand_Save(t *testing.T) {
	resetExpandFlags(t)
	expandSave = filepath.Join(t.TempDir(), "saved.ds")
	bundle := writeBundle(t)

	cmd, _, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{bundle}))

	ds, err := datastore.Open(expandSave, datastore.Options{StoreBlobs: true})
	require.NoError(t, err)
	defer ds.Close()

	subs, err := ds.Store.GetSubmissions()
	require.NoError(t, err)
	require.Len(t, subs, 1)

	leaves, err := ds.Store.GetLeaves(subs[0].ID)
	require.NoError(t, err)
	require.Len(t, leaves, 3)

	// Content survives the scratch root
	content, err := ds.Blobs.Get(leaves[0].BlobID)
	require.NoError(t, err)
	assert.Equal(t, "started", string(content))
}

func TestRunExpand_Keep(t *testing.T) {
	resetExpandFlags(t)
	expandKeep = true
	plain := archivetest.Write(t, t.TempDir(), "plain.log", []byte("hello"))

	cmd, _, stderr := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{plain}))

	assert.Contains(t, stderr.String(), "Scratch directory kept at")
	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunExpand_Directory(t *testing.T) {
	resetExpandFlags(t)
	expandFormat = "json"
	dir := t.TempDir()
	archivetest.Write(t, dir, "b/second.log", []byte("2"))
	archivetest.Write(t, dir, "a.zip", archivetest.Zip(t, archivetest.Text("first.log", "1")))
	archivetest.Write(t, dir, ".hidden.log", []byte("h"))

	cmd, stdout, _ := newTestCmd()
	require.NoError(t, runExpand(cmd, []string{dir}))

	var reports []report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, filepath.Join(dir, "a.zip"), reports[0].Source)
	assert.Equal(t, "a.zip/first.log", reports[0].Leaves[0].Member)
	assert.Equal(t, filepath.Join(dir, "b", "second.log"), reports[1].Source)
}

func TestRunExpand_EmptyDirectory(t *testing.T) {
	resetExpandFlags(t)

	cmd, _, _ := newTestCmd()
	err := runExpand(cmd, []string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files to expand")
}

func TestRunExpand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name  string
		setup func()
		want  string
	}{
		{name: "format", setup: func() { expandFormat = "xml" }, want: "unknown output format"},
		{name: "color", setup: func() { expandColor = "rainbow" }, want: "unknown color mode"},
		{name: "max bytes", setup: func() { expandMaxBytes = "lots" }, want: "invalid --max-bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetExpandFlags(t)
			tt.setup()

			cmd, _, _ := newTestCmd()
			err := runExpand(cmd, []string{"whatever.log"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer

	on, err := colorEnabled("always", &buf)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := colorEnabled("never", &buf)
	require.NoError(t, err)
	assert.False(t, off)

	auto, err := colorEnabled("auto", &buf)
	require.NoError(t, err)
	assert.False(t, auto, "a buffer is not a terminal")
}
