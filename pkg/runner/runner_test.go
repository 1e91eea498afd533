package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akernet/logbuddy/internal/archivetest"
	"github.com/akernet/logbuddy/pkg/extract"
	"github.com/akernet/logbuddy/pkg/scratch"
	"github.com/akernet/logbuddy/pkg/types"
)

func newRoot(t *testing.T) *scratch.Root {
	t.Helper()
	root, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })
	return root
}

func recv(t *testing.T, r *Runner) Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// blockingExpander waits until its context ends.
type blockingExpander struct {
	started chan string
	calls   chan struct{}
}

func newBlockingExpander() *blockingExpander {
	return &blockingExpander{started: make(chan string, 8), calls: make(chan struct{}, 8)}
}

func (b *blockingExpander) Expand(ctx context.Context, path string) (*types.Result, error) {
	b.calls <- struct{}{}
	b.started <- path
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingExpander struct{ err error }

func (f failingExpander) Expand(context.Context, string) (*types.Result, error) {
	return nil, f.err
}

func TestRunner_ConcurrentSubmissionsAreDisjoint(t *testing.T) {
	root := newRoot(t)
	src := t.TempDir()
	a := archivetest.Write(t, src, "a.zip", archivetest.Zip(t, archivetest.Text("one.log", "1"), archivetest.Text("two.log", "2")))
	b := archivetest.Write(t, src, "b.tar", archivetest.Tar(t, archivetest.Text("three.log", "3")))

	r := New(root, extract.New(root))
	defer r.Close()

	ha := r.Submit(context.Background(), a)
	hb := r.Submit(context.Background(), b)
	require.NotEqual(t, ha.ID, hb.ID)

	byID := map[string]Event{}
	for range 2 {
		ev := recv(t, r)
		require.NoError(t, ev.Err)
		byID[ev.Submission] = ev
	}

	evA, evB := byID[ha.ID], byID[hb.ID]
	require.NotNil(t, evA.Result)
	require.NotNil(t, evB.Result)
	assert.Equal(t, a, evA.Source)
	assert.Equal(t, a, evA.Result.Source)
	assert.Equal(t, ha.ID, evA.Result.Submission)
	assert.Equal(t, []string{"a.zip/one.log", "a.zip/two.log"}, evA.Result.Members())
	assert.Equal(t, []string{"b.tar/three.log"}, evB.Result.Members())

	for _, p := range evA.Result.Paths() {
		assert.True(t, strings.HasPrefix(p, filepath.Join(root.Path(), ha.ID)+string(filepath.Separator)), p)
	}
	for _, p := range evB.Result.Paths() {
		assert.True(t, strings.HasPrefix(p, filepath.Join(root.Path(), hb.ID)+string(filepath.Separator)), p)
	}

	assert.Equal(t, 3, r.Files().Len())
	assert.FileExists(t, a, "source must not be modified")
}

func TestRunner_EventCarriesFileListSnapshot(t *testing.T) {
	root := newRoot(t)
	src := t.TempDir()
	first := archivetest.Write(t, src, "first.log", []byte("first"))
	second := archivetest.Write(t, src, "second.log", []byte("second"))

	r := New(root, extract.New(root), WithMaxConcurrent(1))
	defer r.Close()

	r.Submit(context.Background(), first)
	ev1 := recv(t, r)
	require.NoError(t, ev1.Err)
	assert.Len(t, ev1.Files, 1)

	r.Submit(context.Background(), second)
	ev2 := recv(t, r)
	require.NoError(t, ev2.Err)
	require.Len(t, ev2.Files, 2)
	assert.Equal(t, "first.log", ev2.Files[0].Member)
	assert.Equal(t, "second.log", ev2.Files[1].Member)

	assert.Len(t, ev1.Files, 1, "earlier snapshot must not change")
}

func TestRunner_MissingSourceIsCopyError(t *testing.T) {
	root := newRoot(t)
	r := New(root, extract.New(root))
	defer r.Close()

	missing := filepath.Join(t.TempDir(), "gone.log")
	h := r.Submit(context.Background(), missing)
	ev := recv(t, r)

	assert.Equal(t, h.ID, ev.Submission)
	assert.False(t, ev.OK())
	assert.True(t, types.IsCopyError(ev.Err))
	assert.Nil(t, ev.Result)
	assert.Contains(t, ev.Summary(), "could not be loaded")
	assert.Equal(t, 0, r.Files().Len())
	assert.NoDirExists(t, filepath.Join(root.Path(), h.ID))

	_, err := h.Wait(context.Background())
	assert.True(t, types.IsCopyError(err))
}

func TestRunner_CancelReleasesSubmissionDir(t *testing.T) {
	root := newRoot(t)
	src := archivetest.Write(t, t.TempDir(), "big.zip", archivetest.Zip(t, archivetest.Text("x.log", "x")))
	ex := newBlockingExpander()

	r := New(root, ex)
	defer r.Close()

	h := r.Submit(context.Background(), src)
	copied := <-ex.started
	assert.FileExists(t, copied)
	assert.True(t, strings.HasPrefix(copied, filepath.Join(root.Path(), h.ID)))

	h.Cancel()
	ev := recv(t, r)
	assert.True(t, IsCancelled(ev.Err))
	assert.Contains(t, ev.Summary(), "cancelled")
	assert.NoDirExists(t, filepath.Join(root.Path(), h.ID))

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle not done")
	}
}

func TestRunner_QueuedCancelNeverExpands(t *testing.T) {
	root := newRoot(t)
	dir := t.TempDir()
	first := archivetest.Write(t, dir, "first.log", []byte("1"))
	second := archivetest.Write(t, dir, "second.log", []byte("2"))
	ex := newBlockingExpander()

	r := New(root, ex, WithMaxConcurrent(1))
	defer r.Close()

	h1 := r.Submit(context.Background(), first)
	<-ex.started
	h2 := r.Submit(context.Background(), second)

	h2.Cancel()
	ev := recv(t, r)
	assert.Equal(t, h2.ID, ev.Submission)
	assert.True(t, IsCancelled(ev.Err))
	assert.NoDirExists(t, filepath.Join(root.Path(), h2.ID))

	h1.Cancel()
	ev = recv(t, r)
	assert.Equal(t, h1.ID, ev.Submission)

	assert.Len(t, ex.calls, 1)
}

func TestRunner_ExpanderErrorIsReported(t *testing.T) {
	root := newRoot(t)
	src := archivetest.Write(t, t.TempDir(), "a.log", []byte("a"))
	boom := errors.New("boom")

	r := New(root, failingExpander{err: boom})
	defer r.Close()

	h := r.Submit(context.Background(), src)
	ev := recv(t, r)
	assert.ErrorIs(t, ev.Err, boom)
	assert.False(t, IsCancelled(ev.Err))
	assert.NoDirExists(t, filepath.Join(root.Path(), h.ID))
}

func TestRunner_BranchFailuresStillComplete(t *testing.T) {
	root := newRoot(t)
	src := archivetest.Write(t, t.TempDir(), "mixed.zip", archivetest.Zip(t,
		archivetest.File("bad.zip", archivetest.Corrupt()),
		archivetest.Text("good.log", "ok"),
	))

	r := New(root, extract.New(root))
	defer r.Close()

	r.Submit(context.Background(), src)
	ev := recv(t, r)
	require.NoError(t, ev.Err)
	assert.Contains(t, ev.Result.Members(), "mixed.zip/good.log")
	assert.NotEmpty(t, ev.Result.Failures)
	assert.Contains(t, ev.Summary(), "failed archives")
}

func TestRunner_Close(t *testing.T) {
	root := newRoot(t)
	src := archivetest.Write(t, t.TempDir(), "a.log", []byte("a"))
	ex := newBlockingExpander()

	r := New(root, ex)
	h := r.Submit(context.Background(), src)
	<-ex.started

	done := make(chan struct{})
	go func() {
		for range r.Events() {
		}
		close(done)
	}()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("events channel not closed")
	}

	_, err := h.Wait(context.Background())
	assert.True(t, IsCancelled(err))

	late := r.Submit(context.Background(), src)
	_, err = late.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunner_SourceNotRegular(t *testing.T) {
	root := newRoot(t)
	r := New(root, extract.New(root))
	defer r.Close()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	r.Submit(context.Background(), filepath.Join(dir, "sub"))

	ev := recv(t, r)
	assert.True(t, types.IsCopyError(ev.Err))
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	h := &Handle{done: make(chan struct{}), cancel: func() {}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
