package unpack

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akernet/logbuddy/internal/archivetest"
	"github.com/akernet/logbuddy/pkg/types"
)

// listFiles returns regular files under dir, relative and slash-separated.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func unpackBytes(t *testing.T, r *Registry, format types.Format, name string, data []byte) (string, error) {
	t.Helper()
	dir := t.TempDir()
	src := archivetest.Write(t, dir, name, data)
	dest := filepath.Join(dir, name+"_1")
	return dest, r.UnpackFile(context.Background(), format, src, dest)
}

func TestUnpack_Zip(t *testing.T) {
	data := archivetest.Zip(t,
		archivetest.Text("app.log", "started\n"),
		archivetest.Entry{Name: "logs/"},
		archivetest.Text("logs/worker.log", "worker\n"),
	)
	dest, err := unpackBytes(t, NewRegistry(), types.FormatZip, "bundle.zip", data)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.log", "logs/worker.log"}, listFiles(t, dest))
	content, err := os.ReadFile(filepath.Join(dest, "logs", "worker.log"))
	require.NoError(t, err)
	assert.Equal(t, "worker\n", string(content))
}

func TestUnpack_TarIgnoresOwnershipAndMode(t *testing.T) {
	data := archivetest.Tar(t,
		archivetest.Entry{Name: "var/"},
		archivetest.Text("var/app.log", "x"),
	)
	dest, err := unpackBytes(t, NewRegistry(), types.FormatTar, "bundle.tar", data)
	require.NoError(t, err)

	// Reference entries created with the fixed modes under the same umask.
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "ref"), os.O_CREATE|os.O_WRONLY, filePerm)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	wantFile, err := os.Stat(f.Name())
	require.NoError(t, err)
	refDir := filepath.Join(t.TempDir(), "refdir")
	require.NoError(t, os.Mkdir(refDir, dirPerm))
	wantDir, err := os.Stat(refDir)
	require.NoError(t, err)

	// The archive says 0600/0700; extracted entries get the fixed modes.
	info, err := os.Stat(filepath.Join(dest, "var", "app.log"))
	require.NoError(t, err)
	assert.Equal(t, wantFile.Mode().Perm(), info.Mode().Perm())
	dirInfo, err := os.Stat(filepath.Join(dest, "var"))
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())
	assert.Equal(t, wantDir.Mode().Perm(), dirInfo.Mode().Perm())
}

func TestUnpack_TarSkipsSymlinks(t *testing.T) {
	data := archivetest.TarSymlink(t, "passwd", "/etc/passwd", archivetest.Text("app.log", "x"))
	dest, err := unpackBytes(t, NewRegistry(), types.FormatTar, "links.tar", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.log"}, listFiles(t, dest))
	_, err = os.Lstat(filepath.Join(dest, "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnpack_GzipWrappedTar(t *testing.T) {
	tarball := archivetest.Tar(t, archivetest.Text("app.log", "a"), archivetest.Text("sub/b.log", "b"))
	dest, err := unpackBytes(t, NewRegistry(), types.FormatGzip, "logs.tar.gz", archivetest.Gzip(t, "", tarball))
	require.NoError(t, err)
	assert.Equal(t, []string{"app.log", "sub/b.log"}, listFiles(t, dest))
}

func TestUnpack_SingleStreamNaming(t *testing.T) {
	payload := []byte("hello from a compressed log\n")

	tests := []struct {
		name     string
		format   types.Format
		archive  string
		data     []byte
		expected string
	}{
		{name: "gzip strips extension", format: types.FormatGzip, archive: "app.log.gz", data: archivetest.Gzip(t, "", payload), expected: "app.log"},
		{name: "gzip header name wins", format: types.FormatGzip, archive: "blob.gz", data: archivetest.Gzip(t, "../../real.log", payload), expected: "real.log"},
		{name: "zstd", format: types.FormatZstd, archive: "app.log.zst", data: archivetest.Zstd(t, payload), expected: "app.log"},
		{name: "xz", format: types.FormatXz, archive: "app.log.xz", data: archivetest.Xz(t, payload), expected: "app.log"},
		{name: "lz4", format: types.FormatLz4, archive: "app.log.lz4", data: archivetest.Lz4(t, payload), expected: "app.log"},
		{name: "no known extension", format: types.FormatZstd, archive: "capture", data: archivetest.Zstd(t, payload), expected: "capture.out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := unpackBytes(t, NewRegistry(), tt.format, tt.archive, tt.data)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.expected}, listFiles(t, dest))

			content, err := os.ReadFile(filepath.Join(dest, tt.expected))
			require.NoError(t, err)
			assert.Equal(t, payload, content)
		})
	}
}

func TestUnpack_CorruptZip(t *testing.T) {
	_, err := unpackBytes(t, NewRegistry(), types.FormatZip, "bad.zip", archivetest.Corrupt())
	assert.Error(t, err)
}

func TestUnpack_TruncatedGzip(t *testing.T) {
	data := archivetest.Gzip(t, "", []byte(strings.Repeat("payload ", 4096)))
	_, err := unpackBytes(t, NewRegistry(), types.FormatGzip, "cut.gz", data[:len(data)/2])
	assert.Error(t, err)
}

func TestUnpack_UnsafePaths(t *testing.T) {
	data := archivetest.Zip(t,
		archivetest.Text("../escape.log", "nope"),
		archivetest.Text("ok.log", "fine"),
	)
	dest, err := unpackBytes(t, NewRegistry(), types.FormatZip, "slip.zip", data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)

	// The safe sibling is still extracted and nothing escaped.
	assert.Equal(t, []string{"ok.log"}, listFiles(t, dest))
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.log"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnpack_Limits(t *testing.T) {
	data := archivetest.Zip(t,
		archivetest.Text("a.log", "a"),
		archivetest.Text("b.log", "b"),
		archivetest.Text("c.log", "c"),
	)
	_, err := unpackBytes(t, NewRegistry(WithLimits(Limits{MaxEntries: 2})), types.FormatZip, "many.zip", data)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	big := archivetest.Zip(t, archivetest.Text("big.log", strings.Repeat("x", 2048)))
	_, err = unpackBytes(t, NewRegistry(WithLimits(Limits{MaxBytes: 1024})), types.FormatZip, "big.zip", big)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestUnpack_DestinationMustNotExist(t *testing.T) {
	dir := t.TempDir()
	src := archivetest.Write(t, dir, "a.zip", archivetest.Zip(t, archivetest.Text("a.log", "a")))
	dest := filepath.Join(dir, "a.zip_1")
	require.NoError(t, os.Mkdir(dest, 0o755))

	err := NewRegistry().UnpackFile(context.Background(), types.FormatZip, src, dest)
	assert.Error(t, err)
}

func TestUnpack_UnsupportedFormat(t *testing.T) {
	_, err := unpackBytes(t, NewRegistry(), types.Format("rar"), "a.rar", []byte("Rar!"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUnpack_Cancelled(t *testing.T) {
	dir := t.TempDir()
	src := archivetest.Write(t, dir, "a.zip", archivetest.Zip(t, archivetest.Text("a.log", "a")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRegistry().UnpackFile(ctx, types.FormatZip, src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	custom := types.Format("logpack")
	assert.False(t, r.Supports(custom))

	r.Register(custom, UnpackerFunc(func(ctx context.Context, a Archive, w *Writer) error {
		return w.File(ctx, "only.log", strings.NewReader("custom"))
	}))
	assert.True(t, r.Supports(custom))

	dest, err := unpackBytes(t, r, custom, "x.logpack", []byte("LOGPACK"))
	require.NoError(t, err)
	assert.Equal(t, []string{"only.log"}, listFiles(t, dest))
}

func TestWriter_Resolve(t *testing.T) {
	w := newWriter(filepath.Join(t.TempDir(), "dest"), Limits{}, nil)

	for _, bad := range []string{"../x", "a/../../x", "/etc/passwd"} {
		_, err := w.resolve(bad)
		assert.ErrorIs(t, err, ErrUnsafePath, bad)
	}
	for _, good := range []string{"a.log", "dir/b.log", "./c.log", "d/../e.log"} {
		_, err := w.resolve(good)
		assert.NoError(t, err, good)
	}
}
