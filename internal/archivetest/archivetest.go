// Package archivetest builds in-memory archives for tests.
package archivetest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Entry is one archive member. A name ending in "/" is a directory.
type Entry struct {
	Name string
	Data []byte
}

// File is shorthand for a regular-file entry.
func File(name string, data []byte) Entry {
	return Entry{Name: name, Data: data}
}

// Text is shorthand for a regular-file entry with string content.
func Text(name, data string) Entry {
	return Entry{Name: name, Data: []byte(data)}
}

// Zip returns a zip archive holding entries in order.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Tar returns a ustar archive holding entries in order.
func Tar(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o600, Size: int64(len(e.Data)), Typeflag: tar.TypeReg, Uid: 4242, Gid: 4242}
		if len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o700
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write(e.Data); err != nil {
				t.Fatalf("tar write %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// TarSymlink returns a tar archive with one symlink entry followed by entries.
func TarSymlink(t testing.TB, name, target string, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Linkname: target, Typeflag: tar.TypeSymlink, Mode: 0o777}); err != nil {
		t.Fatalf("tar symlink: %v", err)
	}
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Data)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			t.Fatalf("tar write %s: %v", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// Gzip compresses data, recording name in the gzip header when non-empty.
func Gzip(t testing.TB, name string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Name = name
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Zstd compresses data as a zstd frame.
func Zstd(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

// Xz compresses data as an xz stream.
func Xz(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := xw.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// Lz4 compresses data as an lz4 frame.
func Lz4(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	lw := lz4.NewWriter(&buf)
	if _, err := lw.Write(data); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}
	return buf.Bytes()
}

// Corrupt returns a zip signature followed by garbage: sniffed as an archive,
// rejected by the unpacker.
func Corrupt() []byte {
	return append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{0xEE}, 64)...)
}

// Nest wraps a leaf in depth zip archives, innermost named level1.zip.
// It returns the outermost archive bytes.
func Nest(t testing.TB, depth int, leaf Entry) []byte {
	t.Helper()
	data := Zip(t, leaf)
	for i := 1; i < depth; i++ {
		data = Zip(t, File(levelName(i), data))
	}
	return data
}

func levelName(i int) string {
	return "level" + strconv.Itoa(i) + ".zip"
}

// Write stores data at dir/name, creating parents, and returns the path.
func Write(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
