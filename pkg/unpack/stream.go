package unpack

import (
	"bufio"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/akernet/logbuddy/pkg/sniff"
	"github.com/akernet/logbuddy/pkg/types"
)

// streamUnpacker handles single-stream compression wrappers. A wrapped tar
// is extracted directly; any other payload becomes one member.
type streamUnpacker struct {
	format types.Format
	open   func(r io.Reader) (io.ReadCloser, string, error)
	// suffixes maps a compressed extension to its replacement.
	suffixes map[string]string
}

func (s *streamUnpacker) Unpack(ctx context.Context, a Archive, w *Writer) error {
	rc, headerName, err := s.open(a.R)
	if err != nil {
		return fmt.Errorf("opening %s stream: %w", s.format, err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 4*sniff.PrefixLen)
	prefix, err := br.Peek(sniff.PrefixLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("decompressing %s: %w", s.format, err)
	}

	if sniff.Detect(prefix).Format == types.FormatTar {
		return untar(ctx, br, w)
	}

	name := s.memberName(a.Name, headerName)
	if err := w.File(ctx, name, br); err != nil {
		return memberError(name, err)
	}
	return nil
}

// memberName picks the output name of a non-tar payload.
func (s *streamUnpacker) memberName(archiveName, headerName string) string {
	if headerName != "" {
		if base := filepath.Base(filepath.FromSlash(headerName)); base != "." && base != string(filepath.Separator) && base != ".." {
			return base
		}
	}
	lower := strings.ToLower(archiveName)
	for ext, repl := range s.suffixes {
		if strings.HasSuffix(lower, ext) && len(archiveName) > len(ext) {
			return archiveName[:len(archiveName)-len(ext)] + repl
		}
	}
	return archiveName + ".out"
}

var gzipStream = &streamUnpacker{
	format: types.FormatGzip,
	open: func(r io.Reader) (io.ReadCloser, string, error) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", err
		}
		return zr, zr.Name, nil
	},
	suffixes: map[string]string{".gz": "", ".gzip": "", ".tgz": ".tar"},
}

var bzip2Stream = &streamUnpacker{
	format: types.FormatBzip2,
	open: func(r io.Reader) (io.ReadCloser, string, error) {
		return io.NopCloser(bzip2.NewReader(r)), "", nil
	},
	suffixes: map[string]string{".bz2": "", ".tbz2": ".tar", ".tbz": ".tar"},
}

var xzStream = &streamUnpacker{
	format: types.FormatXz,
	open: func(r io.Reader) (io.ReadCloser, string, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, "", err
		}
		return io.NopCloser(xr), "", nil
	},
	suffixes: map[string]string{".xz": "", ".txz": ".tar"},
}

var zstdStream = &streamUnpacker{
	format: types.FormatZstd,
	open: func(r io.Reader) (io.ReadCloser, string, error) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, "", err
		}
		return zr.IOReadCloser(), "", nil
	},
	suffixes: map[string]string{".zst": "", ".zstd": "", ".tzst": ".tar"},
}

var lz4Stream = &streamUnpacker{
	format: types.FormatLz4,
	open: func(r io.Reader) (io.ReadCloser, string, error) {
		return io.NopCloser(lz4.NewReader(r)), "", nil
	},
	suffixes: map[string]string{".lz4": ""},
}
