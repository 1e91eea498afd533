package unpack

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
)

func untarArchive(ctx context.Context, a Archive, w *Writer) error {
	return untar(ctx, a.R, w)
}

// untar streams a tar archive. A corrupt header or body ends the stream, so
// those errors stop extraction; members already written remain. Members
// with unsafe names are reported and skipped.
func untar(ctx context.Context, r io.Reader, w *Writer) error {
	tr := tar.NewReader(r)
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return errors.Join(errs...)
		}
		if err != nil && !(errors.Is(err, tar.ErrInsecurePath) && hdr != nil) {
			return errors.Join(append(errs, fmt.Errorf("reading tar: %w", err))...)
		}

		switch {
		case hdr.Typeflag == tar.TypeDir:
			err = w.Dir(hdr.Name)
		case hdr.FileInfo().Mode().IsRegular():
			err = w.File(ctx, hdr.Name, tr)
		default:
			w.Skip(hdr.Name, fmt.Sprintf("tar type %q", hdr.Typeflag))
			err = nil
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrUnsafePath) {
			return errors.Join(append(errs, memberError(hdr.Name, err))...)
		}
		errs = append(errs, memberError(hdr.Name, err))
	}
}
