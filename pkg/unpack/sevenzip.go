package unpack

import (
	"context"
	"errors"
	"fmt"

	"github.com/bodgit/sevenzip"
)

// un7z extracts a 7z archive, continuing past failing members.
func un7z(ctx context.Context, a Archive, w *Writer) error {
	zr, err := sevenzip.NewReader(a.R, a.Size)
	if err != nil {
		return fmt.Errorf("opening 7z: %w", err)
	}

	var errs []error
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		info := f.FileInfo()
		switch {
		case info.IsDir():
			if err := w.Dir(f.Name); err != nil {
				errs = append(errs, memberError(f.Name, err))
			}
			continue
		case !info.Mode().IsRegular():
			w.Skip(f.Name, "not a regular file")
			continue
		}

		if err := un7zFile(ctx, f, w); err != nil {
			if errors.Is(err, ErrLimitExceeded) || ctx.Err() != nil {
				return err
			}
			errs = append(errs, memberError(f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func un7zFile(ctx context.Context, f *sevenzip.File, w *Writer) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return w.File(ctx, f.Name, rc)
}
