package unpack

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
)

// unzip extracts every regular member. A failing member does not stop the
// remaining ones; their errors are joined.
func unzip(ctx context.Context, a Archive, w *Writer) error {
	zr, err := zip.NewReader(a.R, a.Size)
	// Insecure names are rejected per member by the Writer.
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return fmt.Errorf("opening zip: %w", err)
	}

	var errs []error
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := w.Dir(f.Name); err != nil {
				errs = append(errs, memberError(f.Name, err))
			}
			continue
		case !mode.IsRegular():
			w.Skip(f.Name, "not a regular file")
			continue
		}

		if err := unzipFile(ctx, f, w); err != nil {
			if errors.Is(err, ErrLimitExceeded) || ctx.Err() != nil {
				return err
			}
			errs = append(errs, memberError(f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func unzipFile(ctx context.Context, f *zip.File, w *Writer) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return w.File(ctx, f.Name, rc)
}
