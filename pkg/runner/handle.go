package runner

import (
	"context"

	"github.com/akernet/logbuddy/pkg/types"
)

// Handle tracks one submission.
type Handle struct {
	ID     string
	Source string

	cancel context.CancelFunc
	done   chan struct{}
	res    *types.Result
	err    error
}

// Cancel stops the submission if it has not finished. Its partial scratch
// directory is removed.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the submission finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the submission finished or ctx ends.
func (h *Handle) Wait(ctx context.Context) (*types.Result, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) finish(res *types.Result, err error) {
	h.res = res
	h.err = err
	close(h.done)
}
