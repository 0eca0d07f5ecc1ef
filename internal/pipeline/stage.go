package pipeline

import (
	"context"
	"errors"
)

// errDropped tells runStage an item was discarded by policy and has already
// been accounted for.
var errDropped = errors.New("pipeline: item dropped")

// errFatal marks a stage error that must stop the whole pipeline.
type errFatal struct{ err error }

func (e errFatal) Error() string { return e.err.Error() }
func (e errFatal) Unwrap() error { return e.err }

// runStage is the worker loop shared by every stage: blocking dequeue,
// process, enqueue. Per-item failures are logged and metered inside process
// and the item is dropped. The loop ends when ctx is cancelled, when in is
// closed and drained, or when process returns a fatal error.
//
// out may be nil for the terminal stage.
func runStage[In, Out any](ctx context.Context, in *Queue[In], out *Queue[Out], process func(context.Context, In) (Out, error)) error {
	for {
		item, err := in.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		res, err := process(ctx, item)
		if err != nil {
			var fatal errFatal
			switch {
			case errors.As(err, &fatal):
				return fatal.err
			case ctx.Err() != nil:
				return nil
			}
			continue
		}
		if out != nil {
			out.Put(res)
		}
	}
}
