package invoke

import (
	"context"
	"errors"
	"time"

	tberrors "toolbridge/pkg/errors"
)

// runWithTimeout races call against the deadline. The call receives a
// context that is cancelled when the deadline passes, so its deferred
// cleanup (subprocess teardown, connection close) still runs even when the
// timeout side wins; a timed-out call must never leak a process or socket.
//
// When timeout is zero the call runs under the parent context alone.
func runWithTimeout(ctx context.Context, timeout time.Duration, call AttemptFunc) (interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value interface{}
		err   error
	}

	// Buffered so the losing goroutine can finish and release resources
	// without anyone reading its result.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: tberrors.Newf(tberrors.ErrorTypeInternal, "panic during tool call: %v", r)}
			}
		}()
		value, err := call(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, tberrors.NewTimeout(timeout.Milliseconds())
		}
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, tberrors.NewTimeout(timeout.Milliseconds())
		}
		return nil, ctx.Err()
	}
}
