package lifecycle

import (
	"context"
	"errors"

	"github.com/rescp17/dx/pkg/transfer"
)

// ExitCode maps a teardown reason to the process exit status. Completion,
// an unanswered completion wait and cooperative cancellation from either side
// all count as a clean end.
func ExitCode(err error) int {
	switch {
	case err == nil,
		errors.Is(err, ErrInterrupted),
		errors.Is(err, transfer.ErrCancelledByPeer),
		errors.Is(err, transfer.ErrCompletionTimeout),
		errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}
