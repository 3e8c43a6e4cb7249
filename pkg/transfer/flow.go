package transfer

import (
	"context"
	"log/slog"
	"time"
)

// FlowController paces outbound chunks against the channel's send backlog.
// It gives no delivery guarantee; integrity is only checked at file-end.
type FlowController struct {
	ch        Channel
	threshold uint64
	retry     time.Duration
	low       chan struct{}
}

// NewFlowController installs the low-buffer callback on ch. The channel
// supports a single callback, so create at most one controller per channel.
func NewFlowController(ch Channel, threshold uint64, retry time.Duration) *FlowController {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	fc := &FlowController{
		ch:        ch,
		threshold: threshold,
		retry:     retry,
		low:       make(chan struct{}, 1),
	}
	ch.SetBufferedAmountLowThreshold(threshold)
	ch.OnBufferedAmountLow(fc.signal)
	return fc
}

func (fc *FlowController) signal() {
	select {
	case fc.low <- struct{}{}:
	default:
	}
}

// Wait returns once the backlog is at or below the threshold. It wakes on the
// low-buffer signal or after the retry interval, whichever comes first.
func (fc *FlowController) Wait(ctx context.Context) error {
	for fc.ch.BufferedAmount() > fc.threshold {
		timer := time.NewTimer(fc.retry)
		select {
		case <-fc.low:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return context.Cause(ctx)
		}
		timer.Stop()
	}
	return nil
}

// Drain waits up to timeout for the backlog to empty so that a final frame is
// flushed before the channel is closed. A timeout is logged, not returned.
func (fc *FlowController) Drain(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for fc.ch.BufferedAmount() > 0 {
		select {
		case <-time.After(fc.retry):
		case <-deadline.C:
			slog.Warn("Channel still has buffered data", "bytes", fc.ch.BufferedAmount())
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	return nil
}
