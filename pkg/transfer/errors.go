package transfer

import "errors"

var (
	// ErrProtocol marks a control frame that is malformed or arrives out of order.
	ErrProtocol     = errors.New("transfer protocol violation")
	ErrUnknownFrame = errors.New("unknown control frame")

	ErrIncompleteTransfer = errors.New("incomplete file transfer")
	ErrWriteFailed        = errors.New("failed to write received data")
	ErrRemoteError        = errors.New("peer reported an error")
	ErrCancelledByPeer    = errors.New("transfer cancelled by peer")
	ErrCompletionTimeout  = errors.New("timed out waiting for the receiver to confirm")
	ErrChannelClosed      = errors.New("transfer channel closed")
	ErrTextTooLarge       = errors.New("text message too large")
	ErrIsDir              = errors.New("cannot chunk a directory")
)
