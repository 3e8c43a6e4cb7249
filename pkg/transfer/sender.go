package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/pkg/fileInfo"
)

const drainTimeout = 5 * time.Second

// Sender drives the sending side of the protocol over an open channel.
type Sender struct {
	ch         Channel
	codec      FrameCodec
	cfg        Config
	flow       *FlowController
	uiMessages chan<- tea.Msg
}

func NewSender(ch Channel, cfg Config, uiMessages chan<- tea.Msg) *Sender {
	return &Sender{
		ch:         ch,
		codec:      NewJSONCodec(),
		cfg:        cfg,
		flow:       NewFlowController(ch, uint64(cfg.ChunkSize), cfg.RetryInterval),
		uiMessages: uiMessages,
	}
}

func (s *Sender) sendControl(frame ControlFrame) error {
	text, err := s.codec.Encode(frame)
	if err != nil {
		return err
	}
	if err := s.ch.SendText(text); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Type, err)
	}
	return nil
}

// sendControlCtx refuses to send once ctx is done; after a local interrupt the
// sigint frame must be the last thing the peer sees from us.
func (s *Sender) sendControlCtx(ctx context.Context, frame ControlFrame) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return s.sendControl(frame)
}

// SendFiles streams every entry in manifest order, then waits for the
// receiver's verdict. inbox carries the messages the peer sends back.
func (s *Sender) SendFiles(ctx context.Context, files []fileInfo.Entry, inbox <-chan Message) error {
	total := fileInfo.TotalSize(files)
	var done int64

	if err := s.sendControlCtx(ctx, FileCountFrame(len(files))); err != nil {
		return err
	}
	for i, entry := range files {
		if err := s.sendControlCtx(ctx, FileFrame(entry.RelativePath, entry.Size)); err != nil {
			return err
		}
		slog.Info("Sending file", "name", entry.RelativePath, "size", entry.Size, "mime", entry.MimeType)
		notify(s.uiMessages, appevents.FileStartedMsg{Name: entry.RelativePath, Size: entry.Size, Index: i + 1, Total: len(files)})

		sent, err := s.streamFile(ctx, entry, inbox, done, total)
		done += sent
		if err != nil {
			return err
		}
		if sent != entry.Size {
			slog.Warn("File size changed while sending", "name", entry.RelativePath, "declared", entry.Size, "sent", sent)
		}
		if err := s.sendControlCtx(ctx, FileEndFrame()); err != nil {
			return err
		}
	}
	if err := s.sendControlCtx(ctx, AllFilesEndFrame()); err != nil {
		return err
	}
	slog.Info("All files sent, waiting for confirmation", "files", len(files), "bytes", done)
	return s.awaitCompletion(ctx, inbox)
}

func (s *Sender) streamFile(ctx context.Context, entry fileInfo.Entry, inbox <-chan Message, done, total int64) (int64, error) {
	chunker, err := NewChunker(entry.Path, s.cfg.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer chunker.Close()

	var sent int64
	for {
		if err := context.Cause(ctx); err != nil {
			return sent, err
		}
		if err := s.flow.Wait(ctx); err != nil {
			return sent, err
		}
		if err := s.checkInbox(inbox); err != nil {
			return sent, err
		}
		chunk, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("failed to read %s: %w", entry.Path, err)
		}
		if err := s.ch.Send(chunk); err != nil {
			return sent, fmt.Errorf("failed to send chunk: %w", err)
		}
		sent += int64(len(chunk))
		notify(s.uiMessages, appevents.ProgressMsg{
			Name:       entry.RelativePath,
			FileBytes:  sent,
			FileSize:   entry.Size,
			DoneBytes:  done + sent,
			TotalBytes: total,
		})
	}
}

// checkInbox looks for a cancellation or error from the peer without blocking.
func (s *Sender) checkInbox(inbox <-chan Message) error {
	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				return ErrChannelClosed
			}
			if err := s.peerVerdict(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// peerVerdict maps a message from the receiver to a terminal error, if it is one.
func (s *Sender) peerVerdict(msg Message) error {
	if !msg.IsText {
		slog.Warn("Ignoring binary message from receiver", "bytes", len(msg.Data))
		return nil
	}
	frame, err := s.codec.Decode(msg.Data)
	if err != nil {
		slog.Warn("Ignoring malformed control frame", "error", err)
		return nil
	}
	switch frame.Type {
	case FrameSigint:
		return ErrCancelledByPeer
	case FrameError:
		return fmt.Errorf("%w: %s", ErrRemoteError, frame.Message)
	}
	return nil
}

func (s *Sender) awaitCompletion(ctx context.Context, inbox <-chan Message) error {
	timer := time.NewTimer(s.cfg.CompletionTimeout)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				return ErrChannelClosed
			}
			if msg.IsText {
				if frame, err := s.codec.Decode(msg.Data); err == nil && frame.Type == FrameAllFilesReceived {
					slog.Info("Receiver confirmed all files")
					return nil
				}
			}
			if err := s.peerVerdict(msg); err != nil {
				return err
			}
		case <-timer.C:
			slog.Warn("Receiver did not confirm completion", "timeout", s.cfg.CompletionTimeout)
			return ErrCompletionTimeout
		case <-ctx.Done():
			// The verdict may already be queued behind the close.
			select {
			case msg := <-inbox:
				if msg.IsText {
					if frame, err := s.codec.Decode(msg.Data); err == nil && frame.Type == FrameAllFilesReceived {
						return nil
					}
				}
			default:
			}
			return context.Cause(ctx)
		}
	}
}

// SendText sends a single text frame and waits for it to leave the local buffer.
func (s *Sender) SendText(ctx context.Context, text string) error {
	if len(text) > MaxTextBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTextTooLarge, len(text), MaxTextBytes)
	}
	if err := s.sendControl(TextFrame(text)); err != nil {
		return err
	}
	return s.flow.Drain(ctx, drainTimeout)
}

// notify never blocks; progress updates are dropped when the UI lags.
func notify(uiMessages chan<- tea.Msg, msg tea.Msg) {
	if uiMessages == nil {
		return
	}
	select {
	case uiMessages <- msg:
	default:
	}
}
