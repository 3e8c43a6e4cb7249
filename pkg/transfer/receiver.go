package transfer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/internal/app_events/receiver"
)

const incompleteMessage = "Incomplete file transfer"

// FileResult records what arrived for one declared file.
type FileResult struct {
	Name     string
	Path     string
	Expected int64
	Received int64
}

func (r FileResult) Complete() bool {
	return r.Expected == r.Received
}

type openFile struct {
	name     string
	path     string
	file     *os.File
	size     int64
	received int64
}

// Receiver applies inbound messages to the output directory. It is driven by
// a single loop calling Handle and is not safe for concurrent use.
type Receiver struct {
	outputDir  string
	ch         Channel
	codec      FrameCodec
	uiMessages chan<- tea.Msg

	expectedFiles int
	current       *openFile
	results       []FileResult
	strayBytes    int64
	violations    int
	receivedBytes int64

	text    string
	gotText bool
}

func NewReceiver(outputDir string, ch Channel, uiMessages chan<- tea.Msg) *Receiver {
	return &Receiver{
		outputDir:     outputDir,
		ch:            ch,
		codec:         NewJSONCodec(),
		uiMessages:    uiMessages,
		expectedFiles: -1,
	}
}

// Handle processes one message. done reports that the transfer reached a
// terminal frame; err is set when that end is not a success.
func (r *Receiver) Handle(msg Message) (done bool, err error) {
	if !msg.IsText {
		return r.handleChunk(msg.Data)
	}
	frame, err := r.codec.Decode(msg.Data)
	if err != nil {
		slog.Warn("Ignoring malformed control frame", "error", err)
		r.violations++
		return false, nil
	}

	switch frame.Type {
	case FrameFileCount:
		r.expectedFiles = frame.Count
		slog.Info("Expecting files", "count", frame.Count)
		return false, nil
	case FrameFile:
		return r.startFile(frame.Name, frame.Size)
	case FrameFileEnd:
		if r.current == nil {
			slog.Warn("file-end without an open file")
			r.violations++
			return false, nil
		}
		return r.finishFile()
	case FrameAllFilesEnd:
		return r.finishTransfer()
	case FrameText:
		r.text, r.gotText = frame.Content, true
		notify(r.uiMessages, receiver.TextReceivedMsg{Text: frame.Content})
		return true, nil
	case FrameSigint:
		slog.Info("Sender interrupted the transfer")
		return true, ErrCancelledByPeer
	case FrameError:
		return true, fmt.Errorf("%w: %s", ErrRemoteError, frame.Message)
	default:
		slog.Warn("Ignoring unexpected control frame", "type", frame.Type)
		return false, nil
	}
}

func (r *Receiver) startFile(name string, size int64) (bool, error) {
	if r.current != nil {
		slog.Warn("file frame while another file is open", "open", r.current.name, "next", name)
		r.violations++
		if done, err := r.finishFile(); done {
			return done, err
		}
	}

	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return r.fail(fmt.Errorf("%w: refusing to write outside the output directory: %q", ErrProtocol, name))
	}
	path := filepath.Join(r.outputDir, local)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return r.fail(fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}
	file, err := os.Create(path)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}

	r.current = &openFile{name: name, path: path, file: file, size: size}
	slog.Info("Receiving file", "name", name, "size", size)
	notify(r.uiMessages, appevents.FileStartedMsg{Name: name, Size: size, Index: len(r.results) + 1, Total: r.expectedFiles})
	return false, nil
}

func (r *Receiver) handleChunk(data []byte) (bool, error) {
	if r.current == nil {
		slog.Warn("Chunk received with no open file", "bytes", len(data))
		r.strayBytes += int64(len(data))
		return false, nil
	}
	if _, err := r.current.file.Write(data); err != nil {
		return r.fail(fmt.Errorf("%w: %s: %v", ErrWriteFailed, r.current.name, err))
	}
	r.current.received += int64(len(data))
	r.receivedBytes += int64(len(data))
	notify(r.uiMessages, appevents.ProgressMsg{
		Name:      r.current.name,
		FileBytes: r.current.received,
		FileSize:  r.current.size,
		DoneBytes: r.receivedBytes,
	})
	return false, nil
}

func (r *Receiver) finishFile() (bool, error) {
	cur := r.current
	r.current = nil
	if err := cur.file.Close(); err != nil {
		return r.fail(fmt.Errorf("%w: %s: %v", ErrWriteFailed, cur.name, err))
	}
	result := FileResult{Name: cur.name, Path: cur.path, Expected: cur.size, Received: cur.received}
	r.results = append(r.results, result)
	if !result.Complete() {
		slog.Warn("Received size does not match declared size", "name", cur.name, "expected", cur.size, "received", cur.received)
		notify(r.uiMessages, receiver.IntegrityIssueMsg{Name: cur.name, Expected: cur.size, Received: cur.received})
	} else {
		slog.Info("File received", "name", cur.name, "size", cur.received)
	}
	return false, nil
}

func (r *Receiver) finishTransfer() (bool, error) {
	if r.current != nil {
		slog.Warn("all-files-end while a file is still open", "name", r.current.name)
		r.violations++
		if done, err := r.finishFile(); done {
			return done, err
		}
	}

	var incomplete []string
	for _, res := range r.results {
		if !res.Complete() {
			incomplete = append(incomplete, res.Name)
		}
	}
	countMismatch := r.expectedFiles >= 0 && r.expectedFiles != len(r.results)
	if len(incomplete) == 0 && !countMismatch && r.strayBytes == 0 && r.violations == 0 {
		if err := r.sendControl(AllFilesReceivedFrame()); err != nil {
			return true, err
		}
		return true, nil
	}

	slog.Warn("Transfer incomplete",
		"incomplete", incomplete,
		"expectedFiles", r.expectedFiles,
		"receivedFiles", len(r.results),
		"strayBytes", r.strayBytes,
		"violations", r.violations)
	if err := r.sendControl(ErrorFrame(incompleteMessage)); err != nil {
		slog.Warn("Failed to report incomplete transfer", "error", err)
	}
	return true, fmt.Errorf("%w: %d of %d files incomplete", ErrIncompleteTransfer, len(incomplete), len(r.results))
}

// fail tells the sender why the transfer stopped, then ends it.
func (r *Receiver) fail(err error) (bool, error) {
	if sendErr := r.sendControl(ErrorFrame(err.Error())); sendErr != nil {
		slog.Warn("Failed to report error to sender", "error", sendErr)
	}
	return true, err
}

func (r *Receiver) sendControl(frame ControlFrame) error {
	text, err := r.codec.Encode(frame)
	if err != nil {
		return err
	}
	if err := r.ch.SendText(text); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Type, err)
	}
	return nil
}

func (r *Receiver) Results() []FileResult {
	return r.results
}

// Text returns the content of a text frame, if one arrived.
func (r *Receiver) Text() (string, bool) {
	return r.text, r.gotText
}

// Close releases a file left open by an interrupted transfer.
func (r *Receiver) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.file.Close()
	slog.Warn("Transfer ended with a partial file", "name", r.current.name, "received", r.current.received, "expected", r.current.size)
	r.current = nil
	return err
}
