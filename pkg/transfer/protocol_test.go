package transfer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/dx/pkg/fileInfo"
)

func hashFile(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return sha256.Sum256(data)
}

func writeRandom(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CompletionTimeout = 5 * time.Second
	return cfg
}

// runReceiver drives r from inbox until it reports done.
func runReceiver(r *Receiver, inbox <-chan Message) <-chan error {
	result := make(chan error, 1)
	go func() {
		for msg := range inbox {
			if done, err := r.Handle(msg); done {
				result <- err
				return
			}
		}
	}()
	return result
}

func TestRoundTripDirectory(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(src, "payload")
	writeRandom(t, filepath.Join(root, "empty.dat"), 0)
	writeRandom(t, filepath.Join(root, "one", "tiny.dat"), 1)
	writeRandom(t, filepath.Join(root, "one", "two", "big.dat"), 70000)

	manifest, err := fileInfo.BuildManifest(root)
	require.NoError(t, err)
	require.Len(t, manifest, 3)

	out := t.TempDir()
	senderEnd, receiverEnd := newPipe()
	receiver := NewReceiver(out, receiverEnd, nil)
	received := runReceiver(receiver, receiverEnd.inbox)

	sender := NewSender(senderEnd, testConfig(), nil)
	require.NoError(t, sender.SendFiles(context.Background(), manifest, senderEnd.inbox))
	require.NoError(t, <-received)

	for _, entry := range manifest {
		got := filepath.Join(out, filepath.FromSlash(entry.RelativePath))
		assert.Equal(t, hashFile(t, entry.Path), hashFile(t, got), entry.RelativePath)
	}
	for _, res := range receiver.Results() {
		assert.True(t, res.Complete(), res.Name)
	}

	frames := senderEnd.sentFrames(t)
	require.NotEmpty(t, frames)
	assert.Equal(t, FileCountFrame(3), frames[0])
	assert.Equal(t, FrameAllFilesEnd, frames[len(frames)-1].Type)
	assert.Equal(t, []ControlFrame{AllFilesReceivedFrame()}, receiverEnd.sentFrames(t))
}

func TestFramesFollowManifestOrder(t *testing.T) {
	src := t.TempDir()
	writeRandom(t, filepath.Join(src, "a.bin"), 40000)
	writeRandom(t, filepath.Join(src, "b.bin"), 10)
	manifest, err := fileInfo.BuildManifest(filepath.Join(src, "*.bin"))
	require.NoError(t, err)

	senderEnd, receiverEnd := newPipe()
	cfg := testConfig()
	cfg.CompletionTimeout = 50 * time.Millisecond
	err = NewSender(senderEnd, cfg, nil).SendFiles(context.Background(), manifest, senderEnd.inbox)
	require.ErrorIs(t, err, ErrCompletionTimeout)

	close(receiverEnd.inbox)
	var sequence []string
	var bytesA, bytesB int
	current := ""
	for msg := range receiverEnd.inbox {
		if !msg.IsText {
			if current == "a.bin" {
				bytesA += len(msg.Data)
			} else {
				bytesB += len(msg.Data)
			}
			assert.LessOrEqual(t, len(msg.Data), DefaultChunkSize)
			continue
		}
		frame, err := NewJSONCodec().Decode(msg.Data)
		require.NoError(t, err)
		if frame.Type == FrameFile {
			current = frame.Name
			sequence = append(sequence, "file:"+frame.Name)
		} else {
			sequence = append(sequence, string(frame.Type))
		}
	}
	assert.Equal(t, []string{"file-count", "file:a.bin", "file-end", "file:b.bin", "file-end", "all-files-end"}, sequence)
	assert.Equal(t, 40000, bytesA)
	assert.Equal(t, 10, bytesB)
}

func TestSenderCompletionTimeout(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.txt")
	writeRandom(t, src, 100)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, _ := newPipe()
	cfg := testConfig()
	cfg.CompletionTimeout = 50 * time.Millisecond

	start := time.Now()
	err = NewSender(senderEnd, cfg, nil).SendFiles(context.Background(), manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, ErrCompletionTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSenderStopsOnPeerSigint(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.bin")
	writeRandom(t, src, 200000)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, _ := newPipe()
	senderEnd.inbox <- textMsg(t, SigintFrame())

	err = NewSender(senderEnd, testConfig(), nil).SendFiles(context.Background(), manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, ErrCancelledByPeer)
	for _, frame := range senderEnd.sentFrames(t) {
		assert.NotEqual(t, FrameAllFilesEnd, frame.Type)
	}
}

func TestSenderReportsRemoteError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.bin")
	writeRandom(t, src, 10)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, _ := newPipe()
	go func() {
		time.Sleep(10 * time.Millisecond)
		senderEnd.inbox <- textMsg(t, ErrorFrame(incompleteMessage))
	}()

	err = NewSender(senderEnd, testConfig(), nil).SendFiles(context.Background(), manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, ErrRemoteError)
	assert.Contains(t, err.Error(), incompleteMessage)
}

func TestSenderHonoursContext(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.bin")
	writeRandom(t, src, 10)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, _ := newPipe()
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := assert.AnError
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel(stop)
	}()
	err = NewSender(senderEnd, testConfig(), nil).SendFiles(ctx, manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, stop)
}

func TestSenderSendsNothingOnceCancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.bin")
	writeRandom(t, src, 1<<20)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, receiverEnd := newPipe()
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(assert.AnError)

	err = NewSender(senderEnd, testConfig(), nil).SendFiles(ctx, manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, senderEnd.sentFrames(t))
	assert.Empty(t, receiverEnd.inbox)
}

// cancellingChannel cancels its context after a fixed number of chunks.
type cancellingChannel struct {
	*memChannel
	after  int
	chunks int
	cancel context.CancelCauseFunc
}

func (c *cancellingChannel) Send(data []byte) error {
	c.chunks++
	if c.chunks == c.after {
		c.cancel(assert.AnError)
	}
	return c.memChannel.Send(data)
}

func TestSenderStopsStreamingWhenCancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f.bin")
	writeRandom(t, src, 1<<20)
	manifest, err := fileInfo.BuildManifest(src)
	require.NoError(t, err)

	senderEnd, receiverEnd := newPipe()
	ctx, cancel := context.WithCancelCause(context.Background())
	ch := &cancellingChannel{memChannel: senderEnd, after: 3, cancel: cancel}

	err = NewSender(ch, testConfig(), nil).SendFiles(ctx, manifest, senderEnd.inbox)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, ch.chunks)

	var types []FrameType
	for _, frame := range senderEnd.sentFrames(t) {
		types = append(types, frame.Type)
	}
	assert.Equal(t, []FrameType{FrameFileCount, FrameFile}, types)
	assert.Len(t, receiverEnd.inbox, 5)
}

func TestReceiverWriteFailureIsFatal(t *testing.T) {
	cases := map[string]func(t *testing.T, out string) string{
		"directory at file path": func(t *testing.T, out string) string {
			require.NoError(t, os.Mkdir(filepath.Join(out, "blocked.txt"), 0o755))
			return "blocked.txt"
		},
		"file at parent path": func(t *testing.T, out string) string {
			require.NoError(t, os.WriteFile(filepath.Join(out, "sub"), nil, 0o644))
			return "sub/inner.txt"
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			out := t.TempDir()
			target := setup(t, out)
			ch := &memChannel{}
			r := NewReceiver(out, ch, nil)

			_, err := r.Handle(textMsg(t, FileCountFrame(1)))
			require.NoError(t, err)
			done, err := r.Handle(textMsg(t, FileFrame(target, 3)))
			assert.True(t, done)
			assert.ErrorIs(t, err, ErrWriteFailed)

			frames := ch.sentFrames(t)
			require.NotEmpty(t, frames)
			assert.Equal(t, FrameError, frames[len(frames)-1].Type)
			assert.NoError(t, r.Close())
		})
	}
}

func TestReceiverFlagsTruncatedFile(t *testing.T) {
	out := t.TempDir()
	ch := &memChannel{}
	r := NewReceiver(out, ch, nil)

	steps := []Message{
		textMsg(t, FileCountFrame(2)),
		textMsg(t, FileFrame("good.txt", 3)),
		binMsg([]byte("abc")),
		textMsg(t, FileEndFrame()),
		textMsg(t, FileFrame("short.txt", 10)),
		binMsg([]byte("12345")),
		textMsg(t, FileEndFrame()),
	}
	for _, msg := range steps {
		done, err := r.Handle(msg)
		require.NoError(t, err)
		require.False(t, done)
	}

	done, err := r.Handle(textMsg(t, AllFilesEndFrame()))
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
	assert.Equal(t, []ControlFrame{ErrorFrame(incompleteMessage)}, ch.sentFrames(t))

	results := r.Results()
	require.Len(t, results, 2)
	assert.True(t, results[0].Complete())
	assert.False(t, results[1].Complete())
	assert.Equal(t, int64(5), results[1].Received)

	data, err := os.ReadFile(filepath.Join(out, "short.txt"))
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))
}

func TestReceiverRequiresDeclaredFileCount(t *testing.T) {
	ch := &memChannel{}
	r := NewReceiver(t.TempDir(), ch, nil)

	for _, msg := range []Message{
		textMsg(t, FileCountFrame(2)),
		textMsg(t, FileFrame("only.txt", 1)),
		binMsg([]byte("x")),
		textMsg(t, FileEndFrame()),
	} {
		_, err := r.Handle(msg)
		require.NoError(t, err)
	}
	done, err := r.Handle(textMsg(t, AllFilesEndFrame()))
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
}

func TestReceiverStrayChunkFailsTransfer(t *testing.T) {
	ch := &memChannel{}
	r := NewReceiver(t.TempDir(), ch, nil)

	done, err := r.Handle(binMsg([]byte("orphan")))
	require.NoError(t, err)
	require.False(t, done)

	done, err = r.Handle(textMsg(t, AllFilesEndFrame()))
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
}

func TestReceiverTextMode(t *testing.T) {
	out := t.TempDir()
	ch := &memChannel{}
	r := NewReceiver(out, ch, nil)

	done, err := r.Handle(Message{IsText: true, Data: []byte(`{"type":"text","content":"hello"}`)})
	require.NoError(t, err)
	assert.True(t, done)

	text, ok := r.Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, ch.sentFrames(t))
}

func TestReceiverNeverParsesBinaryAsControl(t *testing.T) {
	out := t.TempDir()
	r := NewReceiver(out, &memChannel{}, nil)

	_, err := r.Handle(textMsg(t, FileFrame("looks-like-json.bin", 17)))
	require.NoError(t, err)
	payload := []byte(`{"type":"sigint"}`)
	done, err := r.Handle(binMsg(payload))
	require.NoError(t, err)
	assert.False(t, done)
	_, err = r.Handle(textMsg(t, FileEndFrame()))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "looks-like-json.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReceiverPeerSigint(t *testing.T) {
	r := NewReceiver(t.TempDir(), &memChannel{}, nil)
	_, err := r.Handle(textMsg(t, FileFrame("partial.bin", 100)))
	require.NoError(t, err)

	done, err := r.Handle(textMsg(t, SigintFrame()))
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrCancelledByPeer)
	assert.NoError(t, r.Close())
}

func TestReceiverRejectsEscapingPath(t *testing.T) {
	ch := &memChannel{}
	r := NewReceiver(t.TempDir(), ch, nil)

	done, err := r.Handle(textMsg(t, FileFrame("../evil.txt", 1)))
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrProtocol)

	frames := ch.sentFrames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
}

func TestSendTextRoundTrip(t *testing.T) {
	senderEnd, receiverEnd := newPipe()
	r := NewReceiver(t.TempDir(), receiverEnd, nil)
	received := runReceiver(r, receiverEnd.inbox)

	require.NoError(t, NewSender(senderEnd, testConfig(), nil).SendText(context.Background(), "hello"))
	require.NoError(t, <-received)
	text, ok := r.Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestSendTextTooLarge(t *testing.T) {
	senderEnd, _ := newPipe()
	err := NewSender(senderEnd, testConfig(), nil).SendText(context.Background(), string(make([]byte, MaxTextBytes+1)))
	assert.ErrorIs(t, err, ErrTextTooLarge)
}
