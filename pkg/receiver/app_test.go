package receiver

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/sender"
	"github.com/rescp17/dx/pkg/session"
	"github.com/rescp17/dx/pkg/signaling"
	"github.com/rescp17/dx/pkg/transfer"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

func startRelay(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(signaling.NewServer(signaling.ServerConfig{}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func drain(msgs <-chan tea.Msg) <-chan appevents.TransferDoneMsg {
	done := make(chan appevents.TransferDoneMsg, 1)
	go func() {
		for msg := range msgs {
			if d, ok := msg.(appevents.TransferDoneMsg); ok {
				done <- d
				return
			}
		}
	}()
	return done
}

func skipNetwork(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	if os.Getenv("SKIP_NETWORK_TESTS") == "true" {
		t.Skip("skipping network test")
	}
}

var localWebRTC = webrtcPkg.Config{IncludeLoopback: true}

type pair struct {
	sender   *sender.App
	receiver *App
	outDir   string
}

func newPair(t *testing.T, code pairing.Code) pair {
	t.Helper()
	url := startRelay(t)
	out := filepath.Join(t.TempDir(), "out")
	return pair{
		sender: sender.NewApp(sender.Config{
			Code:               code,
			RelayURL:           url,
			NegotiationTimeout: 30 * time.Second,
			Transfer:           transfer.DefaultConfig(),
			WebRTC:             localWebRTC,
		}),
		receiver: NewApp(Config{
			Code:               code,
			RelayURL:           url,
			OutputDir:          out,
			NegotiationTimeout: 30 * time.Second,
			WebRTC:             localWebRTC,
		}),
		outDir: out,
	}
}

func (p pair) receive() <-chan struct {
	res Result
	err error
} {
	out := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		res, err := p.receiver.Receive(context.Background())
		out <- struct {
			res Result
			err error
		}{res, err}
	}()
	return out
}

func TestSendDirectoryEndToEnd(t *testing.T) {
	skipNetwork(t)

	src := filepath.Join(t.TempDir(), "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "2024"), 0o755))
	big := make([]byte, 70000)
	for i := range big {
		big[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "empty"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "2024", "big.bin"), big, 0o644))

	p := newPair(t, "123-4567-890")
	sendDone := drain(p.sender.UIMessages())
	recvDone := drain(p.receiver.UIMessages())
	received := p.receive()

	err := p.sender.SendFiles(context.Background(), src)
	require.NoError(t, err)

	var got struct {
		res Result
		err error
	}
	select {
	case got = <-received:
	case <-time.After(30 * time.Second):
		t.Fatal("receiver did not finish")
	}
	require.NoError(t, got.err)
	assert.Len(t, got.res.Files, 3)
	for _, f := range got.res.Files {
		assert.True(t, f.Complete(), f.Name)
	}

	data, err := os.ReadFile(filepath.Join(p.outDir, "photos", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	data, err = os.ReadFile(filepath.Join(p.outDir, "photos", "2024", "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, big, data)
	info, err := os.Stat(filepath.Join(p.outDir, "photos", "empty"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	assert.NoError(t, (<-sendDone).Err)
	assert.NoError(t, (<-recvDone).Err)
}

func TestSendTextEndToEnd(t *testing.T) {
	skipNetwork(t)

	p := newPair(t, "555-0000-111")
	drain(p.sender.UIMessages())
	drain(p.receiver.UIMessages())
	received := p.receive()

	require.NoError(t, p.sender.SendText(context.Background(), "héllo {\"type\":\"file\"}"))

	select {
	case got := <-received:
		require.NoError(t, got.err)
		assert.True(t, got.res.HasText)
		assert.Equal(t, "héllo {\"type\":\"file\"}", got.res.Text)
		assert.Empty(t, got.res.Files)
	case <-time.After(30 * time.Second):
		t.Fatal("receiver did not finish")
	}
}

func TestReceiverTimesOutWithoutSender(t *testing.T) {
	url := startRelay(t)
	app := NewApp(Config{
		Code:               "999-9999-999",
		RelayURL:           url,
		OutputDir:          t.TempDir(),
		NegotiationTimeout: 200 * time.Millisecond,
		WebRTC:             localWebRTC,
	})
	done := drain(app.UIMessages())

	_, err := app.Receive(context.Background())
	require.ErrorIs(t, err, session.ErrNegotiationTimeout)
	assert.Equal(t, 1, lifecycle.ExitCode(err))
	assert.ErrorIs(t, (<-done).Err, session.ErrNegotiationTimeout)
}

func TestReceiverRejectsFileAsOutputDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	app := NewApp(Config{Code: "123-4567-890", RelayURL: "ws://127.0.0.1:1", OutputDir: file})
	drain(app.UIMessages())

	_, err := app.Receive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestCancelEventInterruptsReceiver(t *testing.T) {
	url := startRelay(t)
	app := NewApp(Config{
		Code:      "111-2222-333",
		RelayURL:  url,
		OutputDir: t.TempDir(),
		WebRTC:    localWebRTC,
	})
	done := drain(app.UIMessages())

	errc := make(chan error, 1)
	go func() {
		_, err := app.Receive(context.Background())
		errc <- err
	}()

	time.Sleep(100 * time.Millisecond)
	app.AppEvents() <- appevents.CancelTransferEvent{}

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, lifecycle.ErrInterrupted)
		assert.Equal(t, 0, lifecycle.ExitCode(err))
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not stop the receiver")
	}
	assert.True(t, app.Lifecycle().Interrupted())
	assert.ErrorIs(t, (<-done).Err, lifecycle.ErrInterrupted)
}
