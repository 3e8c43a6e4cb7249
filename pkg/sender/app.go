package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	senderEvent "github.com/rescp17/dx/internal/app_events/sender"
	"github.com/rescp17/dx/pkg/concurrency"
	"github.com/rescp17/dx/pkg/fileInfo"
	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/session"
	"github.com/rescp17/dx/pkg/transfer"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

// peerCloseLinger bounds the wait for the peer to close first, so frames
// still in flight are not cut off by our own teardown.
const peerCloseLinger = 2 * time.Second

// Config is everything the sender needs once flags and environment are resolved.
type Config struct {
	Code               pairing.Code
	RelayURL           string
	NegotiationTimeout time.Duration
	SigintGrace        time.Duration
	Transfer           transfer.Config
	WebRTC             webrtcPkg.Config
}

// App is the main application logic controller for the sender.
type App struct {
	cfg        Config
	guard      *concurrency.ConcurrencyGuard
	webrtcAPI  *webrtcPkg.WebRTCAPI
	lifecycle  *lifecycle.Manager
	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
}

// NewApp creates a new sender application instance.
func NewApp(cfg Config) *App {
	return &App{
		cfg:        cfg,
		guard:      concurrency.NewConcurrencyGuard(),
		webrtcAPI:  webrtcPkg.NewWebRTCAPI(cfg.WebRTC),
		lifecycle:  lifecycle.New(cfg.SigintGrace),
		uiMessages: make(chan tea.Msg, 64),
		appEvents:  make(chan appevents.AppEvent, 4),
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

func (a *App) Lifecycle() *lifecycle.Manager {
	return a.lifecycle
}

// SendFiles enumerates path before touching the network, then streams it.
func (a *App) SendFiles(ctx context.Context, path string) error {
	files, err := fileInfo.BuildManifest(path)
	if err != nil {
		a.finish(err)
		return err
	}
	total := fileInfo.TotalSize(files)
	slog.Info("Manifest ready", "files", len(files), "bytes", total, "label", fileInfo.Describe(files))
	a.uiMessages <- senderEvent.ManifestReadyMsg{Files: len(files), TotalBytes: total}

	return a.run(ctx, func(ctx context.Context, sess *session.Session) error {
		engine := transfer.NewSender(sess.Channel, a.cfg.Transfer, a.uiMessages)
		err := engine.SendFiles(ctx, files, sess.Channel.Messages())
		if err == nil {
			a.uiMessages <- senderEvent.CompletionAckMsg{}
		}
		return err
	})
}

// SendText sends a single text message instead of files.
func (a *App) SendText(ctx context.Context, text string) error {
	return a.run(ctx, func(ctx context.Context, sess *session.Session) error {
		if err := transfer.NewSender(sess.Channel, a.cfg.Transfer, a.uiMessages).SendText(ctx, text); err != nil {
			return err
		}
		// Text has no acknowledgement; the receiver closes the channel once it has it.
		select {
		case <-ctx.Done():
		case <-time.After(peerCloseLinger):
		}
		return nil
	})
}

func (a *App) run(ctx context.Context, work func(context.Context, *session.Session) error) error {
	return a.guard.Execute(func() error {
		ctx := a.lifecycle.Context(ctx)
		go a.listen(ctx)

		a.uiMessages <- senderEvent.CodeReadyMsg{Code: string(a.cfg.Code)}
		sess, err := session.Connect(ctx, session.Options{
			Role:               pairing.Sender,
			Code:               a.cfg.Code,
			RelayURL:           a.cfg.RelayURL,
			NegotiationTimeout: a.cfg.NegotiationTimeout,
			API:                a.webrtcAPI,
			Lifecycle:          a.lifecycle,
			UIMessages:         a.uiMessages,
		})
		if err != nil {
			err = fmt.Errorf("failed to connect: %w", err)
			a.finish(err)
			return err
		}
		defer sess.Close()

		err = work(sess.Context(), sess)
		a.finish(err)
		return err
	})
}

// listen forwards TUI events until the transfer ends.
func (a *App) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.appEvents:
			switch event.(type) {
			case appevents.CancelTransferEvent, *appevents.CancelTransferEvent:
				a.lifecycle.Interrupt()
			}
		}
	}
}

// finish runs teardown and hands the outcome to the UI.
func (a *App) finish(err error) {
	a.lifecycle.Teardown(err)
	reason := a.lifecycle.Err()
	if err != nil && lifecycle.ExitCode(err) != 0 {
		slog.Error("Transfer failed", "error", err)
	}
	summary := "Transfer complete"
	switch {
	case reason == nil:
	case lifecycle.ExitCode(reason) == 0:
		summary = fmt.Sprintf("Transfer ended: %v", reason)
	default:
		summary = fmt.Sprintf("Transfer failed: %v", reason)
	}
	select {
	case a.uiMessages <- appevents.TransferDoneMsg{Err: reason, Summary: summary}:
	case <-time.After(time.Second):
		slog.Warn("UI did not take the final message")
	}
}
