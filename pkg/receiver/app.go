package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/internal/util"
	"github.com/rescp17/dx/pkg/concurrency"
	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/session"
	"github.com/rescp17/dx/pkg/transfer"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

const peerCloseLinger = 2 * time.Second

type Config struct {
	Code               pairing.Code
	RelayURL           string
	OutputDir          string
	NegotiationTimeout time.Duration
	SigintGrace        time.Duration
	WebRTC             webrtcPkg.Config
}

// Result is what one receive produced.
type Result struct {
	Files   []transfer.FileResult
	Text    string
	HasText bool
}

// App is the main application logic controller for the receiver.
type App struct {
	cfg        Config
	guard      *concurrency.ConcurrencyGuard
	webrtcAPI  *webrtcPkg.WebRTCAPI
	lifecycle  *lifecycle.Manager
	uiMessages chan tea.Msg
	appEvents  chan appevents.AppEvent
}

// NewApp creates a new receiver application instance.
func NewApp(cfg Config) *App {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return &App{
		cfg:        cfg,
		guard:      concurrency.NewConcurrencyGuard(),
		webrtcAPI:  webrtcPkg.NewWebRTCAPI(cfg.WebRTC),
		lifecycle:  lifecycle.New(cfg.SigintGrace),
		uiMessages: make(chan tea.Msg, 64),
		appEvents:  make(chan appevents.AppEvent, 4),
	}
}

func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

func (a *App) Lifecycle() *lifecycle.Manager {
	return a.lifecycle
}

// Receive waits for the sender, then writes whatever it sends under the
// output directory. The returned Result is filled even on failure.
func (a *App) Receive(ctx context.Context) (Result, error) {
	var result Result
	err := a.guard.Execute(func() error {
		if err := util.EnsureDirectory(a.cfg.OutputDir); err != nil {
			err = fmt.Errorf("output directory: %w", err)
			a.finish(err)
			return err
		}

		ctx := a.lifecycle.Context(ctx)
		go a.listen(ctx)

		sess, err := session.Connect(ctx, session.Options{
			Role:               pairing.Receiver,
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

		engine := transfer.NewReceiver(a.cfg.OutputDir, sess.Channel, a.uiMessages)
		err = receiveLoop(sess.Context(), engine, sess.Channel.Messages())
		if closeErr := engine.Close(); closeErr != nil {
			slog.Warn("Failed to close partial file", "error", closeErr)
		}
		result.Files = engine.Results()
		result.Text, result.HasText = engine.Text()
		if !result.HasText {
			// Our verdict is the last frame; let the sender close first.
			select {
			case <-sess.Context().Done():
			case <-time.After(peerCloseLinger):
			}
		}
		a.finish(err)
		return err
	})
	return result, err
}

// receiveLoop feeds the engine until it reports the transfer done. Frames
// already queued when the channel closes are still handled, so a final
// all-files-end racing the close is not lost.
func receiveLoop(ctx context.Context, engine *transfer.Receiver, messages <-chan transfer.Message) error {
	for {
		select {
		case msg := <-messages:
			if done, err := engine.Handle(msg); done {
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case msg := <-messages:
					if done, err := engine.Handle(msg); done {
						return err
					}
				default:
					return context.Cause(ctx)
				}
			}
		}
	}
}

func (a *App) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.appEvents:
			switch event.(type) {
			case appevents.CancelTransferEvent, *appevents.CancelTransferEvent:
				a.lifecycle.Interrupt()
			default:
				slog.Warn("Received unhandled app event", "event", event)
			}
		}
	}
}

func (a *App) finish(err error) {
	a.lifecycle.Teardown(err)
	reason := a.lifecycle.Err()
	if err != nil && lifecycle.ExitCode(err) != 0 {
		slog.Error("Receive failed", "error", err)
	}
	summary := "Transfer complete"
	switch {
	case reason == nil:
	case errors.Is(reason, transfer.ErrCancelledByPeer):
		summary = "Sender cancelled the transfer"
	case lifecycle.ExitCode(reason) == 0:
		summary = fmt.Sprintf("Receive ended: %v", reason)
	default:
		summary = fmt.Sprintf("Receive failed: %v", reason)
	}
	select {
	case a.uiMessages <- appevents.TransferDoneMsg{Err: reason, Summary: summary}:
	case <-time.After(time.Second):
		slog.Warn("UI did not take the final message")
	}
}
