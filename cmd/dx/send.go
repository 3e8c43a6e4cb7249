package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appevents "github.com/rescp17/dx/internal/app_events"
	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/sender"
	"github.com/rescp17/dx/pkg/ui"
)

func newSendCmd(c *cli) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "send [path]",
		Short: "Send a file, a directory, a glob or a text message",
		Example: "  dx send ./photos\n" +
			"  dx send '*.log' --code 123-4567-890\n" +
			"  dx send --text 'hello there'",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			textSet := cmd.Flags().Changed("text")
			if !textSet && len(args) == 0 {
				return errors.New("nothing to send: give a path or --text")
			}
			if textSet && len(args) > 0 {
				return errors.New("give either a path or --text, not both")
			}

			code, err := pairing.Resolve(c.cfg.Code, "", pairing.Sender)
			if err != nil {
				return err
			}
			relayURL, err := c.relayURL(cmd.Context())
			if err != nil {
				return err
			}
			webrtcCfg, err := c.webrtcConfig()
			if err != nil {
				return err
			}

			app := sender.NewApp(sender.Config{
				Code:               code,
				RelayURL:           relayURL,
				NegotiationTimeout: c.cfg.NegotiationTimeout,
				SigintGrace:        c.cfg.SigintGrace,
				Transfer:           c.cfg.Transfer(),
				WebRTC:             webrtcCfg,
			})

			run := func(ctx context.Context) error {
				if textSet {
					return app.SendText(ctx, text)
				}
				return app.SendFiles(ctx, args[0])
			}
			return exitStatus(c.runWithView(cmd.Context(), ui.Sender, app, app.Lifecycle(), run))
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "send this text instead of files")
	return cmd
}

// runWithView runs work next to the TUI, or the plain printer with --no-tui,
// and returns the work's error.
func (c *cli) runWithView(ctx context.Context, mode ui.Mode, app ui.AppController, lc *lifecycle.Manager, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handleSignals(ctx, lc)

	g, gctx := errgroup.WithContext(ctx)
	var workErr error
	g.Go(func() error {
		workErr = work(gctx)
		return nil
	})
	g.Go(func() error {
		if c.cfg.NoTUI {
			ui.RunPlain(gctx, os.Stderr, app.UIMessages())
			return nil
		}
		if _, err := ui.Run(gctx, mode, app); err != nil {
			select {
			case app.AppEvents() <- appevents.CancelTransferEvent{}:
			default:
			}
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return workErr
}
