package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/receiver"
	"github.com/rescp17/dx/pkg/ui"
)

func newReceiveCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "receive",
		Short:   "Receive files or text sent with the same code",
		Example: "  dx receive --code 123-4567-890 --out ./downloads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := pairing.Resolve(c.cfg.Code, "", pairing.Receiver)
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

			app := receiver.NewApp(receiver.Config{
				Code:               code,
				RelayURL:           relayURL,
				OutputDir:          c.cfg.OutputDir,
				NegotiationTimeout: c.cfg.NegotiationTimeout,
				SigintGrace:        c.cfg.SigintGrace,
				WebRTC:             webrtcCfg,
			})

			var result receiver.Result
			err = c.runWithView(cmd.Context(), ui.Receiver, app, app.Lifecycle(), func(ctx context.Context) error {
				var err error
				result, err = app.Receive(ctx)
				return err
			})
			slog.Info("Receive finished", "files", len(result.Files), "text", result.HasText, "error", err)
			if result.HasText {
				fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			}
			return exitStatus(err)
		},
	}
	cmd.Flags().StringP("out", "o", ".", "directory to write received files into")
	_ = c.v.BindPFlag("output_dir", cmd.Flags().Lookup("out"))
	return cmd
}
