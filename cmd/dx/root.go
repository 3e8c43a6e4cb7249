package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rescp17/dx/internal/config"
	"github.com/rescp17/dx/internal/logging"
	"github.com/rescp17/dx/pkg/discovery"
	"github.com/rescp17/dx/pkg/lifecycle"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

const relayLookupTimeout = 5 * time.Second

// cli carries state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "dx",
		Short: "Send files or text directly to another machine using a short code",
		Long: "dx pairs a sender and a receiver through a signaling relay using a short code,\n" +
			"then streams files or text over a direct WebRTC connection. File data never passes through the relay.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logCloser != nil {
				_ = c.logCloser.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./dx.yaml or ~/.config/dx/dx.yaml)")
	flags.String("relay", config.DefaultRelayURL, `signaling relay URL (ws:// or wss://), or "mdns" to find one on the LAN`)
	flags.StringP("code", "c", "", "pairing code (env DX_CODE)")
	flags.String("log-file", config.DefaultLogFile, "debug log file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("no-tui", false, "print plain progress lines instead of the interactive view")
	flags.Bool("mdns-candidates", false, "hide local addresses behind mDNS names")
	for flag, key := range map[string]string{
		"relay":           "relay_url",
		"code":            "code",
		"log-file":        "log_file",
		"log-level":       "log_level",
		"no-tui":          "no_tui",
		"mdns-candidates": "mdns_candidates",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newSendCmd(c), newReceiveCmd(c), newRelayCmd(c), newVersionCmd())
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closer, err := logging.SetupFile(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	c.cfg, c.logger, c.logCloser = cfg, logger, closer
	slog.Debug("Configuration loaded", "relay", cfg.RelayURL, "chunkSize", cfg.ChunkSize)
	return nil
}

// relayURL resolves "mdns" to the first relay announced on the LAN.
func (c *cli) relayURL(ctx context.Context) (string, error) {
	if c.cfg.RelayURL != discovery.RelayKeyword {
		return c.cfg.RelayURL, nil
	}
	ctx, cancel := context.WithTimeout(ctx, relayLookupTimeout)
	defer cancel()
	url, err := discovery.FindRelay(ctx, &discovery.MDNSAdapter{})
	if err != nil {
		return "", fmt.Errorf("relay lookup: %w", err)
	}
	slog.Info("Found relay on the LAN", "url", url)
	return url, nil
}

func (c *cli) webrtcConfig() (webrtcPkg.Config, error) {
	servers, err := c.cfg.ICEServers()
	if err != nil {
		return webrtcPkg.Config{}, err
	}
	return webrtcPkg.Config{
		ICEServers:     servers,
		MDNSCandidates: c.cfg.MDNSCandidates,
		Logger:         c.logger,
	}, nil
}

// handleSignals turns SIGINT/SIGTERM into a cooperative interrupt. A second
// signal stops waiting for the grace period.
func handleSignals(ctx context.Context, lc *lifecycle.Manager) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		count := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-lc.Done():
				return
			case sig := <-sigCh:
				count++
				slog.Info("Received signal", "signal", sig.String(), "count", count)
				if count == 1 {
					lc.Interrupt()
				} else {
					lc.Teardown(lifecycle.ErrInterrupted)
				}
			}
		}
	}()
}

// exitStatus keeps cooperative endings from failing the command.
func exitStatus(err error) error {
	if lifecycle.ExitCode(err) == 0 {
		return nil
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dx %s\n", version)
		},
	}
}
