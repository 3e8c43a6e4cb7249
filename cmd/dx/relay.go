package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/dx/pkg/discovery"
	"github.com/rescp17/dx/pkg/signaling"
)

func newRelayCmd(c *cli) *cobra.Command {
	var (
		addr     string
		announce bool
		rate     float64
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a signaling relay that pairs senders and receivers by code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cmd, addr, announce, signaling.ServerConfig{MessagesPerSecond: rate})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8787", "listen address")
	cmd.Flags().BoolVar(&announce, "announce", false, "advertise the relay on the LAN over mDNS")
	cmd.Flags().Float64Var(&rate, "rate", 0, "messages per second allowed per connection (0 for the default)")
	return cmd
}

func runRelay(ctx context.Context, cmd *cobra.Command, addr string, announce bool, cfg signaling.ServerConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:           signaling.NewServer(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s\n", ln.Addr())
	slog.Info("Relay listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Relay shutdown error", "error", err)
		}
		return nil
	})
	if announce {
		g.Go(func() error {
			hostname, err := os.Hostname()
			if err != nil {
				return fmt.Errorf("could not get hostname: %w", err)
			}
			info := discovery.ServiceInfo{
				Name:   fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
				Type:   discovery.DefaultServerType,
				Domain: discovery.DefaultDomain,
				Port:   port,
				Text:   map[string]string{"path": "/", "port": strconv.Itoa(port)},
			}
			if err := (&discovery.MDNSAdapter{}).Announce(gctx, info); err != nil {
				return fmt.Errorf("failed to start mDNS announcement: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
