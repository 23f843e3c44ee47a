package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/api"
	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/tracker"
)

const (
	// tickInterval drives the grace and detention notifications while no
	// client is polling.
	tickInterval    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API used by phone shortcuts and dispatch dashboards.

The listen address comes from --addr, then listen_addr in the config file.
When an MQTT broker is configured, lifecycle events are published while the
server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config, 127.0.0.1:8787)")
	return cmd
}

func runServe(ctx context.Context, opts *options, addr string) error {
	env, err := opts.open()
	if err != nil {
		return err
	}
	defer env.Close()
	env.logTo(os.Stdout)

	ctx = logger.WithName(ctx, "serve")

	if addr == "" {
		addr = env.cfg.ListenAddr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	pub, err := env.publisher(ctx)
	if err != nil {
		return err
	}
	defer pub.Close()

	trk := tracker.New(env.store, pub, nil)
	srv := api.NewServer(trk, invoice.NewService(env.store, invoice.NewMailer(env.cfg.SMTP), nil))
	if env.cfg.Metrics {
		srv.EnableMetrics()
	}

	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go tickLoop(ctx, trk)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(lis) }()

	logger.InfoKV(ctx, "listening", "addr", lis.Addr().String(), "db", env.dbPath, "metrics", env.cfg.Metrics)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.InfoKV(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// tickLoop evaluates the active event periodically until ctx is done.
func tickLoop(ctx context.Context, trk *tracker.Service) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := trk.Tick(ctx); err != nil {
				logger.WarnKV(ctx, "tick failed", "error", err)
			}
		}
	}
}
