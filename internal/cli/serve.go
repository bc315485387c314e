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

	"github.com/tabwire/tabwire/internal/bus"
	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/metrics"
	"github.com/tabwire/tabwire/internal/server"
	"github.com/tabwire/tabwire/internal/state"
	"github.com/tabwire/tabwire/internal/stdio"
	"github.com/tabwire/tabwire/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge (this is what the browser launches)",
	Long: `Run the bridge process. Stdin and stdout carry the native-messaging frame
stream to the browser-extension peer; the HTTP API and WebSocket
subscriptions are served on the configured port. The process exits when the
peer disconnects.`,
	RunE: runServe,
}

func init() {
	bindConfigFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo(Version, BuildSHA, BuildDate)

	store := state.New()
	b := bus.New()
	defer b.Close()
	transport := stdio.New(os.Stdin, os.Stdout, b, store)

	// Bind before anything else so a second instance fails immediately
	// instead of silently racing the first for peer control.
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use; is another tabwire instance running?", cfg.Port)
		}
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err)
	}
	logx.Log.Info().Str("addr", cfg.ListenAddr()).Msg("listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Handler: server.New(cfg, b, store)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	if cfg.AgentsDir != "" {
		w := watch.New(cfg.AgentsDir, fmt.Sprintf("http://%s", cfg.ListenAddr()))
		go func() {
			if err := w.Run(ctx); err != nil {
				logx.Log.Error().Err(err).Msg("script watcher failed")
			}
		}()
	}

	err = transport.Run(ctx)
	switch {
	case err == nil:
		logx.Log.Info().Msg("peer gone, shutting down")
	case errors.Is(err, context.Canceled):
		logx.Log.Info().Msg("termination requested, shutting down")
	default:
		logx.Log.Error().Err(err).Msg("peer transport failed, shutting down")
	}
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logx.Log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
