package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tabwire/tabwire/internal/logx"
	"github.com/tabwire/tabwire/internal/watch"
)

var watchServer string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync a directory of .js scripts into a running bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		logx.Configure(cfg.LogLevel)

		target := watchServer
		if target == "" {
			target = fmt.Sprintf("http://%s", cfg.ListenAddr())
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		logx.Log.Info().Str("dir", cfg.AgentsDir).Str("server", target).Msg("watching scripts")
		return watch.New(cfg.AgentsDir, target).Run(ctx)
	},
}

func init() {
	bindConfigFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchServer, "server", "", "bridge base URL (default: the configured host and port)")
	rootCmd.AddCommand(watchCmd)
}
