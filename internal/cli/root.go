// Package cli wires the tabwire subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabwire/tabwire/internal/config"
)

// Build metadata, set at build time via ldflags.
var (
	Version   = "dev"
	BuildSHA  = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "tabwire",
	Short:         "tabwire bridges a browser-extension peer to local HTTP and WebSocket clients",
	Long:          "tabwire speaks Chrome native messaging (length-prefixed JSON on stdin/stdout)\nto a browser extension and exposes its commands and state on a local HTTP API\nwith WebSocket subscriptions.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tabwire version=%s sha=%s date=%s\n", Version, BuildSHA, BuildDate)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// resolveConfig applies the precedence defaults < file < env < flags for
// the flags registered by bindConfigFlags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows TABWIRE_CONFIG_FILE before the file loads
	if v, _ := cmd.Flags().GetString("config"); cmd.Flags().Changed("config") {
		cfg.ConfigFile = v
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv()
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("agents-dir") {
		cfg.AgentsDir, _ = cmd.Flags().GetString("agents-dir")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	return cfg, nil
}

func bindConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config.yaml")
	cmd.Flags().String("host", "", "HTTP listen host")
	cmd.Flags().IntP("port", "p", 0, "HTTP listen port")
	cmd.Flags().String("agents-dir", "", "directory of .js scripts to sync")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
}
