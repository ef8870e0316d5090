package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/keystash/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	kindFlag   string
	ownerFlag  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "keystash",
	Short:         "Store and look up credentials in the system keychain",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

// activeConfig is loaded once per invocation by setup.
var activeConfig *config.Config

// setup loads the config file and installs the default logger.
func setup() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	activeConfig = cfg
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.keystash/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&kindFlag, "kind", "", "Item kind: internet-password or generic-password")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner tag (integer or four-char code)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
