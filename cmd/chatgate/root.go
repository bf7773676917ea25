package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beeper/chatgate/pkg/config"
)

const defaultConfigPath = "config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "chatgate",
		Short:         "Chat gateway runtime: OneBot-style actions and events over HTTP or reverse WebSocket",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to a YAML or JSON5 config file")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newCheckCmd(&configPath),
		newExampleConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Log.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp().Logger()
}
