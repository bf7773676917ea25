package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beeper/chatgate/pkg/bot"
	"github.com/beeper/chatgate/pkg/builtin"
	"github.com/beeper/chatgate/pkg/config"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start every configured connection and dispatch events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg, cmd.ErrOrStderr())
			log.Info().Str("version", Tag).Str("commit", Commit).Str("config", *configPath).Msg("Starting chatgate")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := bot.New(cfg, log)
			if err = b.Load(builtin.All()...); err != nil {
				return err
			}
			return b.Run(ctx)
		},
	}
}
