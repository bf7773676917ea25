package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beeper/chatgate/pkg/config"
)

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the resolved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform: %s\n", cfg.Platform)
			fmt.Fprintf(out, "action timeout: %s\n", cfg.Timeout())
			for i, conn := range cfg.Connections {
				auth := "no token"
				if conn.Token != "" {
					auth = "token set"
				}
				switch conn.Type {
				case "http":
					fmt.Fprintf(out, "connection %d: http target=%s push=%s:%d%s (%s)\n", i, conn.Target, conn.Host, conn.Port, conn.Path, auth)
				default:
					fmt.Fprintf(out, "connection %d: %s listen=%s:%d%s (%s)\n", i, conn.Type, conn.Host, conn.Port, conn.Path, auth)
				}
			}
			if cfg.DirectoryRefresh != "" {
				fmt.Fprintf(out, "directory refresh: %s\n", cfg.DirectoryRefresh)
			}
			_, err = fmt.Fprintln(out, "config OK")
			return err
		},
	}
}

func newExampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print an annotated example config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig)
			return err
		},
	}
}
