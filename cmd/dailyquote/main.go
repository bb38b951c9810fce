package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/dailyquote/internal/config"
	"github.com/ent0n29/dailyquote/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	envFiles []string
	cfg      config.Config
	logger   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "dailyquote",
		Short: "Daily quote and narration generator",
		Long: `dailyquote generates one short quote per calendar day, narrates it and
publishes the audio.

Example usage:
  dailyquote serve                                   # run the HTTP service
  dailyquote generate                                # generate today's record once
  dailyquote generate --date 2026-01-02 --force      # regenerate a specific day`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load (default .env when present)")
	root.AddCommand(newServeCmd(c), newGenerateCmd(c))
	return root
}

func (c *cli) init() error {
	var err error
	if len(c.envFiles) > 0 {
		c.cfg, err = config.LoadFiles(c.envFiles...)
	} else {
		c.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	c.logger = observability.NewLogger(c.cfg.LogLevel, c.cfg.LogFormat)
	return nil
}
