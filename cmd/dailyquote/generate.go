package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ent0n29/dailyquote/internal/app"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/generation"
)

type generateFlags struct {
	date     string
	category string
	force    bool
}

type generateSummary struct {
	Outcome        string  `json:"outcome"`
	Date           string  `json:"date"`
	ID             string  `json:"id"`
	Category       string  `json:"category"`
	Content        string  `json:"content"`
	VoiceGenerated bool    `json:"voiceGenerated"`
	AudioURL       *string `json:"audioUrl"`
	SkipReason     string  `json:"skipReason,omitempty"`
	VoiceError     string  `json:"voiceError,omitempty"`
}

func newGenerateCmd(c *cli) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one day's record once and exit",
		Long: `Run the generation pipeline once, outside the HTTP service.

Examples:
  dailyquote generate
  dailyquote generate --date 2026-01-02 --category wisdom --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.generate(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.date, "date", "", "target date YYYY-MM-DD (default today in APP_TIMEZONE)")
	cmd.Flags().StringVar(&f.category, "category", "", "pin the category instead of balancing")
	cmd.Flags().BoolVar(&f.force, "force", false, "regenerate even when the date already has a record")
	return cmd
}

func (c *cli) generate(cmd *cobra.Command, f *generateFlags) error {
	opts := generation.Options{Force: f.force}
	if f.date != "" {
		date, err := content.ParseDate(f.date)
		if err != nil {
			return err
		}
		opts.Date = date
	}
	if f.category != "" {
		category, err := content.ParseCategory(f.category)
		if err != nil {
			return err
		}
		opts.Category = category
	}

	ctx := cmd.Context()
	// One-shot runs expose no /metrics endpoint.
	built, err := app.Build(ctx, c.cfg, c.logger, app.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			c.logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	res, err := built.Orchestrator.Generate(ctx, opts)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(generateSummary{
		Outcome:        string(res.Outcome),
		Date:           res.Record.DateKey(),
		ID:             res.Record.ID,
		Category:       string(res.Record.Category),
		Content:        res.Record.Content,
		VoiceGenerated: res.VoiceGenerated,
		AudioURL:       res.Record.AudioURL,
		SkipReason:     res.SkipReason,
		VoiceError:     res.VoiceError,
	})
}
