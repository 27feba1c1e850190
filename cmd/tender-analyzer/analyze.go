package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze one tender document",
	Long: `Analyze chunks the document, runs every available provider layer,
validates the critical fields and backfills the missing ones.

Progress goes to stderr. A run that hits the timeout still prints the
partial result, flagged with meta.timed_out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		p, err := buildPipeline(ctx, log)
		if err != nil {
			return err
		}
		defer p.Close()

		quiet, _ := cmd.Flags().GetBool("quiet")
		stderr := cmd.ErrOrStderr()
		opts := pipeline.Options{}
		if !quiet {
			opts.OnProgress = func(e pipeline.Event) {
				fmt.Fprintf(stderr, "[%3d%%] %-22s %s\n", e.Progress, e.Stage, e.Message)
			}
		}

		result, err := p.Orchestrator.Analyze(ctx, models.NewDocument(args[0], content), opts)
		if result != nil {
			output, _ := cmd.Flags().GetString("output")
			if werr := writeJSON(cmd.OutOrStdout(), output, result); werr != nil {
				return werr
			}
		}
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "write the result to this file instead of stdout")
	analyzeCmd.Flags().BoolP("quiet", "q", false, "do not print progress")
	analyzeCmd.Flags().Duration("timeout", 0, "overall deadline (default from the pipeline config)")
	_ = viper.BindPFlag("timeout", analyzeCmd.Flags().Lookup("timeout"))

	rootCmd.AddCommand(analyzeCmd)
}
