package main

import (
	"github.com/spf13/cobra"

	"github.com/aydarnuman/tender-analyzer/internal/merge"
	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/service/analysis"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
)

var mergeCmd = &cobra.Command{
	Use:   "merge --tender-id <id> <result.json>...",
	Short: "Merge per-document results into one tender record",
	Long: `Merge combines the analysis results of every file belonging to one
tender. Files are merged in the order given; for single-valued fields the
first non-empty value wins and disagreements are listed as conflicts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		results := make([]*models.AnalysisResult, len(args))
		for i, path := range args {
			results[i] = &models.AnalysisResult{}
			if err := readJSON(path, results[i]); err != nil {
				return err
			}
		}

		tenderID, _ := cmd.Flags().GetString("tender-id")
		outcome, err := analysis.MergeResults(merge.NewEngine(log), validator.Default(), tenderID, results)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		return writeJSON(cmd.OutOrStdout(), output, outcome)
	},
}

func init() {
	mergeCmd.Flags().String("tender-id", "", "tender identifier stamped on the merged record")
	mergeCmd.Flags().StringP("output", "o", "", "write the record to this file instead of stdout")
	_ = mergeCmd.MarkFlagRequired("tender-id")

	rootCmd.AddCommand(mergeCmd)
}
