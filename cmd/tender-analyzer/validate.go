package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aydarnuman/tender-analyzer/internal/models"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <result.json>",
	Short: "Check a stored analysis result against the critical-field schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result models.AnalysisResult
		if err := readJSON(args[0], &result); err != nil {
			return err
		}
		report, err := validator.Validate(&result, validator.Default())
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), "", report); err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")
		if strict && !report.Valid {
			return fmt.Errorf("%d critical fields missing", len(report.Missing))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "exit non-zero when a critical field is missing")

	rootCmd.AddCommand(validateCmd)
}
