package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report which provider layers are configured and reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		p, err := buildPipeline(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer p.Close()

		report := p.Orchestrator.Health()
		if err := writeJSON(cmd.OutOrStdout(), "", report); err != nil {
			return err
		}
		if !report.Healthy() {
			return errors.New("no extraction provider available")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
