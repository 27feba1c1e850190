// Command tender-analyzer runs the analysis pipeline against local files
// without the queue or the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/bootstrap"
	"github.com/aydarnuman/tender-analyzer/internal/provider/layout"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
	s3storage "github.com/aydarnuman/tender-analyzer/pkg/storage/s3"
)

var rootCmd = &cobra.Command{
	Use:   "tender-analyzer",
	Short: "Extract structured data from public tender documents",
	Long: `tender-analyzer runs the layered extraction pipeline (layout analysis,
trained model, generative model) over tender files and prints the
consolidated result as JSON.

Provider credentials come from the same environment variables the server
uses. CLI settings can also be given as TENDER_* variables or in a
tender-analyzer.yaml file.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./tender-analyzer.yaml)")
	rootCmd.PersistentFlags().String("pipeline", "", "pipeline YAML file (chunking, polling, keyword hints)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level written to stderr")
	_ = viper.BindPFlag("pipeline", rootCmd.PersistentFlags().Lookup("pipeline"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tender-analyzer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("TENDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() (logger.Logger, error) {
	return logger.NewLogger(
		logger.WithLevel(viper.GetString("log-level")),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
}

// buildPipeline stages Textract input through S3 when Textract is configured;
// otherwise the layout layer stays off.
func buildPipeline(ctx context.Context, log logger.Logger) (*bootstrap.Pipeline, error) {
	cfg, err := config.LoadPipelineConfig(viper.GetString("pipeline"))
	if err != nil {
		return nil, err
	}
	if d := viper.GetDuration("timeout"); d > 0 {
		cfg.Timeout = d
	}

	var stager layout.Stager
	if config.GetTextractConfig().Configured() {
		store, err := s3storage.NewS3Storage(ctx, log)
		if err != nil {
			log.Warn("S3 staging unavailable, layout provider disabled", logger.Error(err))
		} else {
			stager = store
		}
	}
	return bootstrap.NewPipeline(ctx, cfg, stager, 0, log)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if path == "" {
		_, err = w.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
