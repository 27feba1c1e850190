// Package bootstrap assembles the pipeline from environment configuration.
// The server, the worker and the CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aydarnuman/tender-analyzer/config"
	"github.com/aydarnuman/tender-analyzer/internal/agent"
	"github.com/aydarnuman/tender-analyzer/internal/chunker"
	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
	"github.com/aydarnuman/tender-analyzer/internal/provider"
	"github.com/aydarnuman/tender-analyzer/internal/provider/generative"
	"github.com/aydarnuman/tender-analyzer/internal/provider/layout"
	"github.com/aydarnuman/tender-analyzer/internal/provider/trained"
	"github.com/aydarnuman/tender-analyzer/internal/validator"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// Pipeline owns the orchestrator and everything that must be closed with it.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	Monitor      *provider.Monitor
	Config       config.PipelineConfig

	factory    *agent.ProcessorFactory
	generative *generative.Adapter
}

// NewPipeline wires the three provider layers. stager may be nil, which
// leaves the layout layer unconfigured; Textract reads only from S3.
func NewPipeline(ctx context.Context, cfg config.PipelineConfig, stager layout.Stager, healthInterval time.Duration, log logger.Logger) (*Pipeline, error) {
	factory, err := agent.NewProcessorFactory(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}
	ch := chunker.New(cfg.Chunk, factory, log)

	var textractAPI layout.API
	tcfg := config.GetTextractConfig()
	if tcfg.Configured() && stager != nil {
		client, err := layout.NewClient(ctx, tcfg)
		if err != nil {
			log.Warn("Layout provider disabled", logger.Error(err))
		} else {
			textractAPI = client
		}
	}
	layoutProvider := layout.New(textractAPI, stager, tcfg, log)

	trainedProvider := trained.New(config.GetDocumentIntelligenceConfig(), nil, log)

	gen, err := generative.NewGenerator(ctx, config.GetGenerativeConfig(), log)
	if err != nil {
		log.Warn("Generative provider disabled", logger.Error(err))
		gen = nil
	}
	generativeProvider := generative.New(gen, cfg.Generative, log)

	providers := pipeline.Providers{
		Layout:       layoutProvider,
		TrainedModel: trainedProvider,
		Generative:   generativeProvider,
	}
	monitor := provider.NewMonitor(ctx, []provider.Provider{layoutProvider, trainedProvider, generativeProvider}, healthInterval, log)

	return &Pipeline{
		Orchestrator: pipeline.New(cfg, validator.Default(), ch, providers, monitor, log),
		Monitor:      monitor,
		Config:       cfg,
		factory:      factory,
		generative:   generativeProvider,
	}, nil
}

func (p *Pipeline) Close() error {
	return errors.Join(p.generative.Close(), p.factory.Close())
}
