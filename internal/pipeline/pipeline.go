package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/enrichment"
	"github.com/dvloznov/effortless/internal/matching"
	"github.com/dvloznov/effortless/internal/notify"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewTransactionPipeline creates the standard enrich, match, notify pipeline.
// dispatcher may be nil, in which case decisions are only recorded.
func NewTransactionPipeline(engine *enrichment.Engine, matcher *matching.Matcher, clock notify.Clock, dispatcher dispatch.Dispatcher) *Pipeline {
	return NewPipeline(
		&EnrichStep{Engine: engine},
		&MatchStep{Matcher: matcher},
		&NotifyStep{Clock: clock, Dispatcher: dispatcher},
	)
}
