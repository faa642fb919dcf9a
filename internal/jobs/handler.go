package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/dvloznov/effortless/internal/pipeline"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// UserEnricher runs the enrichment pipeline for one user.
type UserEnricher interface {
	EnrichUser(ctx context.Context, job *EnrichBatchJob) (*pipeline.Report, error)
}

// EnricherFunc adapts a *pipeline.Enricher to UserEnricher.
type EnricherFunc func(ctx context.Context, job *EnrichBatchJob) (*pipeline.Report, error)

func (f EnricherFunc) EnrichUser(ctx context.Context, job *EnrichBatchJob) (*pipeline.Report, error) {
	return f(ctx, job)
}

// FromEnricher returns a UserEnricher backed by e.
func FromEnricher(e *pipeline.Enricher) UserEnricher {
	return EnricherFunc(func(ctx context.Context, job *EnrichBatchJob) (*pipeline.Report, error) {
		return e.EnrichUser(ctx, job.UserID, job.Since)
	})
}

// NewEnrichHandler returns a JobHandler that runs enrichment jobs. The
// report of each attempt is recorded on the job. Unknown users fail without
// retries.
func NewEnrichHandler(e UserEnricher) JobHandler {
	return func(ctx context.Context, job Job) error {
		enrichJob, ok := job.(*EnrichBatchJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", enrichJob.JobID).
			Str("user_id", enrichJob.UserID).
			Logger()
		log.Info().Str("source", enrichJob.Source).Msg("Processing enrich job")

		report, err := e.EnrichUser(logger.WithContext(ctx, log), enrichJob)
		enrichJob.Report = report
		if err != nil {
			log.Error().Err(err).Msg("Enrich job failed")
			if errors.Is(err, domain.ErrNotFound) {
				return Permanent(err)
			}
			return err
		}

		log.Info().Msg("Enrich job completed successfully")
		return nil
	}
}
