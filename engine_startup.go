package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/jobs"
	"github.com/MrEthical07/authcore/revocation"
	"go.uber.org/zap"
)

// PreloadJobID is the job id of the revocation cache rebuild.
const PreloadJobID = "preload_blacklisted_tokens_on_startup"

// RunStartupJobs seeds the startup jobs. Each job runs in the background
// unless it already finished, possibly on another replica; a failed run is
// retried by the next call. The returned error only reports seeding
// failures, never job failures.
func (e *Engine) RunStartupJobs(ctx context.Context) error {
	if !e.ready() || e.jobs == nil || e.preloader == nil {
		return ErrEngineNotReady
	}
	queued, err := e.jobs.Enqueue(ctx, jobs.Job{
		ID: PreloadJobID,
		Run: func(ctx context.Context) error {
			_, err := e.PreloadRevocations(ctx)
			return err
		},
	})
	if err != nil {
		e.logger.Warn("startup job not seeded", zap.String("job_id", PreloadJobID), zap.Error(err))
		return err
	}
	if !queued {
		e.logger.Info("startup job skipped", zap.String("job_id", PreloadJobID))
	}
	return nil
}

// PreloadRevocations purges the revocation cache and rebuilds it from the
// durable records synchronously.
func (e *Engine) PreloadRevocations(ctx context.Context) (revocation.Report, error) {
	if !e.ready() || e.preloader == nil {
		return revocation.Report{}, ErrEngineNotReady
	}
	return e.preloader.Run(ctx)
}

// WaitStartupJobs blocks until the background jobs seeded so far returned.
func (e *Engine) WaitStartupJobs() {
	if e != nil && e.jobs != nil {
		e.jobs.Wait()
	}
}
