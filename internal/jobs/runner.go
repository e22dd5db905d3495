package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Status is the persisted state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("jobs: runner closed")
	// ErrInvalidJob is returned for a job without an id or a function.
	ErrInvalidJob = errors.New("jobs: invalid job")
	// ErrRedisUnavailable wraps status read and write failures.
	ErrRedisUnavailable = errors.New("jobs: redis unavailable")
)

// Job is a unit of background work identified by a stable id.
type Job struct {
	ID  string
	Run func(ctx context.Context) error
}

// Config tunes a Runner.
type Config struct {
	// KeyPrefix namespaces status keys: <KeyPrefix>:<id>:status.
	KeyPrefix string
	// Lease bounds how long a queued or started status blocks other
	// replicas when the owner dies mid-run.
	Lease time.Duration
	// Retention is how long a finished status is kept.
	Retention time.Duration
	// StatusTimeout bounds status writes made after the job returns.
	StatusTimeout time.Duration
}

const (
	defaultKeyPrefix     = "jobs"
	defaultLease         = 10 * time.Minute
	defaultRetention     = 24 * time.Hour
	defaultStatusTimeout = 5 * time.Second
	maxClaimRetries      = 4
)

// Runner claims and runs jobs in background goroutines.
type Runner struct {
	client redis.UniversalClient
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner returns a Runner. Zero Config fields take defaults.
func NewRunner(client redis.UniversalClient, cfg Config, logger *zap.Logger) *Runner {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		client: client,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Runner) key(id string) string {
	return r.cfg.KeyPrefix + ":" + id + ":status"
}

// Status returns the persisted status of id, or "" when there is none.
func (r *Runner) Status(ctx context.Context, id string) (Status, error) {
	v, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Status(v), nil
}

// Enqueue claims job and runs it in the background. A job is claimed only
// when it has no status or its last run failed; otherwise Enqueue reports
// false and does nothing.
func (r *Runner) Enqueue(ctx context.Context, job Job) (bool, error) {
	if job.ID == "" || job.Run == nil {
		return false, ErrInvalidJob
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrClosed
	}

	claimed, err := r.claim(ctx, job.ID)
	if err != nil || !claimed {
		return false, err
	}

	r.wg.Add(1)
	go r.run(job)
	return true, nil
}

func (r *Runner) claim(ctx context.Context, id string) (bool, error) {
	key := r.key(id)

	for i := 0; i < maxClaimRetries; i++ {
		claimed := false

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && Status(current) != StatusFailed {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, string(StatusQueued), r.cfg.Lease)
				return nil
			})
			if err != nil {
				return err
			}
			claimed = true
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !claimed {
			r.logger.Debug("job already claimed", zap.String("job_id", id))
		}
		return claimed, nil
	}

	// Lost every race: another replica owns the job.
	return false, nil
}

func (r *Runner) run(job Job) {
	defer r.wg.Done()

	logger := r.logger.With(zap.String("job_id", job.ID))

	if err := r.setStatus(job.ID, StatusStarted, r.cfg.Lease); err != nil {
		logger.Warn("job status write failed", zap.String("status", string(StatusStarted)), zap.Error(err))
	}
	logger.Info("job started")
	start := time.Now()

	err := runSafely(r.ctx, job.Run)
	if err != nil {
		logger.Error("job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if err := r.setStatus(job.ID, StatusFailed, 0); err != nil {
			logger.Warn("job status write failed", zap.String("status", string(StatusFailed)), zap.Error(err))
		}
		return
	}

	logger.Info("job finished", zap.Duration("elapsed", time.Since(start)))
	if err := r.setStatus(job.ID, StatusFinished, r.cfg.Retention); err != nil {
		logger.Warn("job status write failed", zap.String("status", string(StatusFinished)), zap.Error(err))
	}
}

func (r *Runner) setStatus(id string, status Status, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.cfg.StatusTimeout)
	defer cancel()
	return r.client.Set(ctx, r.key(id), string(status), ttl).Err()
}

func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every running job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels running jobs and waits for them. It is idempotent.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
