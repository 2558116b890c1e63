package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handler processes one claimed unit of work. A returned error marks the
// attempt failed and triggers the retry/dead-letter policy; it does not
// by itself change job state in the database.
type Handler func(ctx context.Context, jobID string) error

// WorkerOptions tune the lease and retry behaviour.
type WorkerOptions struct {
	// Lease bounds how long a claim is honoured before the unit counts as
	// stalled. It is renewed while the handler runs.
	Lease time.Duration
	// MaxAttempts is the total attempt budget per unit, including the
	// first one.
	MaxAttempts int
	// Concurrency is how many units are processed at once. Each unit is
	// still handled by exactly one goroutine.
	Concurrency int
	// SweepInterval is how often stalled units are reclaimed.
	SweepInterval time.Duration
}

func (o *WorkerOptions) applyDefaults() {
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
}

// Worker pulls units off the queue and runs the handler against them.
// Construct one per worker process and call Run.
type Worker struct {
	rdb     *redis.Client
	handler Handler
	logger  zerolog.Logger
	opts    WorkerOptions
	id      string
}

// NewWorker creates a worker bound to the given handler.
func NewWorker(rdb *redis.Client, handler Handler, logger zerolog.Logger, opts WorkerOptions) *Worker {
	opts.applyDefaults()
	return &Worker{
		rdb:     rdb,
		handler: handler,
		logger:  logger,
		opts:    opts,
		id:      uuid.NewString(),
	}
}

// Run blocks consuming the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.opts.Concurrency).
		Dur("lease", w.opts.Lease).
		Msg("worker: started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweepLoop(ctx)
	}()

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consumeLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := w.rdb.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", 5*time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error().Err(err).Msg("worker: claim failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		w.process(ctx, jobID)
	}
}

// process runs one attempt against a claimed unit. The lease key
// enforces at most one active attempt per job across workers.
func (w *Worker) process(ctx context.Context, jobID string) {
	attempts, err := w.rdb.Incr(ctx, attemptsKey(jobID)).Result()
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: attempt counter failed")
		attempts = 1
	}
	w.rdb.Expire(ctx, attemptsKey(jobID), attemptsTTL)

	acquired, err := w.rdb.SetNX(ctx, leaseKey(jobID), w.id, w.opts.Lease).Result()
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: lease acquire failed")
	}
	if !acquired {
		// Another worker holds an unexpired lease on this job, so the unit
		// is a duplicate claim. Drop it; the holder will finish or stall.
		w.rdb.LRem(ctx, processingKey, 1, jobID)
		w.rdb.Decr(ctx, attemptsKey(jobID))
		w.logger.Warn().Str("job_id", jobID).Msg("worker: job already leased, skipping")
		return
	}

	w.logger.Info().Str("job_id", jobID).Int64("attempt", attempts).Msg("worker: picked job")

	renewCtx, stopRenewal := context.WithCancel(ctx)
	go w.renewLease(renewCtx, jobID)

	handlerErr := w.runHandler(ctx, jobID)

	stopRenewal()
	w.rdb.Del(ctx, leaseKey(jobID))
	w.rdb.LRem(ctx, processingKey, 1, jobID)

	w.settle(ctx, jobID, attempts, handlerErr)
}

func (w *Worker) runHandler(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, jobID)
}

// settle retires a finished attempt: done list on success, requeue or
// dead-letter on failure depending on the attempt budget.
func (w *Worker) settle(ctx context.Context, jobID string, attempts int64, handlerErr error) {
	if handlerErr == nil {
		w.rdb.LPush(ctx, doneKey, jobID)
		w.rdb.LTrim(ctx, doneKey, 0, doneRetention-1)
		w.rdb.Del(ctx, attemptsKey(jobID))
		w.logger.Info().Str("job_id", jobID).Msg("worker: job done")
		return
	}

	switch retryDisposition(attempts, w.opts.MaxAttempts) {
	case dispositionDead:
		w.rdb.LPush(ctx, deadKey, jobID)
		w.rdb.LTrim(ctx, deadKey, 0, deadRetention-1)
		w.rdb.Del(ctx, attemptsKey(jobID))
		w.logger.Error().Err(handlerErr).
			Str("job_id", jobID).
			Int64("attempts", attempts).
			Msg("worker: job dead-lettered")
	default:
		w.rdb.LPush(ctx, queueKey, jobID)
		w.logger.Warn().Err(handlerErr).
			Str("job_id", jobID).
			Int64("attempt", attempts).
			Msg("worker: attempt failed, requeued")
	}
}

func (w *Worker) renewLease(ctx context.Context, jobID string) {
	interval := w.opts.Lease / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.rdb.PExpire(ctx, leaseKey(jobID), w.opts.Lease).Err(); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: lease renewal failed")
			}
		}
	}
}

// sweepLoop reclaims stalled units: entries sitting in the processing
// list whose lease expired because their worker died. Reclaimed units go
// back on the queue until the attempt budget is spent.
func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepStalled(ctx)
		}
	}
}

func (w *Worker) sweepStalled(ctx context.Context) {
	ids, err := w.rdb.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("worker: stalled sweep failed")
		}
		return
	}

	for _, jobID := range ids {
		held, err := w.rdb.Exists(ctx, leaseKey(jobID)).Result()
		if err != nil || held > 0 {
			continue
		}
		// Lease expired with the unit still parked: the owning worker is
		// gone. Only one sweeper wins the LRem, so the unit is requeued
		// exactly once.
		removed, err := w.rdb.LRem(ctx, processingKey, 1, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}

		attempts, _ := w.rdb.Get(ctx, attemptsKey(jobID)).Int64()
		if retryDisposition(attempts, w.opts.MaxAttempts) == dispositionDead {
			w.rdb.LPush(ctx, deadKey, jobID)
			w.rdb.LTrim(ctx, deadKey, 0, deadRetention-1)
			w.rdb.Del(ctx, attemptsKey(jobID))
			w.logger.Error().Str("job_id", jobID).Int64("attempts", attempts).Msg("worker: stalled job dead-lettered")
			continue
		}
		w.rdb.LPush(ctx, queueKey, jobID)
		w.logger.Warn().Str("job_id", jobID).Int64("attempts", attempts).Msg("worker: stalled job requeued")
	}
}
