package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"renderspace/internal/broker"
	"renderspace/internal/domain"
)

// Reaper force-fails jobs stuck past the deadline. It runs lazily on the
// status read path rather than as a background sweep: any poll of a
// stuck job settles it. The conditional transition keeps it from racing
// destructively against an executor that is legitimately finishing.
type Reaper struct {
	jobs    domain.RenderJobRepository
	events  broker.Publisher
	timeout time.Duration
	logger  zerolog.Logger
}

// NewReaper creates a reaper with the given stuck-job deadline, measured
// from job creation.
func NewReaper(jobs domain.RenderJobRepository, events broker.Publisher, timeout time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{jobs: jobs, events: events, timeout: timeout, logger: logger}
}

// Check inspects the job and force-fails it when it has been
// non-terminal for longer than the deadline. It returns the job record
// the caller should serve, reflecting the reap when one happened.
func (r *Reaper) Check(ctx context.Context, job *domain.RenderJob) (*domain.RenderJob, error) {
	if job.Status.Terminal() {
		return job, nil
	}
	elapsed := time.Since(job.CreatedAt)
	if elapsed <= r.timeout {
		return job, nil
	}

	msg := fmt.Sprintf("Render timed out after %d minutes.", int(r.timeout.Minutes()))
	r.logger.Warn().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Dur("elapsed", elapsed).
		Msg("reaper: job stuck past deadline, failing")

	won, err := r.jobs.Transition(ctx, job.ID, job.Status, domain.RenderStatusFailed, domain.TransitionFields{
		ErrorMessage: &msg,
		CompletedNow: true,
	})
	if err != nil {
		// Served state still tells the client the job is dead; the row
		// stays as-is for the next poll to settle.
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("reaper: record failed status failed")
		failed := *job
		failed.Status = domain.RenderStatusFailed
		failed.ErrorMessage = msg
		return &failed, nil
	}
	if !won {
		// The executor settled the job first; serve whatever it wrote.
		current, err := r.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return job, err
		}
		return current, nil
	}

	event := broker.Event{
		Kind:         broker.EventRenderFailed,
		JobID:        job.ID,
		Title:        job.Title,
		Status:       string(domain.RenderStatusFailed),
		ErrorMessage: msg,
	}
	if err := r.events.Publish(ctx, job.UserID, event); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("reaper: publish failed event failed")
	}

	now := time.Now()
	failed := *job
	failed.Status = domain.RenderStatusFailed
	failed.ErrorMessage = msg
	failed.CompletedAt = &now
	return &failed, nil
}
