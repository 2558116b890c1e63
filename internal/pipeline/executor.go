// Package pipeline drives a render job from pending to a terminal state:
// status transitions, generation and storage calls, the credit debit, and
// the terminal event publication. Every status write is a conditional
// transition, which is what keeps retried queue attempts and the timeout
// reaper safe to run concurrently with the executor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"renderspace/internal/broker"
	"renderspace/internal/domain"
	"renderspace/internal/providers/image"
	"renderspace/internal/storage"
)

var errTransitionLost = errors.New("status transition lost")

// Executor runs the render pipeline for one job at a time. It is safe to
// invoke repeatedly for the same job id: a job already in a terminal
// state is a no-op.
type Executor struct {
	jobs     domain.RenderJobRepository
	credits  domain.CreditLedger
	activity domain.ActivityRepository
	gen      image.Generator
	store    storage.ObjectStore
	events   broker.Publisher
	logger   zerolog.Logger
}

// NewExecutor wires the pipeline against its collaborators.
func NewExecutor(
	jobs domain.RenderJobRepository,
	credits domain.CreditLedger,
	activity domain.ActivityRepository,
	gen image.Generator,
	store storage.ObjectStore,
	events broker.Publisher,
	logger zerolog.Logger,
) *Executor {
	return &Executor{
		jobs:     jobs,
		credits:  credits,
		activity: activity,
		gen:      gen,
		store:    store,
		events:   events,
		logger:   logger,
	}
}

// Execute processes the job end to end. The returned error reports the
// attempt outcome to the queue; job state itself is settled here either
// way.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	// Idempotency guard: retried attempts and late-arriving successes
	// against a settled job are no-ops.
	if job.Status.Terminal() {
		e.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("pipeline: job already settled, skipping")
		return nil
	}

	if err := e.run(ctx, job); err != nil {
		if errors.Is(err, errTransitionLost) {
			// Another actor settled the job while we worked; their
			// terminal state stands and this attempt reports success.
			return nil
		}
		e.fail(ctx, job, err)
		return err
	}
	return nil
}

// run advances the job through processing, generation, upload and the
// critical completed commit, then settles non-critical bookkeeping.
func (e *Executor) run(ctx context.Context, job *domain.RenderJob) error {
	if job.Status == domain.RenderStatusPending {
		if err := e.advance(ctx, job, domain.RenderStatusProcessing); err != nil {
			return err
		}
	}

	result, err := e.generate(ctx, job)
	if err != nil {
		return fmt.Errorf("generation: %w", err)
	}

	if job.Status == domain.RenderStatusProcessing {
		if err := e.advance(ctx, job, domain.RenderStatusUploading); err != nil {
			return err
		}
	}

	resultURL, err := e.store.Store(ctx, resultKey(job.ID), result.Data)
	if err != nil {
		return fmt.Errorf("store result image: %w", err)
	}

	// Critical commit: everything downstream treats completed as the
	// irreversible success signal. Losing this transition fails the job.
	won, err := e.jobs.Transition(ctx, job.ID, job.Status, domain.RenderStatusCompleted, domain.TransitionFields{
		ResultImageURL: &resultURL,
		Prompt:         &result.Prompt,
		CompletedNow:   true,
	})
	if err != nil {
		return fmt.Errorf("commit completed status: %w", err)
	}
	if !won {
		return e.resolveLostTransition(ctx, job.ID)
	}
	job.Status = domain.RenderStatusCompleted
	job.ResultImageURL = resultURL
	e.logger.Info().Str("job_id", job.ID).Msg("pipeline: job completed")

	note, creditDeducted := e.settleBookkeeping(ctx, job)

	event := broker.Event{
		Kind:           broker.EventRenderCompleted,
		JobID:          job.ID,
		Title:          job.Title,
		Status:         string(domain.RenderStatusCompleted),
		ResultImageURL: resultURL,
	}
	if err := e.events.Publish(ctx, job.UserID, event); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: publish completed event failed")
	}

	if note != "" || !creditDeducted {
		e.logger.Warn().
			Str("job_id", job.ID).
			Str("note", note).
			Bool("credit_deducted", creditDeducted).
			Msg("pipeline: completed with bookkeeping gaps")
	}
	return nil
}

// generate produces the final image bytes for the job's kind.
func (e *Executor) generate(ctx context.Context, job *domain.RenderJob) (*image.Result, error) {
	switch job.Kind {
	case domain.RenderKindTransform:
		return e.gen.Transform(ctx, image.Request{
			JobID:         job.ID,
			InputImageURL: job.InputImageURL,
			RoomType:      job.RoomType,
			Lighting:      job.Lighting,
		})

	case domain.RenderKindComposite:
		emptyRoom, err := e.gen.RemoveBackground(ctx, job.ID, job.RoomPhotoURL)
		if err != nil {
			return nil, fmt.Errorf("background removal: %w", err)
		}
		// Persisting the intermediate is best-effort; the compose step
		// works from the in-memory bytes either way.
		if url, err := e.store.Store(ctx, emptyRoomKey(job.ID), emptyRoom.Data); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: persist empty room image failed")
		} else if err := e.jobs.SetEmptyRoomImage(ctx, job.ID, url); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: record empty room image failed")
		}
		return e.gen.Compose(ctx, image.ComposeRequest{
			JobID:           job.ID,
			EmptyRoom:       emptyRoom.Data,
			CollageImageURL: job.InputImageURL,
			RoomType:        job.RoomType,
			Lighting:        job.Lighting,
		})

	default:
		return nil, fmt.Errorf("unsupported render kind %q", job.Kind)
	}
}

// advance performs one forward conditional transition, updating the
// in-memory job on success.
func (e *Executor) advance(ctx context.Context, job *domain.RenderJob, to domain.RenderStatus) error {
	won, err := e.jobs.Transition(ctx, job.ID, job.Status, to, domain.TransitionFields{})
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", job.Status, to, err)
	}
	if !won {
		return e.resolveLostTransition(ctx, job.ID)
	}
	job.Status = to
	return nil
}

// resolveLostTransition classifies a lost conditional update: a settled
// job means another actor legitimately won and this attempt stands down;
// anything else is a real failure.
func (e *Executor) resolveLostTransition(ctx context.Context, jobID string) error {
	current, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("recheck after lost transition: %w", err)
	}
	if current.Status.Terminal() {
		e.logger.Info().
			Str("job_id", jobID).
			Str("status", string(current.Status)).
			Msg("pipeline: job settled elsewhere, standing down")
		return errTransitionLost
	}
	return fmt.Errorf("conditional update on job %s did not apply (current status %s)", jobID, current.Status)
}

// settleBookkeeping runs the non-critical post-completion steps. Each
// failure is collected into the completion note; none of them ever flips
// a completed job back to failed.
func (e *Executor) settleBookkeeping(ctx context.Context, job *domain.RenderJob) (string, bool) {
	var notes []string
	creditDeducted := false

	amount := job.Kind.CreditCost()
	if _, err := e.credits.DebitForJob(ctx, job, amount); err != nil {
		notes = append(notes, fmt.Sprintf("failed to deduct credit: %v", err))
		e.logger.Error().Err(err).Str("job_id", job.ID).Int("amount", amount).Msg("pipeline: credit debit failed")
	} else {
		creditDeducted = true
	}

	if err := e.activity.Log(ctx, &domain.ActivityLog{
		AccountID: job.AccountID,
		UserID:    job.UserID,
		Action:    domain.ActivityCompleteRender,
	}); err != nil {
		notes = append(notes, fmt.Sprintf("failed to log activity: %v", err))
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: activity log failed")
	}

	// The note and the deduction flag are written together even on a
	// clean run: a false flag on a completed job is the reconciliation
	// signal, so it must reflect the debit outcome every time.
	note := strings.Join(notes, " ")
	if err := e.jobs.SetCompletionNote(ctx, job.ID, note, creditDeducted); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: record completion note failed")
	}
	return note, creditDeducted
}

// fail settles a job after a critical error. The completed status is
// never overwritten; the terminal event is published even when the
// database write fails, so a waiting client is not left hanging.
func (e *Executor) fail(ctx context.Context, job *domain.RenderJob, cause error) {
	msg := cause.Error()
	e.logger.Error().Err(cause).Str("job_id", job.ID).Msg("pipeline: job failed")

	from := job.Status
	if current, err := e.jobs.GetByID(ctx, job.ID); err == nil {
		if current.Status == domain.RenderStatusCompleted {
			// A racing attempt finished the job; its outcome stands.
			e.logger.Warn().Str("job_id", job.ID).Msg("pipeline: job completed elsewhere despite local error")
			return
		}
		from = current.Status
	}

	if !from.Terminal() {
		won, err := e.jobs.Transition(ctx, job.ID, from, domain.RenderStatusFailed, domain.TransitionFields{
			ErrorMessage: &msg,
			CompletedNow: true,
		})
		if err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: record failed status failed")
		} else if !won {
			e.logger.Warn().Str("job_id", job.ID).Msg("pipeline: failed transition lost to another actor")
		}
	}

	event := broker.Event{
		Kind:         broker.EventRenderFailed,
		JobID:        job.ID,
		Title:        job.Title,
		Status:       string(domain.RenderStatusFailed),
		ErrorMessage: msg,
	}
	if err := e.events.Publish(ctx, job.UserID, event); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: publish failed event failed")
	}
}

func resultKey(jobID string) string {
	return "renders/" + jobID + "/result.png"
}

func emptyRoomKey(jobID string) string {
	return "renders/" + jobID + "/empty-room.png"
}
