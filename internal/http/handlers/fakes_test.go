package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"renderspace/internal/broker"
	"renderspace/internal/domain"
	"renderspace/internal/pipeline"
)

type stubJobs struct {
	jobs      map[string]*domain.RenderJob
	createErr error
	created   []*domain.RenderJob
}

func newStubJobs(jobs ...*domain.RenderJob) *stubJobs {
	s := &stubJobs{jobs: make(map[string]*domain.RenderJob)}
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	return s
}

func (s *stubJobs) Create(_ context.Context, job *domain.RenderJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	cp := *job
	s.jobs[job.ID] = &cp
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubJobs) GetByID(_ context.Context, id string) (*domain.RenderJob, error) {
	if job, ok := s.jobs[id]; ok {
		cp := *job
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobs) Transition(_ context.Context, id string, from, to domain.RenderStatus, fields domain.TransitionFields) (bool, error) {
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	if fields.ErrorMessage != nil {
		job.ErrorMessage = *fields.ErrorMessage
	}
	if fields.CompletedNow {
		now := time.Now()
		job.CompletedAt = &now
	}
	return true, nil
}

func (s *stubJobs) SetEmptyRoomImage(context.Context, string, string) error { return nil }

func (s *stubJobs) SetCompletionNote(context.Context, string, string, bool) error { return nil }

func (s *stubJobs) ActiveForUser(_ context.Context, userID int64) (*domain.RenderJob, error) {
	for _, job := range s.jobs {
		if job.UserID == userID && !job.Status.Terminal() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobs) ListForAccount(_ context.Context, accountID int64, limit int) ([]domain.RenderJob, error) {
	var out []domain.RenderJob
	for _, job := range s.jobs {
		if job.AccountID == accountID && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

type stubLedger struct {
	balance    int
	balanceErr error
	addErr     error
	txs        []domain.CreditTransaction
	usedRefs   map[string]bool
}

func (s *stubLedger) Balance(context.Context, int64) (int, error) {
	if s.balanceErr != nil {
		return 0, s.balanceErr
	}
	return s.balance, nil
}

func (s *stubLedger) DebitForJob(_ context.Context, job *domain.RenderJob, amount int) (int, error) {
	if s.balance < amount {
		return 0, domain.ErrInsufficientCredits
	}
	s.balance -= amount
	return s.balance, nil
}

func (s *stubLedger) AddCredits(_ context.Context, accountID, userID int64, amount int, description, paymentRef string) (int, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	if s.usedRefs == nil {
		s.usedRefs = make(map[string]bool)
	}
	if s.usedRefs[paymentRef] {
		return 0, domain.ErrDuplicatePayment
	}
	s.usedRefs[paymentRef] = true
	s.balance += amount
	s.txs = append(s.txs, domain.CreditTransaction{
		AccountID:    accountID,
		UserID:       userID,
		Amount:       amount,
		Description:  description,
		BalanceAfter: s.balance,
		PaymentRef:   paymentRef,
	})
	return s.balance, nil
}

func (s *stubLedger) ListTransactions(context.Context, int64, int) ([]domain.CreditTransaction, error) {
	return append([]domain.CreditTransaction(nil), s.txs...), nil
}

type stubActivity struct {
	entries []domain.ActivityLog
}

func (s *stubActivity) Log(_ context.Context, entry *domain.ActivityLog) error {
	s.entries = append(s.entries, *entry)
	return nil
}

type stubEnqueuer struct {
	err error
	ids []string
}

func (s *stubEnqueuer) Enqueue(_ context.Context, jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, jobID)
	return nil
}

type stubPublisher struct {
	events []broker.Event
}

func (s *stubPublisher) Publish(_ context.Context, _ int64, event broker.Event) error {
	s.events = append(s.events, event)
	return nil
}

func newTestApp(jobs *stubJobs, ledger *stubLedger) (*App, *stubActivity, *stubEnqueuer) {
	activity := &stubActivity{}
	enqueuer := &stubEnqueuer{}
	app := &App{
		Jobs:     jobs,
		Credits:  ledger,
		Activity: activity,
		Queue:    enqueuer,
		Reaper:   pipeline.NewReaper(jobs, &stubPublisher{}, 6*time.Minute, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	}
	return app, activity, enqueuer
}
