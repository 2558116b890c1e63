package pipeline

import (
	"context"
	"sync"
	"time"

	"renderspace/internal/broker"
	"renderspace/internal/domain"
	"renderspace/internal/providers/image"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.RenderJob

	transitionErr error
	noteErr       error
	noteCalls     int

	// beforeTransition runs under the lock before the conditional update
	// is evaluated, so tests can interleave a competing writer.
	beforeTransition func(id string, from, to domain.RenderStatus)
}

func newFakeJobs(jobs ...*domain.RenderJob) *fakeJobs {
	f := &fakeJobs{jobs: make(map[string]*domain.RenderJob)}
	for _, job := range jobs {
		cp := *job
		f.jobs[job.ID] = &cp
	}
	return f
}

func (f *fakeJobs) get(id string) *domain.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		cp := *job
		return &cp
	}
	return nil
}

func (f *fakeJobs) Create(_ context.Context, job *domain.RenderJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*domain.RenderJob, error) {
	job := f.get(id)
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) Transition(_ context.Context, id string, from, to domain.RenderStatus, fields domain.TransitionFields) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beforeTransition != nil {
		f.beforeTransition(id, from, to)
	}
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	if fields.ResultImageURL != nil {
		job.ResultImageURL = *fields.ResultImageURL
	}
	if fields.Prompt != nil {
		job.Prompt = *fields.Prompt
	}
	if fields.ErrorMessage != nil {
		job.ErrorMessage = *fields.ErrorMessage
	}
	if fields.CompletedNow {
		now := time.Now()
		job.CompletedAt = &now
	}
	return true, nil
}

func (f *fakeJobs) SetEmptyRoomImage(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.EmptyRoomImageURL = url
	}
	return nil
}

func (f *fakeJobs) SetCompletionNote(_ context.Context, id, errMsg string, creditDeducted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteCalls++
	if f.noteErr != nil {
		return f.noteErr
	}
	if job, ok := f.jobs[id]; ok {
		job.ErrorMessage = errMsg
		job.CreditDeducted = creditDeducted
	}
	return nil
}

func (f *fakeJobs) ActiveForUser(_ context.Context, userID int64) (*domain.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.RenderJob
	for _, job := range f.jobs {
		if job.UserID != userID || job.Status.Terminal() {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeJobs) ListForAccount(_ context.Context, accountID int64, limit int) ([]domain.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []domain.RenderJob
	for _, job := range f.jobs {
		if job.AccountID == accountID && len(jobs) < limit {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	balance  int
	debitErr error
	txs      []domain.CreditTransaction
}

func (f *fakeLedger) Balance(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) DebitForJob(_ context.Context, job *domain.RenderJob, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return 0, f.debitErr
	}
	if f.balance < amount {
		return 0, domain.ErrInsufficientCredits
	}
	f.balance -= amount
	f.txs = append(f.txs, domain.CreditTransaction{
		AccountID:    job.AccountID,
		UserID:       job.UserID,
		Amount:       -amount,
		BalanceAfter: f.balance,
		RenderJobID:  job.ID,
	})
	return f.balance, nil
}

func (f *fakeLedger) AddCredits(_ context.Context, accountID, userID int64, amount int, description, paymentRef string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.PaymentRef != "" && tx.PaymentRef == paymentRef {
			return 0, domain.ErrDuplicatePayment
		}
	}
	f.balance += amount
	f.txs = append(f.txs, domain.CreditTransaction{
		AccountID:    accountID,
		UserID:       userID,
		Amount:       amount,
		Description:  description,
		BalanceAfter: f.balance,
		PaymentRef:   paymentRef,
	})
	return f.balance, nil
}

func (f *fakeLedger) ListTransactions(context.Context, int64, int) ([]domain.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CreditTransaction(nil), f.txs...), nil
}

type fakeActivity struct {
	mu      sync.Mutex
	err     error
	entries []domain.ActivityLog
}

func (f *fakeActivity) Log(_ context.Context, entry *domain.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeGenerator struct {
	mu sync.Mutex

	transformErr error
	removeErr    error
	composeErr   error

	transformCalls int
	removeCalls    int
	composeCalls   int
	lastCompose    image.ComposeRequest
}

func (f *fakeGenerator) Transform(_ context.Context, req image.Request) (*image.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transformCalls++
	if f.transformErr != nil {
		return nil, f.transformErr
	}
	return &image.Result{Data: []byte("transformed:" + req.JobID), Prompt: "transform prompt"}, nil
}

func (f *fakeGenerator) RemoveBackground(_ context.Context, jobID, roomPhotoURL string) (*image.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	return &image.Result{Data: []byte("empty:" + jobID), Prompt: "remove prompt"}, nil
}

func (f *fakeGenerator) Compose(_ context.Context, req image.ComposeRequest) (*image.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composeCalls++
	f.lastCompose = req
	if f.composeErr != nil {
		return nil, f.composeErr
	}
	return &image.Result{Data: []byte("composed:" + req.JobID), Prompt: "compose prompt"}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	objects map[string][]byte
}

func (f *fakeStore) Store(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return "https://cdn.test/" + key, nil
}

type publishedEvent struct {
	userID int64
	event  broker.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, userID int64, event broker.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{userID: userID, event: event})
	return nil
}

func (f *fakePublisher) published() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.events...)
}
