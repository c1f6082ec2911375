package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/queue"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"github.com/kursadbilgin/notedrop/internal/webhook"
)

type fakeNoteRepo struct {
	createFn       func(ctx context.Context, n *domain.Note) error
	getByIDFn      func(ctx context.Context, id string) (*domain.Note, error)
	listFn         func(ctx context.Context, params repository.ListParams) ([]domain.Note, int64, error)
	claimOneDueFn  func(ctx context.Context, now time.Time) (*domain.Note, error)
	saveOutcomeFn  func(ctx context.Context, n *domain.Note) error
	replayFn       func(ctx context.Context, id string, now time.Time) error
	releaseStaleFn func(ctx context.Context, lockedBefore time.Time) (int64, error)
}

func (f *fakeNoteRepo) Create(ctx context.Context, n *domain.Note) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNoteRepo) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNoteRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Note, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNoteRepo) ClaimOneDue(ctx context.Context, now time.Time) (*domain.Note, error) {
	if f.claimOneDueFn != nil {
		return f.claimOneDueFn(ctx, now)
	}
	return nil, nil
}

func (f *fakeNoteRepo) SaveOutcome(ctx context.Context, n *domain.Note) error {
	if f.saveOutcomeFn != nil {
		return f.saveOutcomeFn(ctx, n)
	}
	return nil
}

func (f *fakeNoteRepo) Replay(ctx context.Context, id string, now time.Time) error {
	if f.replayFn != nil {
		return f.replayFn(ctx, id, now)
	}
	return nil
}

func (f *fakeNoteRepo) ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	if f.releaseStaleFn != nil {
		return f.releaseStaleFn(ctx, lockedBefore)
	}
	return 0, nil
}

func (f *fakeNoteRepo) Ping(context.Context) error { return nil }

type fakeSender struct {
	sendFn func(ctx context.Context, req webhook.Request) (*webhook.Response, error)
}

func (f *fakeSender) Send(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return &webhook.Response{StatusCode: 200}, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, msg queue.DueMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.DueMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeDeliverer struct {
	deliverFn func(ctx context.Context, note *domain.Note) (domain.Status, error)
}

func (f *fakeDeliverer) Deliver(ctx context.Context, note *domain.Note) (domain.Status, error) {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, note)
	}
	return domain.StatusDelivered, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func processingNote(id string, releaseAt time.Time) *domain.Note {
	lockedAt := releaseAt
	return &domain.Note{
		ID:         id,
		Title:      "hello",
		Body:       "world",
		ReleaseAt:  releaseAt,
		WebhookURL: "http://localhost:5000/sink",
		Status:     domain.StatusProcessing,
		LockedAt:   &lockedAt,
	}
}
