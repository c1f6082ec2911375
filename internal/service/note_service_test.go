package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/queue"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"go.uber.org/zap"
)

var serviceNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestNoteService(t *testing.T, repo *fakeNoteRepo, publisher queue.Publisher) *NoteService {
	t.Helper()

	svc, err := NewNoteService(repo, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNoteService() error = %v", err)
	}
	svc.now = func() time.Time { return serviceNow }
	return svc
}

func TestNoteServiceCreate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		releaseAt   string
		wantPublish bool
	}{
		{name: "due note publishes wake hint", releaseAt: "2025-06-01T09:59:00Z", wantPublish: true},
		{name: "note due exactly now publishes", releaseAt: "2025-06-01T10:00:00Z", wantPublish: true},
		{name: "future note waits for poll", releaseAt: "2025-06-01T12:00:00+01:00", wantPublish: false},
		{name: "far future note", releaseAt: "2030-01-01T00:00:00.123Z", wantPublish: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var created *domain.Note
			repo := &fakeNoteRepo{
				createFn: func(ctx context.Context, n *domain.Note) error {
					created = n
					return nil
				},
			}
			published := 0
			publisher := &fakePublisher{
				publishFn: func(ctx context.Context, msg queue.DueMessage) error {
					published++
					if msg.NoteID != created.ID {
						t.Errorf("published note id = %s, want %s", msg.NoteID, created.ID)
					}
					return nil
				},
			}

			note, err := newTestNoteService(t, repo, publisher).Create(context.Background(), CreateNoteInput{
				Title:      "  hello ",
				Body:       "world",
				ReleaseAt:  tc.releaseAt,
				WebhookURL: "http://localhost:5000/sink",
			})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			if _, err := uuid.Parse(note.ID); err != nil {
				t.Fatalf("id %q is not a uuid", note.ID)
			}
			if note.Status != domain.StatusPending {
				t.Fatalf("status = %s, want pending", note.Status)
			}
			if note.Title != "hello" {
				t.Fatalf("title = %q, want trimmed", note.Title)
			}
			if note.ReleaseAt.Location() != time.UTC {
				t.Fatal("releaseAt should be stored in UTC")
			}
			if len(note.Attempts) != 0 {
				t.Fatalf("attempts = %d, want 0", len(note.Attempts))
			}
			if got := published == 1; got != tc.wantPublish {
				t.Fatalf("published = %d, wantPublish %v", published, tc.wantPublish)
			}
		})
	}
}

func TestNoteServiceCreateValidation(t *testing.T) {
	t.Parallel()

	valid := CreateNoteInput{
		Title:      "hello",
		Body:       "world",
		ReleaseAt:  "2025-06-01T10:00:00Z",
		WebhookURL: "https://example.com/hook",
	}

	testCases := []struct {
		name   string
		mutate func(in *CreateNoteInput)
	}{
		{name: "missing title", mutate: func(in *CreateNoteInput) { in.Title = " " }},
		{name: "missing body", mutate: func(in *CreateNoteInput) { in.Body = "" }},
		{name: "missing releaseAt", mutate: func(in *CreateNoteInput) { in.ReleaseAt = "" }},
		{name: "malformed releaseAt", mutate: func(in *CreateNoteInput) { in.ReleaseAt = "tomorrow" }},
		{name: "relative webhook url", mutate: func(in *CreateNoteInput) { in.WebhookURL = "/sink" }},
		{name: "non http webhook url", mutate: func(in *CreateNoteInput) { in.WebhookURL = "ftp://example.com" }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeNoteRepo{
				createFn: func(ctx context.Context, n *domain.Note) error {
					t.Error("Create should not reach the repository")
					return nil
				},
			}

			in := valid
			tc.mutate(&in)
			_, err := newTestNoteService(t, repo, nil).Create(context.Background(), in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestNoteServiceCreatePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.DueMessage) error {
			return errors.New("broker down")
		},
	}

	note, err := newTestNoteService(t, &fakeNoteRepo{}, publisher).Create(context.Background(), CreateNoteInput{
		Title:      "hello",
		Body:       "world",
		ReleaseAt:  "2025-06-01T09:00:00Z",
		WebhookURL: "http://localhost:5000/sink",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if note == nil {
		t.Fatal("expected created note")
	}
}

func TestNoteServiceCreateRepositoryError(t *testing.T) {
	t.Parallel()

	repo := &fakeNoteRepo{
		createFn: func(ctx context.Context, n *domain.Note) error {
			return errors.New("insert failed")
		},
	}

	_, err := newTestNoteService(t, repo, nil).Create(context.Background(), CreateNoteInput{
		Title:      "hello",
		Body:       "world",
		ReleaseAt:  "2025-06-01T09:00:00Z",
		WebhookURL: "http://localhost:5000/sink",
	})
	if err == nil {
		t.Fatal("expected Create() error")
	}
}

func TestNoteServiceReplay(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	var gotNow time.Time
	repo := &fakeNoteRepo{
		replayFn: func(ctx context.Context, gotID string, now time.Time) error {
			if gotID != id {
				t.Errorf("id = %s, want %s", gotID, id)
			}
			gotNow = now
			return nil
		},
	}
	published := 0
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.DueMessage) error {
			published++
			return nil
		},
	}

	if err := newTestNoteService(t, repo, publisher).Replay(context.Background(), id); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if !gotNow.Equal(serviceNow) {
		t.Fatalf("replay now = %s, want %s", gotNow, serviceNow)
	}
	if published != 1 {
		t.Fatalf("published = %d, want 1", published)
	}
}

func TestNoteServiceReplayNotFound(t *testing.T) {
	t.Parallel()

	repo := &fakeNoteRepo{
		replayFn: func(ctx context.Context, id string, now time.Time) error {
			return domain.ErrNotFound
		},
	}
	svc := newTestNoteService(t, repo, nil)

	if err := svc.Replay(context.Background(), uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Replay() error = %v, want ErrNotFound", err)
	}
	if err := svc.Replay(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Replay(malformed) error = %v, want ErrNotFound", err)
	}
	if err := svc.Replay(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Replay(empty) error = %v, want ErrValidation", err)
	}
}

func TestNoteServiceGetByID(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	repo := &fakeNoteRepo{
		getByIDFn: func(ctx context.Context, gotID string) (*domain.Note, error) {
			if gotID != id {
				return nil, domain.ErrNotFound
			}
			return &domain.Note{ID: id}, nil
		},
	}
	svc := newTestNoteService(t, repo, nil)

	note, err := svc.GetByID(context.Background(), " "+id+" ")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if note.ID != id {
		t.Fatalf("id = %s, want %s", note.ID, id)
	}

	if _, err := svc.GetByID(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(malformed) error = %v, want ErrNotFound", err)
	}
}

func TestNoteServiceList(t *testing.T) {
	t.Parallel()

	var gotParams repository.ListParams
	repo := &fakeNoteRepo{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Note, int64, error) {
			gotParams = params
			return []domain.Note{{ID: "n1"}}, 1, nil
		},
	}
	svc := newTestNoteService(t, repo, nil)

	dead := domain.StatusDead
	notes, total, err := svc.List(context.Background(), repository.ListParams{Status: &dead})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(notes) != 1 {
		t.Fatalf("total=%d len=%d", total, len(notes))
	}
	if gotParams.Page != 1 || gotParams.PageSize != repository.DefaultPageSize {
		t.Fatalf("params = %+v, want normalized paging", gotParams)
	}

	bogus := domain.Status("bogus")
	if _, _, err := svc.List(context.Background(), repository.ListParams{Status: &bogus}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List(bogus) error = %v, want ErrValidation", err)
	}
}
