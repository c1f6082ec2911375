// Package memstore is an in-process NoteRepository used by tests and single-node runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/repository"
)

type entry struct {
	seq  int64
	note domain.Note
}

type Store struct {
	mu      sync.Mutex
	nextSeq int64
	notes   map[string]*entry
	now     func() time.Time
}

var _ repository.NoteRepository = (*Store)(nil)

func New() *Store {
	return &Store{
		notes: make(map[string]*entry),
		now:   time.Now,
	}
}

func (s *Store) Create(_ context.Context, n *domain.Note) error {
	if n == nil {
		return fmt.Errorf("%w: note is nil", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[n.ID]; exists {
		return fmt.Errorf("%w: note %s already exists", domain.ErrConflict, n.ID)
	}

	now := s.now().UTC()
	stored := cloneNote(*n)
	stored.ReleaseAt = domain.NormalizeTime(stored.ReleaseAt)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}

	s.nextSeq++
	s.notes[n.ID] = &entry{seq: s.nextSeq, note: stored}
	*n = cloneNote(stored)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.notes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	n := cloneNote(e.note)
	return &n, nil
}

func (s *Store) List(_ context.Context, params repository.ListParams) ([]domain.Note, int64, error) {
	params = params.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*entry, 0, len(s.notes))
	for _, e := range s.notes {
		if params.Status != nil && e.note.Status != *params.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.note.CreatedAt.Equal(b.note.CreatedAt) {
			return a.note.CreatedAt.After(b.note.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return []domain.Note{}, total, nil
	}
	end := min(start+params.PageSize, len(matched))

	notes := make([]domain.Note, 0, end-start)
	for _, e := range matched[start:end] {
		notes = append(notes, cloneNote(e.note))
	}
	return notes, total, nil
}

// ClaimOneDue picks the due pending note with the earliest releaseAt, ties broken by
// insertion order. The store mutex makes the check-and-flip atomic.
func (s *Store) ClaimOneDue(_ context.Context, now time.Time) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *entry
	for _, e := range s.notes {
		if e.note.Status != domain.StatusPending || e.note.ReleaseAt.After(now) {
			continue
		}
		if best == nil ||
			e.note.ReleaseAt.Before(best.note.ReleaseAt) ||
			(e.note.ReleaseAt.Equal(best.note.ReleaseAt) && e.seq < best.seq) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := best.note.Claim(now); err != nil {
		return nil, err
	}
	best.note.UpdatedAt = now.UTC()
	n := cloneNote(best.note)
	return &n, nil
}

func (s *Store) SaveOutcome(_ context.Context, n *domain.Note) error {
	if n == nil || len(n.Attempts) == 0 {
		return fmt.Errorf("%w: outcome needs an attempt", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.notes[n.ID]
	if !ok {
		return domain.ErrNotFound
	}

	last := n.Attempts[len(n.Attempts)-1]
	e.note.Attempts = append(e.note.Attempts, last)
	e.note.Status = n.Status
	e.note.ReleaseAt = domain.NormalizeTime(n.ReleaseAt)
	e.note.DeliveredAt = copyTime(n.DeliveredAt)
	e.note.LockedAt = copyTime(n.LockedAt)
	e.note.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) Replay(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.notes[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.note.Replay(now)
	e.note.UpdatedAt = now.UTC()
	return nil
}

func (s *Store) ReleaseStale(_ context.Context, lockedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for _, e := range s.notes {
		if e.note.Status != domain.StatusProcessing || e.note.LockedAt == nil {
			continue
		}
		if !e.note.LockedAt.Before(lockedBefore) {
			continue
		}
		e.note.Status = domain.StatusPending
		e.note.LockedAt = nil
		e.note.UpdatedAt = s.now().UTC()
		released++
	}
	return released, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func cloneNote(n domain.Note) domain.Note {
	out := n
	if n.Attempts != nil {
		out.Attempts = append([]domain.Attempt(nil), n.Attempts...)
	}
	out.DeliveredAt = copyTime(n.DeliveredAt)
	out.LockedAt = copyTime(n.LockedAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
