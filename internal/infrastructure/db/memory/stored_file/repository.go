// Package stored_file is an in-process record store with the same
// versioning and outbox semantics as the postgres repository.
package stored_file

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

type outboxEntry struct {
	evt       *domain.Event
	published bool
}

type Repository struct {
	mu     sync.RWMutex
	files  map[uuid.UUID]*domain.StoredFile
	outbox []*outboxEntry
}

func NewRepository() *Repository {
	return &Repository{
		files: make(map[uuid.UUID]*domain.StoredFile),
	}
}

func (r *Repository) FetchStoredFile(ctx context.Context, id domain.UUID) (*domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	if !ok {
		return nil, nil
	}
	return f.Clone(), nil
}

func (r *Repository) CreateStoredFile(ctx context.Context, f *domain.StoredFile, evt *domain.Event) (*domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.UUID]; ok {
		return nil, fmt.Errorf("stored file %s already exists", f.UUID)
	}

	stored := f.Clone()
	stored.Version = 1
	r.files[f.UUID] = stored
	r.enqueue(evt)

	return stored.Clone(), nil
}

func (r *Repository) UpdateStoredFile(ctx context.Context, f *domain.StoredFile, evt *domain.Event) (*domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.files[f.UUID]
	if !ok || cur.Version != f.Version {
		return nil, domain.ErrVersionConflict
	}

	stored := f.Clone()
	stored.Version = cur.Version + 1
	r.files[f.UUID] = stored
	r.enqueue(evt)

	return stored.Clone(), nil
}

func (r *Repository) Ping(ctx context.Context) error { return ctx.Err() }

func (r *Repository) enqueue(evt *domain.Event) {
	if evt == nil {
		return
	}
	e := *evt
	r.outbox = append(r.outbox, &outboxEntry{evt: &e})
}

func (r *Repository) FetchPendingEvents(ctx context.Context, limit int) (domain.Events, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out domain.Events
	for _, e := range r.outbox {
		if e.published {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		evt := *e.evt
		out = append(out, &evt)
	}
	return out, nil
}

func (r *Repository) MarkEventsPublished(ctx context.Context, ids []domain.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	for _, e := range r.outbox {
		if _, ok := done[e.evt.ID]; ok {
			e.published = true
		}
	}
	return nil
}
