package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

const maxConflictAttempts = 3

// mutateFunc edits the freshly read record in place. write=false skips the
// update and returns the record as read.
type mutateFunc func(f *domain.StoredFile) (evt *domain.Event, write bool, err error)

// updateWithRetry runs read-mutate-write under optimistic locking. On a
// version conflict the record is re-read and mutate runs again.
func updateWithRetry(
	ctx context.Context,
	repository domain.Repository,
	fileID uuid.UUID,
	op string,
	mutate mutateFunc,
) (*domain.StoredFile, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictAttempts; attempt++ {
		f, err := repository.FetchStoredFile(ctx, fileID)
		if err != nil {
			return nil, infraError(op, err)
		}
		if f == nil {
			return nil, domain.NewError(domain.KindNotFound, op, domain.ErrNotFound)
		}

		evt, write, err := mutate(f)
		if err != nil {
			return nil, err
		}
		if !write {
			return f, nil
		}

		out, err := repository.UpdateStoredFile(ctx, f, evt)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, infraError(op, err)
		}
		lastErr = err
	}

	return nil, domain.NewError(domain.KindConflict, op, lastErr)
}

// infraError tags err as infrastructure unless it already carries a kind.
func infraError(op string, err error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.NewError(domain.KindInfrastructure, op, err)
}
