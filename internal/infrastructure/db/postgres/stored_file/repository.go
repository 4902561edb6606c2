package stored_file

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "stored-file-api/internal/domain/stored_file"
	"stored-file-api/internal/infrastructure/db/postgres"
)

type Repository struct {
	db postgres.DB
}

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FetchStoredFile(ctx context.Context, uuid domain.UUID) (*domain.StoredFile, error) {
	sf := new(StoredFile)

	err := r.db.QueryRow(ctx, SelectStoredFileByUUID, uuid).Scan(sf.scanTargets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return fromDBModel(sf)
}

func (r *Repository) CreateStoredFile(ctx context.Context, f *domain.StoredFile, evt *domain.Event) (_ *domain.StoredFile, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sf := new(StoredFile)
	if err = tx.QueryRow(
		ctx,
		InsertStoredFile,
		f.UUID, string(f.ObjectType), f.FileName, int64(f.SizeBytes), string(f.Status), f.UploadedAt, f.UploadedBy,
	).Scan(sf.scanTargets()...); err != nil {
		return nil, fmt.Errorf("insert stored file: %w", err)
	}
	out, err := fromDBModel(sf)
	if err != nil {
		return nil, err
	}

	if err = insertEvent(ctx, tx, evt); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Repository) UpdateStoredFile(ctx context.Context, f *domain.StoredFile, evt *domain.Event) (_ *domain.StoredFile, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sf := new(StoredFile)
	if err = tx.QueryRow(
		ctx,
		UpdateStoredFileByVersion,
		f.UUID, f.Version, string(f.Status), f.MimeType, f.ScannedAt, f.DeletedAt, f.Thumb128Ready, f.Thumb512Ready,
	).Scan(sf.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVersionConflict
		}
		return nil, fmt.Errorf("update stored file: %w", err)
	}
	out, err := fromDBModel(sf)
	if err != nil {
		return nil, err
	}

	if err = insertEvent(ctx, tx, evt); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	return out, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, evt *domain.Event) error {
	if evt == nil {
		return nil
	}
	if _, err := tx.Exec(
		ctx,
		InsertEvent,
		evt.ID, evt.Type, evt.Version, evt.FileID, string(evt.ObjectType), evt.OccurredAt,
	); err != nil {
		return fmt.Errorf("insert event %s: %w", evt.Type, err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *Repository) FetchPendingEvents(ctx context.Context, limit int) (domain.Events, error) {
	rows, err := r.db.Query(ctx, SelectPendingEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evts Events
	for rows.Next() {
		e := new(Event)

		if err = rows.Scan(
			&e.ID,
			&e.EventType,
			&e.SchemaVersion,
			&e.FileID,
			&e.ObjectType,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}

		evts = append(evts, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return fromDBEvents(evts), nil
}

func (r *Repository) MarkEventsPublished(ctx context.Context, ids []domain.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for idx, id := range ids {
		keys[idx] = id.String()
	}

	_, err := r.db.Exec(ctx, MarkEventsPublished, keys)
	return err
}
