package stored_file

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "stored-file-api/internal/domain/stored_file"
)

func TestRepository_CreateFetchUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()

	f := &domain.StoredFile{
		UUID:       uuid.New(),
		ObjectType: domain.ObjectTypePartImage,
		FileName:   "a.png",
		SizeBytes:  3,
		Status:     domain.StatusPendingScan,
		UploadedAt: time.Now().UTC(),
	}
	created, err := r.CreateStoredFile(ctx, f, domain.NewUploadedEvent(f, f.UploadedAt))
	require.NoError(t, err)
	assert.EqualValues(t, 1, created.Version)

	_, err = r.CreateStoredFile(ctx, f, nil)
	require.Error(t, err)

	got, err := r.FetchStoredFile(ctx, f.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPendingScan, got.Status)

	missing, err := r.FetchStoredFile(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, got.MarkReady(domain.MimePNG, time.Now()))
	updated, err := r.UpdateStoredFile(ctx, got, domain.NewReadyEvent(got, time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)

	// the same stale copy cannot be written twice
	_, err = r.UpdateStoredFile(ctx, got, nil)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestRepository_FetchReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	f := &domain.StoredFile{UUID: uuid.New(), Status: domain.StatusPendingScan}
	_, err := r.CreateStoredFile(ctx, f, nil)
	require.NoError(t, err)

	got, err := r.FetchStoredFile(ctx, f.UUID)
	require.NoError(t, err)
	got.Status = domain.StatusDeleted

	again, err := r.FetchStoredFile(ctx, f.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingScan, again.Status)
}

func TestRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		f := &domain.StoredFile{UUID: uuid.New(), Status: domain.StatusPendingScan}
		evt := domain.NewUploadedEvent(f, time.Now())
		ids = append(ids, evt.ID)
		_, err := r.CreateStoredFile(ctx, f, evt)
		require.NoError(t, err)
	}

	pending, err := r.FetchPendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)

	require.NoError(t, r.MarkEventsPublished(ctx, ids[:2]))

	pending, err = r.FetchPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)
	assert.Equal(t, domain.EventUploaded, pending[0].Type)
}
