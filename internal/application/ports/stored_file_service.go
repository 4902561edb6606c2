package ports

import (
	"context"
	"io"

	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

// StoredFileService handles the synchronous commands and queries.
type StoredFileService interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.StoredFile, error)
	Delete(ctx context.Context, fileID uuid.UUID, actor uuid.UUID) (domain.DeleteResult, error)
	Resolve(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, error)
	// OpenContent resolves variant and opens its bytes; the caller closes the reader.
	OpenContent(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, io.ReadCloser, error)
	FindStoredFile(ctx context.Context, fileID uuid.UUID) (*domain.StoredFile, error)
}

// StoredFilePipeline handles asynchronously delivered events. Both handlers
// are idempotent and may be invoked more than once per event.
type StoredFilePipeline interface {
	HandleUploaded(ctx context.Context, evt domain.Event) error
	HandleReady(ctx context.Context, evt domain.Event) error
}
