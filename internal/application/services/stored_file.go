package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stored-file-api/internal/application/ports"
	domain "stored-file-api/internal/domain/stored_file"
)

var errMissingActor = errors.New("actor is required")

type StoredFileService struct {
	repository domain.Repository
	storage    ports.FileStorage
	clock      ports.Clock
	logger     *zap.Logger
	mCounter   *prometheus.CounterVec
}

func NewStoredFileService(
	repository domain.Repository,
	storage ports.FileStorage,
	clock ports.Clock,
	logger *zap.Logger,
	mCounter *prometheus.CounterVec,
) ports.StoredFileService {
	return &StoredFileService{
		repository: repository,
		storage:    storage,
		clock:      clock,
		logger:     logger,
		mCounter:   mCounter,
	}
}

// Upload validates the request, writes the blob and then commits the record
// together with its uploaded event. A blob without a record is removed again.
func (s *StoredFileService) Upload(ctx context.Context, req domain.UploadRequest) (*domain.StoredFile, error) {
	const op = "upload"

	if err := req.ObjectType.ValidateUpload(req.FileName, int64(len(req.Content))); err != nil {
		s.mCounter.WithLabelValues("uploads_invalid_total").Inc()
		return nil, err
	}
	if req.UploadedBy == uuid.Nil {
		return nil, domain.NewError(domain.KindValidation, op, errMissingActor)
	}

	now := s.clock.Now()
	f := &domain.StoredFile{
		UUID:       uuid.New(),
		ObjectType: req.ObjectType,
		FileName:   sanitizeFileName(req.FileName),
		SizeBytes:  uint64(len(req.Content)),
		Status:     domain.StatusPendingScan,
		UploadedAt: now,
		UploadedBy: req.UploadedBy,
	}

	if _, err := s.storage.WriteBlob(ctx, f.UUID, bytes.NewReader(req.Content)); err != nil {
		return nil, infraError(op, err)
	}

	out, err := s.repository.CreateStoredFile(ctx, f, domain.NewUploadedEvent(f, now))
	if err != nil {
		if delErr := s.storage.DeleteDir(context.WithoutCancel(ctx), f.UUID); delErr != nil {
			s.logger.Warn("failed to remove blob of unpersisted upload",
				zap.String("file_id", f.UUID.String()),
				zap.Error(delErr),
			)
		}
		return nil, infraError(op, err)
	}

	s.mCounter.WithLabelValues("files_uploaded_total").Inc()
	s.logger.Info("stored file uploaded",
		zap.String("file_id", out.UUID.String()),
		zap.String("object_type", out.ObjectType.String()),
		zap.Uint64("size_bytes", out.SizeBytes),
		zap.String("uploaded_by", out.UploadedBy.String()),
	)

	return out, nil
}

// Delete tombstones the record and then removes its directory. A failed
// directory removal is logged and leaves an orphan behind.
func (s *StoredFileService) Delete(ctx context.Context, fileID uuid.UUID, actor uuid.UUID) (domain.DeleteResult, error) {
	const op = "delete"

	now := s.clock.Now()
	_, err := updateWithRetry(ctx, s.repository, fileID, op, func(f *domain.StoredFile) (*domain.Event, bool, error) {
		if f.Status == domain.StatusDeleted {
			return nil, false, domain.NewError(domain.KindNotFound, op, domain.ErrNotFound)
		}
		if err := f.MarkDeleted(now); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	})
	switch {
	case domain.IsKind(err, domain.KindNotFound):
		return domain.DeleteResultNotFound, nil
	case err != nil:
		s.logger.Error("failed to delete stored file",
			zap.String("file_id", fileID.String()),
			zap.Error(err),
		)
		return domain.DeleteResultFailed, err
	}

	// the tombstone is committed; the removal must not depend on the caller staying
	if err = s.storage.DeleteDir(context.WithoutCancel(ctx), fileID); err != nil {
		s.mCounter.WithLabelValues("orphaned_dirs_total").Inc()
		s.logger.Warn("stored file deleted but its directory was not removed",
			zap.String("file_id", fileID.String()),
			zap.Error(err),
		)
	}

	s.mCounter.WithLabelValues("files_deleted_total").Inc()
	s.logger.Info("stored file deleted",
		zap.String("file_id", fileID.String()),
		zap.String("actor", actor.String()),
	)

	return domain.DeleteResultDeleted, nil
}

// Resolve locates the bytes to serve. A thumbnail that is not flagged or not
// on disk falls back to the original.
func (s *StoredFileService) Resolve(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, error) {
	const op = "resolve"

	f, err := s.repository.FetchStoredFile(ctx, fileID)
	if err != nil {
		return nil, infraError(op, err)
	}
	if f == nil || f.Status != domain.StatusReady {
		return nil, domain.NewError(domain.KindNotFound, op, domain.ErrNotFound)
	}

	v := variant
	if !f.Ready(v) {
		v = domain.VariantOriginal
	}

	size, err := s.storage.Size(fileID, v)
	if errors.Is(err, fs.ErrNotExist) && v != domain.VariantOriginal {
		v = domain.VariantOriginal
		size, err = s.storage.Size(fileID, v)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewError(domain.KindNotFound, op, fmt.Errorf("%w: original missing on disk", domain.ErrNotFound))
	}
	if err != nil {
		return nil, infraError(op, err)
	}

	mimeType := f.MimeTypeOr(domain.MimeOctetStream)
	if v.IsThumbnail() {
		mimeType = domain.ThumbnailFormatFor(mimeType).MimeType()
	}

	return &domain.ResolvedFile{
		FileID:    f.UUID,
		Variant:   v,
		Path:      s.storage.Path(fileID, v),
		MimeType:  mimeType,
		SizeBytes: size,
		FileName:  f.FileName,
	}, nil
}

// OpenContent opens the bytes Resolve points at. A thumbnail removed between
// the two steps falls back to the original.
func (s *StoredFileService) OpenContent(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, io.ReadCloser, error) {
	const op = "open_content"

	res, err := s.Resolve(ctx, fileID, variant)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.storage.Open(fileID, res.Variant)
	switch {
	case errors.Is(err, fs.ErrNotExist) && res.Variant.IsThumbnail():
		return s.OpenContent(ctx, fileID, domain.VariantOriginal)
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil, domain.NewError(domain.KindNotFound, op, fmt.Errorf("%w: original missing on disk", domain.ErrNotFound))
	case err != nil:
		return nil, nil, infraError(op, err)
	}

	if info, err := f.Stat(); err == nil {
		res.SizeBytes = info.Size()
	}

	return res, f, nil
}

// FindStoredFile returns the record in any status, tombstones included.
func (s *StoredFileService) FindStoredFile(ctx context.Context, fileID uuid.UUID) (*domain.StoredFile, error) {
	const op = "find"

	f, err := s.repository.FetchStoredFile(ctx, fileID)
	if err != nil {
		return nil, infraError(op, err)
	}
	if f == nil {
		return nil, domain.NewError(domain.KindNotFound, op, domain.ErrNotFound)
	}

	return f, nil
}
