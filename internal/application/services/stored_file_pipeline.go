package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stored-file-api/internal/application/ports"
	domain "stored-file-api/internal/domain/stored_file"
)

type StoredFilePipeline struct {
	repository   domain.Repository
	storage      ports.FileStorage
	scanner      ports.Scanner
	detector     ports.MimeDetector
	thumbnailer  ports.Thumbnailer
	clock        ports.Clock
	logger       *zap.Logger
	mCounter     *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
}

func NewStoredFilePipeline(
	repository domain.Repository,
	storage ports.FileStorage,
	scanner ports.Scanner,
	detector ports.MimeDetector,
	thumbnailer ports.Thumbnailer,
	clock ports.Clock,
	logger *zap.Logger,
	mCounter *prometheus.CounterVec,
	scanDuration *prometheus.HistogramVec,
) *StoredFilePipeline {
	return &StoredFilePipeline{
		repository:   repository,
		storage:      storage,
		scanner:      scanner,
		detector:     detector,
		thumbnailer:  thumbnailer,
		clock:        clock,
		logger:       logger,
		mCounter:     mCounter,
		scanDuration: scanDuration,
	}
}

var _ ports.StoredFilePipeline = (*StoredFilePipeline)(nil)

// HandleUploaded scans a PENDING_SCAN file and validates its content type.
// The file ends READY with a ready event, or REJECTED with its blob removed.
func (p *StoredFilePipeline) HandleUploaded(ctx context.Context, evt domain.Event) error {
	const op = "handle_uploaded"
	log := p.logger.With(
		zap.String("file_id", evt.FileID.String()),
		zap.String("event_id", evt.ID.String()),
	)

	f, err := p.repository.FetchStoredFile(ctx, evt.FileID)
	if err != nil {
		return infraError(op, err)
	}
	switch {
	case f == nil:
		log.Warn("uploaded event for unknown file")
		return nil
	case f.Status == domain.StatusRejected:
		// redelivery after a rejection whose cleanup may not have finished
		p.removeDir(ctx, log, f)
		return nil
	case f.Status != domain.StatusPendingScan:
		log.Debug("file already scanned", zap.String("status", f.Status.String()))
		return nil
	}

	content, err := p.storage.ReadBlob(ctx, f.UUID)
	if err != nil {
		return infraError(op, err)
	}

	start := time.Now()
	res, err := p.scanner.Scan(ctx, bytes.NewReader(content))
	if err != nil {
		p.mCounter.WithLabelValues("scan_errors_total").Inc()
		return infraError(op, err)
	}
	p.scanDuration.WithLabelValues(res.Verdict.String()).Observe(time.Since(start).Seconds())

	var (
		mimeType string
		reason   error
	)
	if res.Verdict != domain.VerdictClean {
		reason = domain.NewError(domain.KindRejected, op, fmt.Errorf("scan verdict %s: %s", res.Verdict, res.Detail))
	} else {
		mimeType = p.detector.Detect(content, f.FileName)
		reason = f.ObjectType.ValidateContent(mimeType, f.FileName)
	}

	now := p.clock.Now()
	out, err := updateWithRetry(ctx, p.repository, f.UUID, op, func(cur *domain.StoredFile) (*domain.Event, bool, error) {
		if cur.Status != domain.StatusPendingScan {
			return nil, false, nil
		}
		if reason != nil {
			return nil, true, cur.MarkRejected(now)
		}
		if err := cur.MarkReady(mimeType, now); err != nil {
			return nil, false, err
		}
		return domain.NewReadyEvent(cur, now), true, nil
	})
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil
		}
		return err
	}

	switch out.Status {
	case domain.StatusRejected:
		p.mCounter.WithLabelValues("files_rejected_total").Inc()
		log.Warn("stored file rejected", zap.Error(reason))
		p.removeDir(ctx, log, out)
	case domain.StatusReady:
		p.mCounter.WithLabelValues("files_ready_total").Inc()
		log.Info("stored file ready", zap.String("mime_type", mimeType))
	}

	return nil
}

// HandleReady renders both thumbnails of a READY image file. Undecodable or
// oversized images keep the file READY without thumbnails.
func (p *StoredFilePipeline) HandleReady(ctx context.Context, evt domain.Event) error {
	const op = "handle_ready"
	log := p.logger.With(
		zap.String("file_id", evt.FileID.String()),
		zap.String("event_id", evt.ID.String()),
	)

	f, err := p.repository.FetchStoredFile(ctx, evt.FileID)
	if err != nil {
		return infraError(op, err)
	}
	if f == nil || f.Status != domain.StatusReady || !f.IsImage() || f.ThumbnailsReady() {
		return nil
	}

	content, err := p.storage.ReadBlob(ctx, f.UUID)
	if err != nil {
		return infraError(op, err)
	}

	sizes := make([]int, len(domain.Thumbnails))
	for idx, v := range domain.Thumbnails {
		sizes[idx] = v.Size()
	}

	format := domain.ThumbnailFormatFor(f.MimeTypeOr(""))
	set, err := p.thumbnailer.GenerateSet(content, sizes, format)
	if err != nil {
		if errors.Is(err, domain.ErrImageDecode) || errors.Is(err, domain.ErrImageTooLarge) {
			p.mCounter.WithLabelValues("thumbnails_failed_total").Inc()
			log.Warn("thumbnails skipped", zap.Error(err))
			return nil
		}
		return infraError(op, err)
	}

	for _, v := range domain.Thumbnails {
		if _, err = p.storage.WriteThumbnail(ctx, f.UUID, v, bytes.NewReader(set[v.Size()])); err != nil {
			return infraError(op, err)
		}
	}

	out, err := updateWithRetry(ctx, p.repository, f.UUID, op, func(cur *domain.StoredFile) (*domain.Event, bool, error) {
		if cur.Status != domain.StatusReady || cur.ThumbnailsReady() {
			return nil, false, nil
		}
		return nil, true, cur.MarkThumbnailsReady()
	})
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil
		}
		return err
	}

	if out.Status == domain.StatusDeleted {
		// deleted while rendering; drop what was just written
		p.removeDir(ctx, log, out)
		return nil
	}

	p.mCounter.WithLabelValues("thumbnails_generated_total").Inc()
	log.Info("thumbnails generated", zap.String("format", format.MimeType()))

	return nil
}

func (p *StoredFilePipeline) removeDir(ctx context.Context, log *zap.Logger, f *domain.StoredFile) {
	if err := p.storage.DeleteDir(context.WithoutCancel(ctx), f.UUID); err != nil {
		p.mCounter.WithLabelValues("orphaned_dirs_total").Inc()
		log.Warn("failed to remove file directory",
			zap.String("status", f.Status.String()),
			zap.Error(err),
		)
	}
}
