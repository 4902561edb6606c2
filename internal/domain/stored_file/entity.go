package stored_file

import (
	"time"

	"github.com/google/uuid"
)

type (
	UUID = uuid.UUID

	// StoredFile is the lifecycle record of an uploaded file. The row is never
	// hard-deleted: after Delete it stays as a tombstone.
	StoredFile struct {
		UUID       UUID
		ObjectType ObjectType

		FileName  string
		SizeBytes uint64
		Status    Status
		MimeType  *string

		UploadedAt time.Time
		UploadedBy UUID
		ScannedAt  *time.Time
		DeletedAt  *time.Time

		Thumb128Ready bool
		Thumb512Ready bool

		// Version is the optimistic-concurrency token. Repositories reject
		// an update whose Version differs from the stored one.
		Version int64
	}
	StoredFiles []*StoredFile
)

func (f *StoredFile) ContentKind() ContentKind { return f.ObjectType.ContentKind() }

func (f *StoredFile) IsImage() bool { return f.ContentKind() == ContentKindImage }

// MimeTypeOr returns the detected MIME type or def when the file is not scanned yet.
func (f *StoredFile) MimeTypeOr(def string) string {
	if f.MimeType == nil || *f.MimeType == "" {
		return def
	}
	return *f.MimeType
}

func (f *StoredFile) ThumbnailsReady() bool { return f.Thumb128Ready && f.Thumb512Ready }

// Clone returns a copy that can be mutated without touching f.
func (f *StoredFile) Clone() *StoredFile {
	c := *f
	if f.MimeType != nil {
		m := *f.MimeType
		c.MimeType = &m
	}
	if f.ScannedAt != nil {
		t := *f.ScannedAt
		c.ScannedAt = &t
	}
	if f.DeletedAt != nil {
		t := *f.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}
