package stored_file

import (
	"time"

	"github.com/google/uuid"
)

type (
	StoredFile struct {
		ID         uint64
		UUID       uuid.UUID
		ObjectType string

		FileName  string
		SizeBytes int64
		Status    string
		MimeType  *string

		UploadedAt time.Time
		UploadedBy uuid.UUID
		ScannedAt  *time.Time
		DeletedAt  *time.Time

		Thumb128Ready bool
		Thumb512Ready bool

		Version int64
	}

	Event struct {
		ID            uuid.UUID
		EventType     string
		SchemaVersion int
		FileID        uuid.UUID
		ObjectType    string
		OccurredAt    time.Time
	}
	Events []*Event
)

// scanTargets lists destinations in storedFileColumns order.
func (m *StoredFile) scanTargets() []any {
	return []any{
		&m.ID,
		&m.UUID,
		&m.ObjectType,

		&m.FileName,
		&m.SizeBytes,
		&m.Status,
		&m.MimeType,

		&m.UploadedAt,
		&m.UploadedBy,
		&m.ScannedAt,
		&m.DeletedAt,

		&m.Thumb128Ready,
		&m.Thumb512Ready,

		&m.Version,
	}
}
