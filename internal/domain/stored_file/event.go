package stored_file

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventUploaded = "stored_file.uploaded"
	EventReady    = "stored_file.ready"

	EventSchemaV1 = 1
)

type (
	// Event is an outbox entry. It is written in the same transaction as the
	// record change it describes and relayed to the broker afterwards.
	Event struct {
		ID         uuid.UUID  `json:"event_id"`
		Type       string     `json:"event_type"`
		Version    int        `json:"schema_version"`
		OccurredAt time.Time  `json:"time_stamp"`
		FileID     UUID       `json:"file_id"`
		ObjectType ObjectType `json:"object_type"`
	}
	Events []*Event
)

func NewUploadedEvent(f *StoredFile, at time.Time) *Event {
	return newEvent(EventUploaded, f, at)
}

func NewReadyEvent(f *StoredFile, at time.Time) *Event {
	return newEvent(EventReady, f, at)
}

func newEvent(typ string, f *StoredFile, at time.Time) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       typ,
		Version:    EventSchemaV1,
		OccurredAt: at,
		FileID:     f.UUID,
		ObjectType: f.ObjectType,
	}
}
