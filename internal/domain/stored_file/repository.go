package stored_file

import (
	"context"
)

// Repository is the durable record store. Create and Update persist the
// optional event in the same transaction as the record change.
type Repository interface {
	FetchStoredFile(ctx context.Context, uuid UUID) (*StoredFile, error)
	CreateStoredFile(ctx context.Context, f *StoredFile, evt *Event) (*StoredFile, error)
	// UpdateStoredFile fails with ErrVersionConflict when f.Version is stale.
	UpdateStoredFile(ctx context.Context, f *StoredFile, evt *Event) (*StoredFile, error)
	Ping(ctx context.Context) error
}

// Outbox is read by the publisher that relays events to the broker.
type Outbox interface {
	FetchPendingEvents(ctx context.Context, limit int) (Events, error)
	MarkEventsPublished(ctx context.Context, ids []UUID) error
}
