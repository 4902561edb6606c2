package stored_file

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPendingScan Status = "PENDING_SCAN"
	StatusReady       Status = "READY"
	StatusRejected    Status = "REJECTED"
	StatusDeleted     Status = "DELETED"
)

// validTransitions is the lifecycle matrix. REJECTED files may still be
// tombstoned by Delete; nothing leaves DELETED.
var validTransitions = map[Status]map[Status]bool{
	StatusPendingScan: {StatusReady: true, StatusRejected: true, StatusDeleted: true},
	StatusReady:       {StatusDeleted: true},
	StatusRejected:    {StatusDeleted: true},
	StatusDeleted:     {},
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(target Status) bool {
	return validTransitions[s][target]
}

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (f *StoredFile) transition(op string, target Status) error {
	if !f.Status.CanTransitionTo(target) {
		return &Error{
			Kind: KindConflict,
			Op:   op,
			Err:  fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, target),
		}
	}
	f.Status = target
	return nil
}

// MarkReady records a clean scan. The MIME type is written only here.
func (f *StoredFile) MarkReady(mimeType string, at time.Time) error {
	if err := f.transition("mark_ready", StatusReady); err != nil {
		return err
	}
	f.MimeType = &mimeType
	f.ScannedAt = &at
	return nil
}

func (f *StoredFile) MarkRejected(at time.Time) error {
	if err := f.transition("mark_rejected", StatusRejected); err != nil {
		return err
	}
	f.ScannedAt = &at
	return nil
}

func (f *StoredFile) MarkDeleted(at time.Time) error {
	if err := f.transition("mark_deleted", StatusDeleted); err != nil {
		return err
	}
	f.DeletedAt = &at
	f.Thumb128Ready = false
	f.Thumb512Ready = false
	return nil
}

// MarkThumbnailsReady flips both readiness flags. Status is unchanged.
func (f *StoredFile) MarkThumbnailsReady() error {
	if f.Status != StatusReady {
		return &Error{
			Kind: KindConflict,
			Op:   "mark_thumbnails_ready",
			Err:  fmt.Errorf("%w: thumbnails require %s, got %s", ErrInvalidTransition, StatusReady, f.Status),
		}
	}
	f.Thumb128Ready = true
	f.Thumb512Ready = true
	return nil
}
