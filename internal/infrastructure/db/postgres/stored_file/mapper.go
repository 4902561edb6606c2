package stored_file

import (
	"fmt"

	domain "stored-file-api/internal/domain/stored_file"
)

// fromDBModel rejects rows whose enum columns hold values this build does not know.
func fromDBModel(model *StoredFile) (*domain.StoredFile, error) {
	status, err := domain.ParseStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("stored file %s: %w", model.UUID, err)
	}
	ot := domain.ObjectType(model.ObjectType)
	if !ot.Valid() {
		return nil, fmt.Errorf("stored file %s: unknown object type %q", model.UUID, model.ObjectType)
	}

	var f = &domain.StoredFile{
		UUID:       model.UUID,
		ObjectType: ot,

		FileName:  model.FileName,
		SizeBytes: uint64(model.SizeBytes),
		Status:    status,
		MimeType:  model.MimeType,

		UploadedAt: model.UploadedAt,
		UploadedBy: model.UploadedBy,
		ScannedAt:  model.ScannedAt,
		DeletedAt:  model.DeletedAt,

		Thumb128Ready: model.Thumb128Ready,
		Thumb512Ready: model.Thumb512Ready,

		Version: model.Version,
	}

	return f, nil
}

func fromDBEvent(model *Event) *domain.Event {
	return &domain.Event{
		ID:         model.ID,
		Type:       model.EventType,
		Version:    model.SchemaVersion,
		OccurredAt: model.OccurredAt,
		FileID:     model.FileID,
		ObjectType: domain.ObjectType(model.ObjectType),
	}
}

func fromDBEvents(models Events) domain.Events {
	evts := make(domain.Events, len(models))
	for idx, e := range models {
		evts[idx] = fromDBEvent(e)
	}

	return evts
}
