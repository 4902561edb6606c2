package stored_file

const storedFileColumns = `id, uuid, object_type, file_name, size_bytes, status, mime_type, uploaded_at, uploaded_by, scanned_at, deleted_at, thumb_128_ready, thumb_512_ready, version`

const (
	SelectStoredFileByUUID = `
		SELECT ` + storedFileColumns + `
		FROM stored_files
		WHERE uuid = $1
	`
	InsertStoredFile = `
		INSERT INTO stored_files (uuid, object_type, file_name, size_bytes, status, uploaded_at, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + storedFileColumns
	UpdateStoredFileByVersion = `
		UPDATE stored_files
		SET status = $3,
		    mime_type = $4,
		    scanned_at = $5,
		    deleted_at = $6,
		    thumb_128_ready = $7,
		    thumb_512_ready = $8,
		    version = version + 1
		WHERE uuid = $1 AND version = $2
		RETURNING ` + storedFileColumns

	InsertEvent = `
		INSERT INTO stored_file_events (id, event_type, schema_version, file_id, object_type, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	SelectPendingEvents = `
		SELECT id, event_type, schema_version, file_id, object_type, occurred_at
		FROM stored_file_events
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`
	MarkEventsPublished = `
		UPDATE stored_file_events
		SET published_at = now()
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`
)
