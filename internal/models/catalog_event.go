package models

import "time"

type CatalogEventKind string

const (
	EventUploadCommitted        CatalogEventKind = "upload_committed"
	EventUploadOrphanedPayload  CatalogEventKind = "upload_orphaned_payload"
	EventDeleteCommitted        CatalogEventKind = "delete_committed"
	EventDeleteOrphanedMetadata CatalogEventKind = "delete_orphaned_metadata"
)

type CatalogEvent struct {
	EventID   string           `ch:"event_id"`
	Kind      CatalogEventKind `ch:"kind"`
	VideoID   string           `ch:"video_id"`
	Uploader  string           `ch:"uploader"`
	FilePath  string           `ch:"file_path"`
	Detail    string           `ch:"detail"`
	CreatedAt time.Time        `ch:"created_at"`
}

// Orphan reports whether the event describes a half-finished upload or delete.
func (e CatalogEvent) Orphan() bool {
	return e.Kind == EventUploadOrphanedPayload || e.Kind == EventDeleteOrphanedMetadata
}
