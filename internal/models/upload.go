package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload is a user-owned object in the store: a reference image supplied
// to a generation, or a generation's own output once persisted.
type Upload struct {
	UploadID  uuid.UUID `db:"upload_id" json:"uploadId"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Key       string    `db:"storage_key" json:"storageKey"`
	URL       string    `db:"url" json:"url"`
	MimeType  string    `db:"mime_type" json:"mimeType"`
	SizeBytes int64     `db:"size_bytes" json:"sizeBytes"`
	Width     int       `db:"width" json:"width"`
	Height    int       `db:"height" json:"height"`
	Sha256    string    `db:"sha256" json:"sha256"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
