package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"

	"github.com/google/uuid"
)

// UploadRepository persists metadata about objects the Object Store
// Facade has written on a user's behalf.
type UploadRepository struct {
	db *database.DB
}

// NewUploadRepository creates a new upload repository.
func NewUploadRepository(db *database.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts an upload row.
func (r *UploadRepository) Create(ctx context.Context, u *models.Upload) error {
	if u.UploadID == uuid.Nil {
		u.UploadID = uuid.New()
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO uploads
		   (upload_id, user_id, storage_key, url, mime_type, size_bytes, width, height, sha256)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		u.UploadID, u.UserID, u.Key, u.URL, u.MimeType, u.SizeBytes, u.Width, u.Height, u.Sha256,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// GetByID fetches an upload scoped to its owner.
func (r *UploadRepository) GetByID(ctx context.Context, userID, uploadID uuid.UUID) (*models.Upload, error) {
	var u models.Upload
	err := r.db.GetContext(ctx, &u,
		`SELECT upload_id, user_id, storage_key, url, mime_type, size_bytes, width, height, sha256, created_at
		 FROM uploads WHERE upload_id = $1 AND user_id = $2`,
		uploadID, userID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return &u, nil
}
