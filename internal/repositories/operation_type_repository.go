package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"
)

// OperationTypeRepository is the sole data-access point for operation
// costs. Services must never hardcode a token price; they look it up here.
type OperationTypeRepository struct {
	db *database.DB
}

// NewOperationTypeRepository creates a new operation-type repository.
func NewOperationTypeRepository(db *database.DB) *OperationTypeRepository {
	return &OperationTypeRepository{db: db}
}

// GetByCode fetches a single enabled operation type by code.
func (r *OperationTypeRepository) GetByCode(ctx context.Context, code string) (*models.OperationType, error) {
	var op models.OperationType
	err := r.db.GetContext(ctx, &op,
		`SELECT code, display_name, tokens_per_operation, max_input_images, enabled, created_at, updated_at
		 FROM operation_types WHERE code = $1 AND enabled = true`,
		code,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation type: %w", err)
	}
	return &op, nil
}

// ListEnabled returns every enabled operation type, for the
// generate/operations catalog endpoint.
func (r *OperationTypeRepository) ListEnabled(ctx context.Context) ([]models.OperationType, error) {
	var ops []models.OperationType
	err := r.db.SelectContext(ctx, &ops,
		`SELECT code, display_name, tokens_per_operation, max_input_images, enabled, created_at, updated_at
		 FROM operation_types WHERE enabled = true ORDER BY tokens_per_operation ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list operation types: %w", err)
	}
	return ops, nil
}
