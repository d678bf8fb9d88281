package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"
)

const promptTemplateColumns = `template_id, name, category, prompt_text, operation_type, is_active, created_at`

// PromptTemplateRepository serves the read-only prompt template catalog.
type PromptTemplateRepository struct {
	db *database.DB
}

// NewPromptTemplateRepository creates a new prompt template repository.
func NewPromptTemplateRepository(db *database.DB) *PromptTemplateRepository {
	return &PromptTemplateRepository{db: db}
}

// ListByOperationType returns the active templates offered for a given
// operation.
func (r *PromptTemplateRepository) ListByOperationType(ctx context.Context, operationType string) ([]models.PromptTemplate, error) {
	var rows []models.PromptTemplate
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+promptTemplateColumns+`
		 FROM prompt_templates WHERE operation_type = $1 AND is_active ORDER BY name ASC`,
		operationType,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompt templates: %w", err)
	}
	return rows, nil
}

// GetByID looks up a single template by ID regardless of its active flag,
// so the worker can still resolve a template a generation referenced
// before it was deactivated. Returns nil, nil if not found.
func (r *PromptTemplateRepository) GetByID(ctx context.Context, id string) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	err := r.db.GetContext(ctx, &t,
		`SELECT `+promptTemplateColumns+` FROM prompt_templates WHERE template_id = $1`,
		id,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt template: %w", err)
	}
	return &t, nil
}
