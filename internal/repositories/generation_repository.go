package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"

	"github.com/google/uuid"
)

// GenerationRepository persists generation jobs and their terminal
// outputs.
type GenerationRepository struct {
	db *database.DB
}

// NewGenerationRepository creates a new generation repository.
func NewGenerationRepository(db *database.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `generation_id, user_id, project_id, operation_type, prompt, negative_prompt,
	prompt_template_id, reference_type, model, inputs, target_input, number_of_images,
	aspect_ratio, status, progress, output_urls, metadata, ai_metadata, error_message,
	tokens_charged, ledger_txn_id, queued_at, started_at, completed_at, created_at, updated_at`

// Create inserts a new generation in the queued status. No tokens are
// charged at creation time; TokensCharged/LedgerTxnID stay zero/nil until
// the worker completes the job successfully.
func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	g.GenerationID = uuid.New()
	if g.NumberOfImages <= 0 {
		g.NumberOfImages = 1
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO generations
		   (generation_id, user_id, project_id, operation_type, prompt, negative_prompt,
		    prompt_template_id, reference_type, model, inputs, target_input, number_of_images,
		    aspect_ratio, status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING queued_at, created_at, updated_at`,
		g.GenerationID, g.UserID, g.ProjectID, g.OperationType, g.Prompt, g.NegativePrompt,
		g.PromptTemplateID, g.ReferenceType, g.Model, g.Inputs, g.TargetInput, g.NumberOfImages,
		g.AspectRatio, models.GenerationQueued, g.Metadata,
	).Scan(&g.QueuedAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	g.Status = models.GenerationQueued
	return nil
}

// UpdateProgress records partial completion as a 0..100 percentage while
// a generation is processing.
func (r *GenerationRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations SET progress = $1, updated_at = now()
		 WHERE generation_id = $2 AND status = $3`,
		progress, id, models.GenerationProcessing,
	)
	if err != nil {
		return fmt.Errorf("update generation progress: %w", err)
	}
	return nil
}

// MarkProcessing transitions a queued generation to processing.
func (r *GenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations SET status = $1, started_at = now(), updated_at = now()
		 WHERE generation_id = $2 AND status = $3`,
		models.GenerationProcessing, id, models.GenerationQueued,
	)
	if err != nil {
		return fmt.Errorf("mark generation processing: %w", err)
	}
	return nil
}

// Complete attaches output URLs and charge attribution and marks a
// generation completed with progress 100. It records the debit the
// worker made after the provider call and output persistence both
// succeeded; scoped to non-terminal rows so a redelivered job can't flip
// a result (or its recorded charge) twice.
func (r *GenerationRepository) Complete(ctx context.Context, id uuid.UUID, outputURLs models.StringList, aiMetadata models.JSONMap, tokensCharged int64, ledgerTxnID *uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations
		 SET status = $1, output_urls = $2, ai_metadata = $3, tokens_charged = $4, ledger_txn_id = $5,
		     progress = 100, completed_at = now(), updated_at = now()
		 WHERE generation_id = $6 AND status NOT IN ($1, $7, $8)`,
		models.GenerationCompleted, outputURLs, aiMetadata, tokensCharged, ledgerTxnID,
		id, models.GenerationFailed, models.GenerationCancelled,
	)
	if err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}
	return nil
}

// Fail marks a generation permanently failed with an error message. No
// tokens are ever charged for a failed generation, so there is no
// compensating ledger entry to write here.
func (r *GenerationRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations
		 SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		 WHERE generation_id = $3 AND status NOT IN ($1, $4, $5)`,
		models.GenerationFailed, reason, id, models.GenerationCompleted, models.GenerationCancelled,
	)
	if err != nil {
		return fmt.Errorf("fail generation: %w", err)
	}
	return nil
}

// Cancel marks a queued generation cancelled; a generation already
// processing is left unchanged. No tokens have been charged on a queued
// generation, so cancellation never needs a refund.
func (r *GenerationRepository) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations
		 SET status = $1, completed_at = now(), updated_at = now()
		 WHERE generation_id = $2 AND user_id = $3 AND status = $4`,
		models.GenerationCancelled, id, userID, models.GenerationQueued,
	)
	if err != nil {
		return fmt.Errorf("cancel generation: %w", err)
	}
	return nil
}

// GetByID fetches a single generation, scoped to its owner.
func (r *GenerationRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Generation, error) {
	var g models.Generation
	err := r.db.GetContext(ctx, &g,
		`SELECT `+generationColumns+` FROM generations WHERE generation_id = $1 AND user_id = $2`,
		id, userID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &g, nil
}

// GetByIDAnyOwner fetches a generation without an ownership check, for
// internal worker use.
func (r *GenerationRepository) GetByIDAnyOwner(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	var g models.Generation
	err := r.db.GetContext(ctx, &g, `SELECT `+generationColumns+` FROM generations WHERE generation_id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &g, nil
}

// ListQueue returns a user's non-terminal generations, oldest first.
func (r *GenerationRepository) ListQueue(ctx context.Context, userID uuid.UUID) ([]models.Generation, error) {
	var rows []models.Generation
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+generationColumns+` FROM generations
		 WHERE user_id = $1 AND status IN ($2, $3)
		 ORDER BY queued_at ASC`,
		userID, models.GenerationQueued, models.GenerationProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return rows, nil
}

// ListTimeline returns a keyset-paginated page of a user's generations,
// newest first. Failed generations are excluded unless includeFailed is
// true.
func (r *GenerationRepository) ListTimeline(ctx context.Context, userID uuid.UUID, cursor models.Generation, limit int, includeFailed bool) ([]models.Generation, error) {
	var rows []models.Generation
	var err error
	if cursor.CreatedAt.IsZero() {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+generationColumns+` FROM generations
			 WHERE user_id = $1 AND ($2 OR status != $3)
			 ORDER BY created_at DESC, generation_id DESC LIMIT $4`,
			userID, includeFailed, models.GenerationFailed, limit,
		)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+generationColumns+` FROM generations
			 WHERE user_id = $1 AND (created_at, generation_id) < ($2, $3)
			   AND ($4 OR status != $5)
			 ORDER BY created_at DESC, generation_id DESC LIMIT $6`,
			userID, cursor.CreatedAt, cursor.GenerationID, includeFailed, models.GenerationFailed, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return rows, nil
}
