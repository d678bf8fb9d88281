package repositories

import (
	"context"
	"testing"
	"time"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockGenerationRepo(t *testing.T) (*GenerationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	repo := NewGenerationRepository(&database.DB{DB: sqlxDB})
	return repo, mock, func() { mockDB.Close() }
}

func TestGenerationRepositoryCreateDefaultsNumberOfImages(t *testing.T) {
	repo, mock, closeDB := newMockGenerationRepo(t)
	defer closeDB()

	userID := uuid.New()
	mock.ExpectQuery("INSERT INTO generations").
		WillReturnRows(sqlmock.NewRows([]string{"queued_at", "created_at", "updated_at"}).
			AddRow(time.Now(), time.Now(), time.Now()))

	gen := &models.Generation{UserID: userID, OperationType: models.OperationTextToImage, Prompt: "a cat"}
	if err := repo.Create(context.Background(), gen); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gen.NumberOfImages != 1 {
		t.Fatalf("expected default NumberOfImages 1, got %d", gen.NumberOfImages)
	}
	if gen.Status != models.GenerationQueued {
		t.Fatalf("expected queued status, got %v", gen.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerationRepositoryListTimelineExcludesFailedByDefault(t *testing.T) {
	repo, mock, closeDB := newMockGenerationRepo(t)
	defer closeDB()

	userID := uuid.New()
	mock.ExpectQuery("SELECT .* FROM generations").
		WithArgs(userID, false, models.GenerationFailed, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"generation_id", "user_id", "project_id", "operation_type", "prompt", "negative_prompt",
			"prompt_template_id", "reference_type", "model", "inputs", "target_input", "number_of_images",
			"aspect_ratio", "status", "progress", "output_urls", "metadata", "ai_metadata", "error_message",
			"tokens_charged", "ledger_txn_id", "queued_at", "started_at", "completed_at", "created_at", "updated_at",
		}))

	_, err := repo.ListTimeline(context.Background(), userID, models.Generation{}, 10, false)
	if err != nil {
		t.Fatalf("ListTimeline: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
