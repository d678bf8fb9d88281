package services

import (
	"context"
	"testing"
	"time"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/repositories"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockLedger(t *testing.T) (*LedgerService, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	repo := repositories.NewLedgerRepository(&database.DB{DB: sqlxDB})
	svc := NewLedgerService(repo, nil)
	return svc, mock, func() { mockDB.Close() }
}

func TestLedgerServiceCreditAppliesAndCommits(t *testing.T) {
	svc, mock, closeDB := newMockLedger(t)
	defer closeDB()

	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, balance, total_earned, total_spent, updated_at").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "total_earned", "total_spent", "updated_at"}).
			AddRow(userID, int64(100), int64(100), int64(0), time.Now()))
	mock.ExpectQuery("INSERT INTO token_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("UPDATE user_token_balances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := svc.Credit(context.Background(), userID, 50, Entry{ReasonCode: models.ReasonAdminCorrection}, "")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if txn.BalanceAfter != 150 {
		t.Fatalf("expected balance 150, got %d", txn.BalanceAfter)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerServiceDebitRejectsInsufficientBalance(t *testing.T) {
	svc, mock, closeDB := newMockLedger(t)
	defer closeDB()

	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, balance, total_earned, total_spent, updated_at").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "total_earned", "total_spent", "updated_at"}).
			AddRow(userID, int64(10), int64(10), int64(0), time.Now()))
	mock.ExpectRollback()

	_, err := svc.Debit(context.Background(), userID, 50, Entry{ReasonCode: models.ReasonSpendGeneration}, "")
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindInsufficient {
		t.Fatalf("expected KindInsufficient, got %v", err)
	}
}

func TestLedgerServiceRejectsNonPositiveAmount(t *testing.T) {
	svc, _, closeDB := newMockLedger(t)
	defer closeDB()

	_, err := svc.Credit(context.Background(), uuid.New(), 0, Entry{ReasonCode: models.ReasonAdminCorrection}, "")
	if err == nil {
		t.Fatal("expected validation error for zero amount")
	}
}
