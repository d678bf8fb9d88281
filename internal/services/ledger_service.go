package services

import (
	"context"
	"fmt"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/repositories"

	"github.com/google/uuid"
)

// BalanceNotifier is implemented by the realtime fabric so the ledger can
// push tokens.balance.updated without importing the realtime package
// directly (avoids a services <-> realtime import cycle).
type BalanceNotifier interface {
	EmitBalanceUpdated(userID uuid.UUID, balance int64)
}

// LedgerService owns all balance mutation. Every credit or debit goes
// through Credit/Debit so the append-only invariant and idempotency
// guarantee hold regardless of caller.
type LedgerService struct {
	repo     *repositories.LedgerRepository
	notifier BalanceNotifier
}

// NewLedgerService creates a new ledger service. notifier may be nil
// (e.g. in tests); EmitBalanceUpdated is then skipped.
func NewLedgerService(repo *repositories.LedgerRepository, notifier BalanceNotifier) *LedgerService {
	return &LedgerService{repo: repo, notifier: notifier}
}

// GetBalance returns the user's current balance, defaulting to zero for a
// user who has never transacted.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.TokenBalance, error) {
	return s.repo.GetBalance(ctx, userID)
}

// ListTransactions returns one page of a user's transaction history,
// newest-first, keyset-paginated from cursor and narrowed by filter.
func (s *LedgerService) ListTransactions(ctx context.Context, userID uuid.UUID, cursor models.TokenTransaction, limit int, filter repositories.TransactionFilter) ([]models.TokenTransaction, error) {
	return s.repo.ListTransactions(ctx, userID, cursor, limit, filter)
}

// Entry carries the optional attribution fields a ledger mutation may
// record alongside its reason code. ReferenceType/ReferenceID identify
// the domain object the entry is about (e.g. "generation"/generationId);
// Notes is free text (never folded into ReasonCode, so reason-code
// filtering stays exact); AdminID identifies the operator for an
// admin-initiated entry.
type Entry struct {
	ReasonCode    models.ReasonCode
	ReferenceType string
	ReferenceID   *uuid.UUID
	Notes         string
	AdminID       *uuid.UUID
}

// Credit appends a credit entry and increases the user's balance.
// idempotencyKey, if non-empty, makes a retried call with the same key a
// no-op that returns the originally-applied transaction.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount int64, entry Entry, idempotencyKey string) (*models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.New(apperrors.KindValidation, "credit amount must be positive")
	}
	return s.apply(ctx, userID, models.TransactionCredit, amount, entry, idempotencyKey)
}

// Debit appends a debit entry and decreases the user's balance. It fails
// with KindInsufficient if the user's balance can't cover amount.
func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, amount int64, entry Entry, idempotencyKey string) (*models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.New(apperrors.KindValidation, "debit amount must be positive")
	}
	return s.apply(ctx, userID, models.TransactionDebit, amount, entry, idempotencyKey)
}

// GrantSignupBonus credits a new user's starting balance. The
// idempotency key is derived from the user ID so it can be called safely
// on every login without double-granting.
func (s *LedgerService) GrantSignupBonus(ctx context.Context, userID uuid.UUID, amount int64) (*models.TokenTransaction, error) {
	return s.Credit(ctx, userID, amount, Entry{ReasonCode: models.ReasonSignupBonus}, fmt.Sprintf("signup-bonus:%s", userID))
}

func (s *LedgerService) apply(ctx context.Context, userID uuid.UUID, txType models.TransactionType, amount int64, entry Entry, idempotencyKey string) (*models.TokenTransaction, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "begin ledger transaction", err)
	}
	defer tx.Rollback()

	var idemKeyPtr *string
	if idempotencyKey != "" {
		if existing, err := s.repo.FindByIdempotencyKey(ctx, tx, userID, idempotencyKey); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "check idempotency key", err)
		} else if existing != nil {
			return existing, nil
		}
		idemKeyPtr = &idempotencyKey
	}

	bal, err := s.repo.LockBalance(ctx, tx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "lock balance", err)
	}

	newBalance := bal.Balance
	newEarned := bal.TotalEarned
	newSpent := bal.TotalSpent
	switch txType {
	case models.TransactionCredit:
		newBalance += amount
		newEarned += amount
	case models.TransactionDebit:
		if bal.Balance < amount {
			return nil, apperrors.New(apperrors.KindInsufficient, "insufficient token balance")
		}
		newBalance -= amount
		newSpent += amount
	}

	var referenceType *string
	if entry.ReferenceType != "" {
		referenceType = &entry.ReferenceType
	}
	var notes *string
	if entry.Notes != "" {
		notes = &entry.Notes
	}

	txn := &models.TokenTransaction{
		UserID:         userID,
		Type:           txType,
		Amount:         amount,
		BalanceAfter:   newBalance,
		ReasonCode:     entry.ReasonCode,
		ReferenceType:  referenceType,
		ReferenceID:    entry.ReferenceID,
		Notes:          notes,
		AdminID:        entry.AdminID,
		IdempotencyKey: idemKeyPtr,
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "insert ledger transaction", err)
	}
	if err := s.repo.UpdateBalance(ctx, tx, userID, newBalance, newEarned, newSpent); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "update balance", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "commit ledger transaction", err)
	}

	if s.notifier != nil {
		s.notifier.EmitBalanceUpdated(userID, newBalance)
	}

	return txn, nil
}
