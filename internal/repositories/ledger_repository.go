package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LedgerRepository handles token-balance and transaction-log persistence.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// BeginTx starts a transaction for the caller to coordinate a
// lock-balance/insert-transaction/update-balance sequence atomically.
func (r *LedgerRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTx(ctx)
}

// LockBalance selects the user's balance row FOR UPDATE, creating one at
// zero if it doesn't exist yet. Must be called inside tx.
func (r *LedgerRepository) LockBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.TokenBalance, error) {
	var bal models.TokenBalance
	err := tx.GetContext(ctx, &bal,
		`SELECT user_id, balance, total_earned, total_spent, updated_at
		 FROM user_token_balances WHERE user_id = $1 FOR UPDATE`,
		userID,
	)
	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_token_balances (user_id, balance, total_earned, total_spent)
			 VALUES ($1, 0, 0, 0) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		)
		if err != nil {
			return nil, fmt.Errorf("create balance row: %w", err)
		}
		err = tx.GetContext(ctx, &bal,
			`SELECT user_id, balance, total_earned, total_spent, updated_at
			 FROM user_token_balances WHERE user_id = $1 FOR UPDATE`,
			userID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	return &bal, nil
}

// UpdateBalance writes the new aggregate balance fields inside tx.
func (r *LedgerRepository) UpdateBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, balance, totalEarned, totalSpent int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE user_token_balances
		 SET balance = $1, total_earned = $2, total_spent = $3, updated_at = now()
		 WHERE user_id = $4`,
		balance, totalEarned, totalSpent, userID,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// FindByIdempotencyKey looks up an existing transaction by
// (userId, idempotencyKey), if present, so callers can short-circuit a
// retried request instead of double-applying it. Scoped to userID because
// the uniqueness constraint itself is per-user: two different users may
// legitimately reuse the same key.
func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, key string) (*models.TokenTransaction, error) {
	var txn models.TokenTransaction
	err := tx.GetContext(ctx, &txn,
		`SELECT transaction_id, user_id, type, amount, balance_after, reason_code,
		        reference_type, reference_id, notes, admin_id, idempotency_key, created_at
		 FROM token_transactions WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by idempotency key: %w", err)
	}
	return &txn, nil
}

// InsertTransaction appends a new ledger entry inside tx.
func (r *LedgerRepository) InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn *models.TokenTransaction) error {
	txn.TransactionID = uuid.New()
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO token_transactions
		   (transaction_id, user_id, type, amount, balance_after, reason_code,
		    reference_type, reference_id, notes, admin_id, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		txn.TransactionID, txn.UserID, txn.Type, txn.Amount, txn.BalanceAfter, txn.ReasonCode,
		txn.ReferenceType, txn.ReferenceID, txn.Notes, txn.AdminID, txn.IdempotencyKey,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetBalance reads the current balance without locking (read path).
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.TokenBalance, error) {
	var bal models.TokenBalance
	err := r.db.GetContext(ctx, &bal,
		`SELECT user_id, balance, total_earned, total_spent, updated_at
		 FROM user_token_balances WHERE user_id = $1`,
		userID,
	)
	if err == sql.ErrNoRows {
		return &models.TokenBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &bal, nil
}

// TransactionFilter narrows ListTransactions to a transaction type and/or
// reason code; either may be empty to mean "any".
type TransactionFilter struct {
	Type       models.TransactionType
	ReasonCode models.ReasonCode
}

const transactionColumns = `transaction_id, user_id, type, amount, balance_after, reason_code,
	        reference_type, reference_id, notes, admin_id, idempotency_key, created_at`

// ListTransactions returns up to limit+1 transactions older than the
// cursor (or the newest ones if the cursor is zero), newest first,
// optionally narrowed by filter. The caller trims the extra row to detect
// whether another page follows.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, cursor models.TokenTransaction, limit int, filter TransactionFilter) ([]models.TokenTransaction, error) {
	var txns []models.TokenTransaction
	var err error
	if cursor.CreatedAt.IsZero() {
		err = r.db.SelectContext(ctx, &txns,
			`SELECT `+transactionColumns+`
			 FROM token_transactions
			 WHERE user_id = $1
			   AND ($2 = '' OR type = $2)
			   AND ($3 = '' OR reason_code = $3)
			 ORDER BY created_at DESC, transaction_id DESC
			 LIMIT $4`,
			userID, filter.Type, filter.ReasonCode, limit,
		)
	} else {
		err = r.db.SelectContext(ctx, &txns,
			`SELECT `+transactionColumns+`
			 FROM token_transactions
			 WHERE user_id = $1 AND (created_at, transaction_id) < ($2, $3)
			   AND ($4 = '' OR type = $4)
			   AND ($5 = '' OR reason_code = $5)
			 ORDER BY created_at DESC, transaction_id DESC
			 LIMIT $6`,
			userID, cursor.CreatedAt, cursor.TransactionID, filter.Type, filter.ReasonCode, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}
