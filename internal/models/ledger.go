package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType distinguishes a ledger entry as a credit or a debit.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// ReasonCode enumerates why a ledger entry was written. Free-form detail
// belongs in TokenTransaction.Notes, never folded into the reason code
// itself, so reason-code filtering stays exact.
type ReasonCode string

const (
	ReasonSignupBonus     ReasonCode = "signup_bonus"
	ReasonAdminTopup      ReasonCode = "admin_topup"
	ReasonAdminCorrection ReasonCode = "admin_correction"
	ReasonSpendGeneration ReasonCode = "spend_generation"
	ReasonRefund          ReasonCode = "refund"
)

// TokenBalance is the per-user materialized balance row. It is derived
// state: the authoritative record is the append-only TokenTransaction log,
// but the balance is cached here under row-level locking so reads don't
// have to sum the whole ledger.
type TokenBalance struct {
	UserID      uuid.UUID `db:"user_id" json:"userId"`
	Balance     int64     `db:"balance" json:"balance"`
	TotalEarned int64     `db:"total_earned" json:"totalEarned"`
	TotalSpent  int64     `db:"total_spent" json:"totalSpent"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// TokenTransaction is a single append-only ledger entry. Amount is always
// positive; Type alone carries the sign against the balance.
type TokenTransaction struct {
	TransactionID  uuid.UUID       `db:"transaction_id" json:"transactionId"`
	UserID         uuid.UUID       `db:"user_id" json:"userId"`
	Type           TransactionType `db:"type" json:"type"`
	Amount         int64           `db:"amount" json:"amount"`
	BalanceAfter   int64           `db:"balance_after" json:"balanceAfter"`
	ReasonCode     ReasonCode      `db:"reason_code" json:"reasonCode"`
	ReferenceType  *string         `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID    *uuid.UUID      `db:"reference_id" json:"referenceId,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	AdminID        *uuid.UUID      `db:"admin_id" json:"adminId,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}
