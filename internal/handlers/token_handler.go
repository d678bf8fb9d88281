package handlers

import (
	"net/http"

	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/services"
	"imagestudio-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenHandler exposes the Token Ledger over HTTP: balance reads,
// paginated history, and an admin-only topup.
type TokenHandler struct {
	ledger *services.LedgerService
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(ledger *services.LedgerService) *TokenHandler {
	return &TokenHandler{ledger: ledger}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}

// GetBalance returns the caller's current token balance.
func (h *TokenHandler) GetBalance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}
	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Balance retrieved", balance)
}

type historyResponse struct {
	Transactions []models.TokenTransaction `json:"transactions"`
	NextCursor   string                    `json:"nextCursor,omitempty"`
}

// GetHistory returns a keyset-paginated page of the caller's transaction
// log, newest first.
func (h *TokenHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "missing user context", nil)
		return
	}

	cursor, err := utils.DecodeCursor(c.Query("cursor"))
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}
	limit := utils.GetCursorLimit(c)
	filter := repositories.TransactionFilter{
		Type:       models.TransactionType(c.Query("type")),
		ReasonCode: models.ReasonCode(c.Query("reasonCode")),
	}

	txns, err := h.ledger.ListTransactions(c.Request.Context(), userID,
		models.TokenTransaction{CreatedAt: cursor.CreatedAt, TransactionID: cursor.ID}, limit+1, filter)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	resp := historyResponse{Transactions: txns}
	if len(txns) > limit {
		last := txns[limit-1]
		resp.Transactions = txns[:limit]
		resp.NextCursor = utils.EncodeCursor(last.CreatedAt, last.TransactionID)
	}
	utils.SendSuccess(c, "Transaction history retrieved", resp)
}

type adminTopupRequest struct {
	UserID         uuid.UUID `json:"userId" binding:"required"`
	Amount         int64     `json:"amount" binding:"required,gt=0"`
	Reason         string    `json:"reason" binding:"required"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

// AdminTopup credits an arbitrary user's balance. Restricted to callers
// whose synced role is "admin".
func (h *TokenHandler) AdminTopup(c *gin.Context) {
	role, _ := c.Get("user_role")
	if role != "admin" {
		utils.SendError(c, http.StatusForbidden, "admin role required", nil)
		return
	}

	var req adminTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	adminID, _ := currentUserID(c)
	txn, err := h.ledger.Credit(c.Request.Context(), req.UserID, req.Amount, services.Entry{
		ReasonCode: models.ReasonAdminTopup,
		Notes:      req.Reason,
		AdminID:    &adminID,
	}, req.IdempotencyKey)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "Balance topped up", txn)
}
