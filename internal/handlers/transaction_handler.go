package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paypledge/settlement/internal/models"
	"github.com/paypledge/settlement/internal/service"
	"github.com/paypledge/settlement/internal/telemetry"
)

type TransactionHandler struct {
	txns         *service.TransactionService
	orchestrator *service.Orchestrator
}

func NewTransactionHandler(txns *service.TransactionService, orchestrator *service.Orchestrator) *TransactionHandler {
	return &TransactionHandler{
		txns:         txns,
		orchestrator: orchestrator,
	}
}

// statusFor maps the service layer's sentinel errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrReleaseNotEligible),
		errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrGatewayFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var input service.CreateTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		telemetry.Logger.Error("Error decoding create transaction request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	txn, acct, err := h.txns.CreateTransaction(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction": txn,
		"escrow":      acct,
	})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	view, err := h.txns.GetTransactionView(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type depositRequest struct {
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	OperationID     string          `json:"operation_id"`
}

func (h *TransactionHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := h.orchestrator.Deposit(c.Request.Context(), c.Param("id"), req.PaymentMethodID, req.Amount, req.OperationID)
	if err != nil {
		telemetry.Logger.Error("Error processing deposit",
			zap.String("transaction_id", c.Param("id")),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "processed",
		"payment": record,
	})
}

func (h *TransactionHandler) StartWork(c *gin.Context) {
	txn, err := h.txns.StartWork(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

func (h *TransactionHandler) SubmitProof(c *gin.Context) {
	var input service.SubmitProofInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	input.TransactionID = c.Param("id")

	proof, err := h.txns.SubmitProof(c.Request.Context(), input)
	if err != nil {
		telemetry.Logger.Error("Error processing proof submission",
			zap.String("transaction_id", input.TransactionID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"proof": proof})
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

func (h *TransactionHandler) Dispute(c *gin.Context) {
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	txn, err := h.txns.Dispute(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

func (h *TransactionHandler) Cancel(c *gin.Context) {
	txn, err := h.txns.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}
