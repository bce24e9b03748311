package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paypledge/settlement/internal/repository"
	"github.com/paypledge/settlement/internal/service"
	"github.com/paypledge/settlement/internal/telemetry"
)

type EscrowHandler struct {
	stores       *repository.Stores
	orchestrator *service.Orchestrator
}

func NewEscrowHandler(stores *repository.Stores, orchestrator *service.Orchestrator) *EscrowHandler {
	return &EscrowHandler{
		stores:       stores,
		orchestrator: orchestrator,
	}
}

func (h *EscrowHandler) GetEscrowAccount(c *gin.Context) {
	acct, _, err := h.stores.GetEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

type releaseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	OperationID string          `json:"operation_id"`
}

func (h *EscrowHandler) Release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := h.orchestrator.Release(c.Request.Context(), c.Param("id"), req.Amount, req.OperationID)
	if err != nil {
		telemetry.Logger.Error("Error processing release",
			zap.String("escrow_account_id", c.Param("id")),
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

type refundRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	OperationID string          `json:"operation_id"`
}

func (h *EscrowHandler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := h.orchestrator.Refund(c.Request.Context(), c.Param("id"), req.Amount, req.Reason, req.OperationID)
	if err != nil {
		telemetry.Logger.Error("Error processing refund",
			zap.String("escrow_account_id", c.Param("id")),
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
