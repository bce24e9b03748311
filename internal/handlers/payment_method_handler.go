package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paypledge/settlement/internal/models"
	"github.com/paypledge/settlement/internal/repository"
)

type PaymentMethodHandler struct {
	stores *repository.Stores
}

func NewPaymentMethodHandler(stores *repository.Stores) *PaymentMethodHandler {
	return &PaymentMethodHandler{stores: stores}
}

type registerMethodRequest struct {
	UserID     string                      `json:"user_id"`
	MethodType models.PaymentMethodType    `json:"method_type"`
	Details    models.PaymentMethodDetails `json:"details"`
	IsDefault  bool                        `json:"is_default"`
}

func (h *PaymentMethodHandler) Register(c *gin.Context) {
	var req registerMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	method := &models.PaymentMethod{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		MethodType: req.MethodType,
		Details:    req.Details,
		IsDefault:  req.IsDefault,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := method.Validate(); err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.stores.PutPaymentMethod(c.Request.Context(), method, 0); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, method)
}

func (h *PaymentMethodHandler) GetPaymentMethod(c *gin.Context) {
	method, _, err := h.stores.GetPaymentMethod(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, method)
}
