package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paypledge/settlement/internal/handlers"
	"github.com/paypledge/settlement/internal/repository"
	"github.com/paypledge/settlement/internal/service"
	"github.com/paypledge/settlement/internal/telemetry"
)

func NewRouter(stores *repository.Stores, txns *service.TransactionService, orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.Middleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "settlement-engine"})
	})

	txnHandler := handlers.NewTransactionHandler(txns, orchestrator)
	r.POST("/transactions", txnHandler.CreateTransaction)
	r.GET("/transactions/:id", txnHandler.GetTransaction)
	r.POST("/transactions/:id/deposit", txnHandler.Deposit)
	r.POST("/transactions/:id/start", txnHandler.StartWork)
	r.POST("/transactions/:id/proofs", txnHandler.SubmitProof)
	r.POST("/transactions/:id/dispute", txnHandler.Dispute)
	r.POST("/transactions/:id/cancel", txnHandler.Cancel)

	escrowHandler := handlers.NewEscrowHandler(stores, orchestrator)
	r.GET("/escrow/:id", escrowHandler.GetEscrowAccount)
	r.POST("/escrow/:id/release", escrowHandler.Release)
	r.POST("/escrow/:id/refund", escrowHandler.Refund)

	methodHandler := handlers.NewPaymentMethodHandler(stores)
	r.POST("/payment-methods", methodHandler.Register)
	r.GET("/payment-methods/:id", methodHandler.GetPaymentMethod)

	return r
}
