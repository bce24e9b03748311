// Package gateway provides payment gateway adapters. Real processor
// integrations live outside this repository; the sandbox adapter here is a
// deterministic stand-in with the same idempotency contract.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/models"
)

// Sandbox approves every charge and payout, remembering idempotency keys so a
// retried call returns the original reference instead of moving money twice.
type Sandbox struct {
	mu   sync.Mutex
	seen map[string]interfaces.GatewayResult
}

func NewSandbox() *Sandbox {
	return &Sandbox{seen: make(map[string]interfaces.GatewayResult)}
}

func (g *Sandbox) Charge(ctx context.Context, amount decimal.Decimal, currency, methodRef, idempotencyKey string) (interfaces.GatewayResult, error) {
	return g.process("charge", amount, idempotencyKey)
}

func (g *Sandbox) Payout(ctx context.Context, amount decimal.Decimal, currency, destination, idempotencyKey string) (interfaces.GatewayResult, error) {
	return g.process("payout", amount, idempotencyKey)
}

func (g *Sandbox) process(kind string, amount decimal.Decimal, idempotencyKey string) (interfaces.GatewayResult, error) {
	if amount.Sign() <= 0 {
		return interfaces.GatewayResult{}, fmt.Errorf("%w: %s amount must be positive", models.ErrValidation, kind)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.seen[idempotencyKey]; ok && idempotencyKey != "" {
		return prior, nil
	}
	result := interfaces.GatewayResult{
		Success:   true,
		Reference: fmt.Sprintf("sandbox_%s_%s", kind, uuid.NewString()),
	}
	if idempotencyKey != "" {
		g.seen[idempotencyKey] = result
	}
	return result, nil
}
