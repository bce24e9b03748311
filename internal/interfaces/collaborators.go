// Package interfaces defines the contracts between the settlement engine and
// its external collaborators: the document store, the payment gateway, the
// proof verifier and the per-account locker.
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/paypledge/settlement/internal/models"
)

// Document is one versioned JSON document in the store. Version increments on
// every successful put and is the optimistic-concurrency token.
type Document struct {
	ID      string
	Kind    string
	Version int64
	Data    json.RawMessage
}

// DocumentStore is the persistence collaborator. Every entity read/write
// round-trips through it. Put with a stale expectedVersion fails with
// models.ErrConcurrencyConflict and must be retried from a fresh read;
// expectedVersion 0 inserts a new document.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc *Document, expectedVersion int64) (int64, error)
	Query(ctx context.Context, kind string, match func(json.RawMessage) bool) ([]Document, error)
}

// GatewayResult is the closed result shape of a gateway call. Only the fields
// the engine actually inspects are part of the contract.
type GatewayResult struct {
	Success       bool
	Reference     string
	FailureReason string
}

// Gateway is the external payment processor. Calls are at-most-once on the
// gateway side keyed by idempotencyKey; latency and failure are
// non-deterministic from the engine's point of view.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, currency, methodRef, idempotencyKey string) (GatewayResult, error)
	Payout(ctx context.Context, amount decimal.Decimal, currency, destination, idempotencyKey string) (GatewayResult, error)
}

// Verifier is the black-box judge for delivery proofs.
type Verifier interface {
	Judge(ctx context.Context, proof *models.ProofSubmission, requirements []models.VerificationRequirement) (*models.VerificationResult, error)
}

// Locker serializes settlement operations per escrow account. Acquire blocks
// briefly while contended and returns the release function on success.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
