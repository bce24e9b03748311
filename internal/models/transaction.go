package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionCreated         TransactionStatus = "CREATED"
	TransactionAwaitingPayment TransactionStatus = "AWAITING_PAYMENT"
	TransactionPaymentReceived TransactionStatus = "PAYMENT_RECEIVED"
	TransactionInProgress      TransactionStatus = "IN_PROGRESS"
	TransactionAwaitingProof   TransactionStatus = "AWAITING_PROOF"
	TransactionUnderReview     TransactionStatus = "UNDER_REVIEW"
	TransactionCompleted       TransactionStatus = "COMPLETED"
	TransactionDisputed        TransactionStatus = "DISPUTED"
	TransactionCancelled       TransactionStatus = "CANCELLED"
	TransactionRefunded        TransactionStatus = "REFUNDED"
)

// transactionTransitions is the full deal lifecycle. Cancellation appears for
// every non-terminal state; the service additionally rejects cancellation once
// funds have been captured.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionCreated:         {TransactionAwaitingPayment, TransactionCancelled},
	TransactionAwaitingPayment: {TransactionPaymentReceived, TransactionCancelled},
	TransactionPaymentReceived: {TransactionInProgress, TransactionDisputed, TransactionCancelled},
	TransactionInProgress:      {TransactionAwaitingProof, TransactionDisputed, TransactionCancelled},
	TransactionAwaitingProof:   {TransactionUnderReview, TransactionDisputed, TransactionCancelled},
	TransactionUnderReview:     {TransactionCompleted, TransactionDisputed, TransactionCancelled},
	TransactionDisputed:        {TransactionRefunded, TransactionCompleted},
}

// Terminal reports whether the status permits no further transitions.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionCompleted, TransactionCancelled, TransactionRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type VerificationType string

const (
	VerificationPhoto     VerificationType = "PHOTO"
	VerificationVideo     VerificationType = "VIDEO"
	VerificationDocument  VerificationType = "DOCUMENT"
	VerificationReceipt   VerificationType = "RECEIPT"
	VerificationSignature VerificationType = "SIGNATURE"
	VerificationLocation  VerificationType = "LOCATION"
	VerificationTimestamp VerificationType = "TIMESTAMP"
)

type VerificationRequirement struct {
	Type        VerificationType `json:"type"`
	Description string           `json:"description"`
	IsRequired  bool             `json:"is_required"`
}

type TransactionTerms struct {
	DeliveryRequirements     []string                  `json:"delivery_requirements,omitempty"`
	QualityStandards         []string                  `json:"quality_standards,omitempty"`
	VerificationRequirements []VerificationRequirement `json:"verification_requirements,omitempty"`
	TimeoutHours             int                       `json:"timeout_hours"`
	AllowPartialRefund       bool                      `json:"allow_partial_refund"`
	RequiresSignature        bool                      `json:"requires_signature"`
	CustomTerms              string                    `json:"custom_terms,omitempty"`
}

// Transaction is the overall buyer/seller deal, one level above the escrow
// account that holds its funds.
type Transaction struct {
	ID                   string            `json:"id"`
	BuyerID              string            `json:"buyer_id"`
	SellerID             string            `json:"seller_id"`
	Title                string            `json:"title"`
	Description          string            `json:"description,omitempty"`
	Amount               decimal.Decimal   `json:"amount"`
	Currency             string            `json:"currency"`
	Status               TransactionStatus `json:"status"`
	Terms                TransactionTerms  `json:"terms"`
	EscrowAccountID      string            `json:"escrow_account_id,omitempty"`
	ProofSubmissionIDs   []string          `json:"proof_submission_ids,omitempty"`
	DisputeReason        string            `json:"dispute_reason,omitempty"`
	RefundAmount         *decimal.Decimal  `json:"refund_amount,omitempty"`
	ExpectedDeliveryDate *time.Time        `json:"expected_delivery_date,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

// NewTransaction builds a transaction in the Created state.
func NewTransaction(buyerID, sellerID, title string, amount decimal.Decimal, currency string, terms TransactionTerms, now time.Time) (*Transaction, error) {
	if buyerID == "" || sellerID == "" {
		return nil, fmt.Errorf("%w: buyer and seller are required", ErrValidation)
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrValidation)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if currency == "" {
		currency = "USD"
	}
	if terms.TimeoutHours <= 0 {
		terms.TimeoutHours = 72
	}
	return &Transaction{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Title:     title,
		Amount:    amount,
		Currency:  currency,
		Status:    TransactionCreated,
		Terms:     terms,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo moves the transaction to next, rejecting transitions the
// lifecycle does not permit. The receiver is unchanged on error.
func (t *Transaction) TransitionTo(next TransactionStatus, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: transaction %s cannot move %s -> %s", ErrInvalidStateTransition, t.ID, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = now
	if next == TransactionCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}
