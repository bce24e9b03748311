package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowCreated         EscrowStatus = "CREATED"
	EscrowAwaitingFunds   EscrowStatus = "AWAITING_FUNDS"
	EscrowFundsHeld       EscrowStatus = "FUNDS_HELD"
	EscrowReadyForRelease EscrowStatus = "READY_FOR_RELEASE"
	EscrowReleased        EscrowStatus = "RELEASED"
	EscrowDisputed        EscrowStatus = "DISPUTED"
	EscrowRefunded        EscrowStatus = "REFUNDED"
	EscrowCancelled       EscrowStatus = "CANCELLED"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowCreated:         {EscrowAwaitingFunds, EscrowCancelled},
	EscrowAwaitingFunds:   {EscrowFundsHeld, EscrowCancelled},
	EscrowFundsHeld:       {EscrowReadyForRelease, EscrowDisputed, EscrowCancelled},
	EscrowReadyForRelease: {EscrowReleased, EscrowDisputed},
	EscrowDisputed:        {EscrowRefunded, EscrowReadyForRelease},
}

// Terminal reports whether the escrow status permits no further transitions.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowReleased, EscrowRefunded, EscrowCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the escrow lifecycle permits moving to next.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type LedgerEntryType string

const (
	LedgerDeposit        LedgerEntryType = "DEPOSIT"
	LedgerRelease        LedgerEntryType = "RELEASE"
	LedgerRefund         LedgerEntryType = "REFUND"
	LedgerFee            LedgerEntryType = "FEE"
	LedgerDispute        LedgerEntryType = "DISPUTE"
	LedgerPartialRelease LedgerEntryType = "PARTIAL_RELEASE"
	LedgerPartialRefund  LedgerEntryType = "PARTIAL_REFUND"
)

// LedgerEntry is one immutable money movement inside an escrow account.
// PaymentReference carries the PaymentRecord id that caused the movement and
// is the idempotency anchor for retried settlements; ExternalReference carries
// the gateway's own reference.
type LedgerEntry struct {
	ID                string          `json:"id"`
	Type              LedgerEntryType `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Timestamp         time.Time       `json:"timestamp"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
}

// ReleaseCondition is a named predicate that must hold before funds can be
// released. Conditions are fixed at escrow creation and only the verification
// gate flips IsMet.
type ReleaseCondition struct {
	ID                 string     `json:"id"`
	Description        string     `json:"description"`
	IsMet              bool       `json:"is_met"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	VerificationMethod string     `json:"verification_method,omitempty"`
	Confidence         *float64   `json:"confidence,omitempty"`
}

type EscrowFees struct {
	ServiceFeePercentage decimal.Decimal `json:"service_fee_percentage"`
	ServiceFeeAmount     decimal.Decimal `json:"service_fee_amount"`
	ProcessingFee        decimal.Decimal `json:"processing_fee"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	FeesPaidBy           string          `json:"fees_paid_by"` // buyer, seller
}

// EscrowAccount is the holding pool of funds for exactly one transaction.
// Balance, status and the ledger always commit together in one document
// write, so the account can never be observed in a half-applied state.
type EscrowAccount struct {
	ID                string             `json:"id"`
	TransactionID     string             `json:"transaction_id"`
	Balance           decimal.Decimal    `json:"balance"`
	Currency          string             `json:"currency"`
	Status            EscrowStatus       `json:"status"`
	PaymentMethodID   string             `json:"payment_method_id,omitempty"`
	ReleaseConditions []ReleaseCondition `json:"release_conditions"`
	Ledger            []LedgerEntry      `json:"ledger"`
	Fees              EscrowFees         `json:"fees"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	FundsReceivedAt   *time.Time         `json:"funds_received_at,omitempty"`
	FundsReleasedAt   *time.Time         `json:"funds_released_at,omitempty"`
}

// NewEscrowAccount creates a zero-balance account awaiting funds, deriving
// one release condition per required verification requirement. A transaction
// with no explicit requirements still gets a delivery-proof condition.
func NewEscrowAccount(txn *Transaction, now time.Time) *EscrowAccount {
	acct := &EscrowAccount{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		Balance:       decimal.Zero,
		Currency:      txn.Currency,
		Status:        EscrowAwaitingFunds,
		Fees: EscrowFees{
			ServiceFeePercentage: decimal.RequireFromString("2.5"),
			FeesPaidBy:           "buyer",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, req := range txn.Terms.VerificationRequirements {
		if !req.IsRequired {
			continue
		}
		acct.ReleaseConditions = append(acct.ReleaseConditions, ReleaseCondition{
			ID:                 uuid.NewString(),
			Description:        req.Description,
			VerificationMethod: string(req.Type),
		})
	}
	if len(acct.ReleaseConditions) == 0 {
		acct.ReleaseConditions = []ReleaseCondition{{
			ID:          uuid.NewString(),
			Description: "delivery proof verified",
		}}
	}
	return acct
}

// Clone returns a deep copy so callers can mutate freely before committing.
func (a *EscrowAccount) Clone() *EscrowAccount {
	if a == nil {
		return nil
	}
	clone := *a
	clone.ReleaseConditions = append([]ReleaseCondition(nil), a.ReleaseConditions...)
	clone.Ledger = append([]LedgerEntry(nil), a.Ledger...)
	return &clone
}

// CanRelease reports whether every release condition is met and the account
// still holds funds. Pure; no side effects.
func (a *EscrowAccount) CanRelease() bool {
	if a.Balance.Sign() <= 0 {
		return false
	}
	for _, c := range a.ReleaseConditions {
		if !c.IsMet {
			return false
		}
	}
	return true
}

// TransitionTo moves the account to next, rejecting transitions the escrow
// lifecycle does not permit.
func (a *EscrowAccount) TransitionTo(next EscrowStatus, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: escrow %s cannot move %s -> %s", ErrInvalidStateTransition, a.ID, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

func (a *EscrowAccount) appendEntry(entryType LedgerEntryType, amount decimal.Decimal, description, paymentRef, externalRef string, now time.Time) (*LedgerEntry, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: ledger amount must be positive", ErrValidation)
	}
	entry := LedgerEntry{
		ID:                uuid.NewString(),
		Type:              entryType,
		Amount:            amount,
		Description:       description,
		Timestamp:         now,
		PaymentReference:  paymentRef,
		ExternalReference: externalRef,
	}
	a.Ledger = append(a.Ledger, entry)
	a.UpdatedAt = now
	return &a.Ledger[len(a.Ledger)-1], nil
}

// ApplyDeposit credits the account and moves it into FundsHeld once the full
// transaction amount is covered; smaller deposits leave it AwaitingFunds.
func (a *EscrowAccount) ApplyDeposit(amount, expectedTotal decimal.Decimal, paymentRef, externalRef string, now time.Time) error {
	if a.Status != EscrowAwaitingFunds {
		return fmt.Errorf("%w: escrow %s cannot accept deposits in status %s", ErrInvalidStateTransition, a.ID, a.Status)
	}
	if _, err := a.appendEntry(LedgerDeposit, amount, "buyer deposit into escrow", paymentRef, externalRef, now); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	if a.Balance.GreaterThanOrEqual(expectedTotal) {
		received := now
		a.FundsReceivedAt = &received
		return a.TransitionTo(EscrowFundsHeld, now)
	}
	return nil
}

// ApplyFee deducts a fee from the held balance. Only used when the fee policy
// charges the seller side out of escrow.
func (a *EscrowAccount) ApplyFee(amount decimal.Decimal, description, paymentRef string, now time.Time) error {
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: fee %s exceeds balance %s", ErrInsufficientFunds, amount, a.Balance)
	}
	if _, err := a.appendEntry(LedgerFee, amount, description, paymentRef, "", now); err != nil {
		return err
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// ApplyRelease debits the account toward the seller. Draining the balance to
// zero forces the terminal Released state and stamps the release time.
func (a *EscrowAccount) ApplyRelease(amount decimal.Decimal, paymentRef, externalRef string, now time.Time) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: escrow %s already %s", ErrInvalidStateTransition, a.ID, a.Status)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: release %s exceeds balance %s", ErrInsufficientFunds, amount, a.Balance)
	}
	full := a.Balance.Equal(amount)
	entryType := LedgerPartialRelease
	if full {
		entryType = LedgerRelease
	}
	if _, err := a.appendEntry(entryType, amount, "funds released to seller", paymentRef, externalRef, now); err != nil {
		return err
	}
	a.Balance = a.Balance.Sub(amount)
	if full {
		if a.Status != EscrowReadyForRelease {
			if err := a.TransitionTo(EscrowReadyForRelease, now); err != nil {
				return err
			}
		}
		released := now
		a.FundsReleasedAt = &released
		return a.TransitionTo(EscrowReleased, now)
	}
	return nil
}

// ApplyRefund debits the account back toward the buyer. Draining the balance
// to zero forces the terminal Refunded state; a full refund is only legal
// once the account is Disputed.
func (a *EscrowAccount) ApplyRefund(amount decimal.Decimal, reason, paymentRef, externalRef string, now time.Time) error {
	if a.Status == EscrowReleased || a.Status == EscrowRefunded || a.Status == EscrowCancelled {
		return fmt.Errorf("%w: escrow %s already %s", ErrInvalidStateTransition, a.ID, a.Status)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: refund %s exceeds balance %s", ErrInsufficientFunds, amount, a.Balance)
	}
	full := a.Balance.Equal(amount)
	if full && a.Status != EscrowDisputed {
		return fmt.Errorf("%w: full refund requires a disputed escrow, not %s", ErrInvalidStateTransition, a.Status)
	}
	entryType := LedgerPartialRefund
	if full {
		entryType = LedgerRefund
	}
	description := "refund to buyer"
	if reason != "" {
		description = "refund to buyer: " + reason
	}
	if _, err := a.appendEntry(entryType, amount, description, paymentRef, externalRef, now); err != nil {
		return err
	}
	a.Balance = a.Balance.Sub(amount)
	if full {
		return a.TransitionTo(EscrowRefunded, now)
	}
	return nil
}

// RecordDispute freezes the account under dispute and writes an audit entry
// for the amount in contention. Dispute entries do not move money.
func (a *EscrowAccount) RecordDispute(reason string, now time.Time) error {
	if err := a.TransitionTo(EscrowDisputed, now); err != nil {
		return err
	}
	_, err := a.appendEntry(LedgerDispute, a.Balance, "funds frozen pending dispute: "+reason, "", "", now)
	return err
}

// MarkConditionsMet flips every unmet condition matching the verification
// method (all unmet conditions when method is empty) and returns how many
// were updated.
func (a *EscrowAccount) MarkConditionsMet(method string, confidence float64, now time.Time) int {
	updated := 0
	for i := range a.ReleaseConditions {
		c := &a.ReleaseConditions[i]
		if c.IsMet {
			continue
		}
		if method != "" && c.VerificationMethod != "" && c.VerificationMethod != method {
			continue
		}
		verified := now
		score := confidence
		c.IsMet = true
		c.VerifiedAt = &verified
		c.Confidence = &score
		if c.VerificationMethod == "" {
			c.VerificationMethod = method
		}
		updated++
	}
	if updated > 0 {
		a.UpdatedAt = now
	}
	return updated
}

// EntryForPayment returns the ledger entry recorded for the given payment
// record, if any. Settlement retries use this to guarantee at-most-one ledger
// effect per operation id.
func (a *EscrowAccount) EntryForPayment(paymentRef string) *LedgerEntry {
	if paymentRef == "" {
		return nil
	}
	for i := range a.Ledger {
		if a.Ledger[i].PaymentReference == paymentRef {
			return &a.Ledger[i]
		}
	}
	return nil
}

// HasEntryForPayment reports whether the ledger already contains a money
// movement for the given payment record.
func (a *EscrowAccount) HasEntryForPayment(paymentRef string) bool {
	return a.EntryForPayment(paymentRef) != nil
}

// ReconciledBalance recomputes the balance from the ledger alone:
// deposits minus releases, refunds and fees. Dispute entries are audit-only.
func (a *EscrowAccount) ReconciledBalance() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range a.Ledger {
		switch entry.Type {
		case LedgerDeposit:
			total = total.Add(entry.Amount)
		case LedgerRelease, LedgerPartialRelease, LedgerRefund, LedgerPartialRefund, LedgerFee:
			total = total.Sub(entry.Amount)
		}
	}
	return total
}
