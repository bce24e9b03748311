package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentCancelled         PaymentStatus = "CANCELLED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentDisputed          PaymentStatus = "DISPUTED"
	PaymentChargedBack       PaymentStatus = "CHARGED_BACK"
)

type PaymentType string

const (
	PaymentTypeDeposit    PaymentType = "DEPOSIT"
	PaymentTypeRelease    PaymentType = "RELEASE"
	PaymentTypeRefund     PaymentType = "REFUND"
	PaymentTypeFee        PaymentType = "FEE"
	PaymentTypeChargeback PaymentType = "CHARGEBACK"
)

// PaymentFees is the breakdown produced by the fee calculator for a single
// settlement attempt.
type PaymentFees struct {
	ProcessingFee decimal.Decimal            `json:"processing_fee"`
	PlatformFee   decimal.Decimal            `json:"platform_fee"`
	TotalFees     decimal.Decimal            `json:"total_fees"`
	Breakdown     map[string]decimal.Decimal `json:"breakdown,omitempty"`
}

// PaymentRecord is the write-once audit artifact for one settlement attempt.
// Its id doubles as the gateway idempotency key, so a retried operation can
// only ever land one ledger entry. After creation only the terminal status
// fields change.
type PaymentRecord struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	EscrowAccountID  string          `json:"escrow_account_id,omitempty"`
	PaymentMethodID  string          `json:"payment_method_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	PaymentType      PaymentType     `json:"payment_type"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	Fees             PaymentFees     `json:"fees"`
	CreatedAt        time.Time       `json:"created_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

// MarkCompleted stamps the record with the gateway outcome.
func (r *PaymentRecord) MarkCompleted(gatewayRef string, now time.Time) {
	r.Status = PaymentCompleted
	r.GatewayReference = gatewayRef
	r.FailureReason = ""
	processed := now
	r.ProcessedAt = &processed
}

// MarkFailed stamps the record with the gateway failure reason.
func (r *PaymentRecord) MarkFailed(reason string, now time.Time) {
	r.Status = PaymentFailed
	r.FailureReason = reason
	processed := now
	r.ProcessedAt = &processed
}

type PaymentMethodType string

const (
	MethodCreditCard   PaymentMethodType = "CREDIT_CARD"
	MethodDebitCard    PaymentMethodType = "DEBIT_CARD"
	MethodBankTransfer PaymentMethodType = "BANK_TRANSFER"
	MethodPayPal       PaymentMethodType = "PAYPAL"
	MethodWallet       PaymentMethodType = "WALLET"
)

type CardDetails struct {
	Last4       string `json:"last4"`
	Brand       string `json:"brand"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	HolderName  string `json:"holder_name"`
}

type BankDetails struct {
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number"`
	AccountType   string `json:"account_type"`
	BankName      string `json:"bank_name"`
}

type WalletDetails struct {
	WalletType string `json:"wallet_type"`
	WalletID   string `json:"wallet_id"`
	Email      string `json:"email,omitempty"`
}

// PaymentMethodDetails is a tagged variant: exactly one of Card, Bank or
// Wallet is set, matching MethodType.
type PaymentMethodDetails struct {
	Card   *CardDetails   `json:"card,omitempty"`
	Bank   *BankDetails   `json:"bank,omitempty"`
	Wallet *WalletDetails `json:"wallet,omitempty"`
}

type PaymentMethod struct {
	ID         string               `json:"id"`
	UserID     string               `json:"user_id"`
	MethodType PaymentMethodType    `json:"method_type"`
	Details    PaymentMethodDetails `json:"details"`
	IsDefault  bool                 `json:"is_default"`
	IsActive   bool                 `json:"is_active"`
	CreatedAt  time.Time            `json:"created_at"`
	LastUsedAt *time.Time           `json:"last_used_at,omitempty"`
}

// Validate checks that the variant payload matches the declared method type.
func (m *PaymentMethod) Validate() error {
	switch m.MethodType {
	case MethodCreditCard, MethodDebitCard:
		if m.Details.Card == nil {
			return fmt.Errorf("%w: card details required for %s", ErrValidation, m.MethodType)
		}
	case MethodBankTransfer:
		if m.Details.Bank == nil {
			return fmt.Errorf("%w: bank details required for %s", ErrValidation, m.MethodType)
		}
	case MethodPayPal, MethodWallet:
		if m.Details.Wallet == nil {
			return fmt.Errorf("%w: wallet details required for %s", ErrValidation, m.MethodType)
		}
	default:
		return fmt.Errorf("%w: unknown payment method type %s", ErrValidation, m.MethodType)
	}
	return nil
}
