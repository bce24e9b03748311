// Package fees computes the fee breakdown for a settlement amount. The
// calculator is pure: same amount and method type always produce the same
// breakdown, and all figures are rounded with banker's rounding to two
// decimal places so that totals reconcile exactly with ledger sums.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paypledge/settlement/internal/models"
)

// processingRates keys the gateway processing rate by payment method type.
var processingRates = map[models.PaymentMethodType]decimal.Decimal{
	models.MethodCreditCard:   decimal.RequireFromString("0.029"),
	models.MethodDebitCard:    decimal.RequireFromString("0.025"),
	models.MethodBankTransfer: decimal.RequireFromString("0.01"),
	models.MethodPayPal:       decimal.RequireFromString("0.034"),
	models.MethodWallet:       decimal.RequireFromString("0.029"),
}

// platformRate is the flat service fee the platform charges on every deposit.
var platformRate = decimal.RequireFromString("0.025")

var defaultProcessingRate = decimal.RequireFromString("0.029")

// Calculate returns the processing and platform fee for the given amount and
// payment method type.
func Calculate(amount decimal.Decimal, methodType models.PaymentMethodType) (models.PaymentFees, error) {
	if amount.Sign() <= 0 {
		return models.PaymentFees{}, fmt.Errorf("%w: fee amount must be positive", models.ErrValidation)
	}
	rate, ok := processingRates[methodType]
	if !ok {
		rate = defaultProcessingRate
	}
	processing := amount.Mul(rate).RoundBank(2)
	platform := amount.Mul(platformRate).RoundBank(2)
	return models.PaymentFees{
		ProcessingFee: processing,
		PlatformFee:   platform,
		TotalFees:     processing.Add(platform),
		Breakdown: map[string]decimal.Decimal{
			"processing": processing,
			"platform":   platform,
		},
	}, nil
}

// PlatformRatePercent exposes the platform rate as a percentage figure for
// escrow fee metadata.
func PlatformRatePercent() decimal.Decimal {
	return platformRate.Mul(decimal.NewFromInt(100))
}
