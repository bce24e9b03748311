package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestAccount(t *testing.T) *EscrowAccount {
	t.Helper()
	txn, err := NewTransaction("buyer-1", "seller-1", "camera sale", amt("100"), "USD", TransactionTerms{
		VerificationRequirements: []VerificationRequirement{
			{Type: VerificationPhoto, Description: "photo of delivered item", IsRequired: true},
		},
	}, testNow)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return NewEscrowAccount(txn, testNow)
}

func fundedAccount(t *testing.T) *EscrowAccount {
	t.Helper()
	acct := newTestAccount(t)
	if err := acct.ApplyDeposit(amt("100"), amt("100"), "pay-1", "gw-1", testNow); err != nil {
		t.Fatalf("ApplyDeposit: %v", err)
	}
	return acct
}

func TestNewEscrowAccountDerivesConditions(t *testing.T) {
	acct := newTestAccount(t)
	if acct.Status != EscrowAwaitingFunds {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowAwaitingFunds)
	}
	if len(acct.ReleaseConditions) != 1 {
		t.Fatalf("conditions = %d, want 1", len(acct.ReleaseConditions))
	}
	if acct.ReleaseConditions[0].VerificationMethod != string(VerificationPhoto) {
		t.Fatalf("condition method = %q", acct.ReleaseConditions[0].VerificationMethod)
	}

	txn, err := NewTransaction("buyer-1", "seller-1", "bare deal", amt("50"), "USD", TransactionTerms{}, testNow)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	bare := NewEscrowAccount(txn, testNow)
	if len(bare.ReleaseConditions) != 1 {
		t.Fatalf("fallback conditions = %d, want 1", len(bare.ReleaseConditions))
	}
}

func TestEscrowTransitions(t *testing.T) {
	cases := []struct {
		name string
		from EscrowStatus
		to   EscrowStatus
		ok   bool
	}{
		{"created to awaiting", EscrowCreated, EscrowAwaitingFunds, true},
		{"awaiting to held", EscrowAwaitingFunds, EscrowFundsHeld, true},
		{"held to ready", EscrowFundsHeld, EscrowReadyForRelease, true},
		{"ready to released", EscrowReadyForRelease, EscrowReleased, true},
		{"held to disputed", EscrowFundsHeld, EscrowDisputed, true},
		{"disputed to refunded", EscrowDisputed, EscrowRefunded, true},
		{"disputed to ready", EscrowDisputed, EscrowReadyForRelease, true},
		{"awaiting to cancelled", EscrowAwaitingFunds, EscrowCancelled, true},
		{"held to cancelled", EscrowFundsHeld, EscrowCancelled, true},
		{"awaiting to released", EscrowAwaitingFunds, EscrowReleased, false},
		{"released is terminal", EscrowReleased, EscrowDisputed, false},
		{"refunded is terminal", EscrowRefunded, EscrowFundsHeld, false},
		{"cancelled is terminal", EscrowCancelled, EscrowAwaitingFunds, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct := newTestAccount(t)
			acct.Status = tc.from
			err := acct.TransitionTo(tc.to, testNow)
			if tc.ok && err != nil {
				t.Fatalf("TransitionTo(%s): %v", tc.to, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("TransitionTo(%s): expected error", tc.to)
				}
				if !errors.Is(err, ErrInvalidStateTransition) {
					t.Fatalf("error = %v, want ErrInvalidStateTransition", err)
				}
			}
		})
	}
}

func TestApplyDepositPartialThenFull(t *testing.T) {
	acct := newTestAccount(t)

	if err := acct.ApplyDeposit(amt("40"), amt("100"), "pay-1", "gw-1", testNow); err != nil {
		t.Fatalf("partial deposit: %v", err)
	}
	if acct.Status != EscrowAwaitingFunds {
		t.Fatalf("status after partial = %s", acct.Status)
	}
	if !acct.Balance.Equal(amt("40")) {
		t.Fatalf("balance = %s, want 40", acct.Balance)
	}

	if err := acct.ApplyDeposit(amt("60"), amt("100"), "pay-2", "gw-2", testNow); err != nil {
		t.Fatalf("final deposit: %v", err)
	}
	if acct.Status != EscrowFundsHeld {
		t.Fatalf("status after full = %s, want %s", acct.Status, EscrowFundsHeld)
	}
	if acct.FundsReceivedAt == nil {
		t.Fatal("FundsReceivedAt not stamped")
	}
	if !acct.Balance.Equal(acct.ReconciledBalance()) {
		t.Fatalf("balance %s != reconciled %s", acct.Balance, acct.ReconciledBalance())
	}

	if err := acct.ApplyDeposit(amt("10"), amt("100"), "pay-3", "gw-3", testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("deposit after FundsHeld = %v, want ErrInvalidStateTransition", err)
	}
}

func TestApplyDepositRejectsNonPositive(t *testing.T) {
	acct := newTestAccount(t)
	if err := acct.ApplyDeposit(decimal.Zero, amt("100"), "pay-1", "", testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero deposit = %v, want ErrValidation", err)
	}
	if len(acct.Ledger) != 0 {
		t.Fatalf("ledger grew on rejected deposit")
	}
}

func TestCanRelease(t *testing.T) {
	acct := fundedAccount(t)
	if acct.CanRelease() {
		t.Fatal("CanRelease with unmet conditions")
	}
	acct.MarkConditionsMet(string(VerificationPhoto), 0.95, testNow)
	if !acct.CanRelease() {
		t.Fatal("CanRelease false with met conditions and funds held")
	}
	acct.Balance = decimal.Zero
	if acct.CanRelease() {
		t.Fatal("CanRelease with zero balance")
	}
}

func TestApplyReleaseFullDrain(t *testing.T) {
	acct := fundedAccount(t)
	acct.MarkConditionsMet("", 0.9, testNow)

	if err := acct.ApplyRelease(amt("100"), "pay-r", "gw-r", testNow); err != nil {
		t.Fatalf("ApplyRelease: %v", err)
	}
	if acct.Status != EscrowReleased {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowReleased)
	}
	if !acct.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", acct.Balance)
	}
	if acct.FundsReleasedAt == nil {
		t.Fatal("FundsReleasedAt not stamped")
	}
	if !acct.ReconciledBalance().IsZero() {
		t.Fatalf("reconciled = %s, want 0", acct.ReconciledBalance())
	}

	if err := acct.ApplyRelease(amt("1"), "pay-r2", "", testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("release after Released = %v, want ErrInvalidStateTransition", err)
	}
}

func TestApplyReleasePartialKeepsStatus(t *testing.T) {
	acct := fundedAccount(t)
	if err := acct.ApplyRelease(amt("30"), "pay-r", "gw-r", testNow); err != nil {
		t.Fatalf("partial release: %v", err)
	}
	if acct.Status != EscrowFundsHeld {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowFundsHeld)
	}
	if !acct.Balance.Equal(amt("70")) {
		t.Fatalf("balance = %s, want 70", acct.Balance)
	}
	if !acct.Balance.Equal(acct.ReconciledBalance()) {
		t.Fatalf("balance %s != reconciled %s", acct.Balance, acct.ReconciledBalance())
	}
}

func TestApplyReleaseOverdraw(t *testing.T) {
	acct := fundedAccount(t)
	if err := acct.ApplyRelease(amt("150"), "pay-r", "", testNow); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw = %v, want ErrInsufficientFunds", err)
	}
	if !acct.Balance.Equal(amt("100")) {
		t.Fatalf("balance changed on rejected release: %s", acct.Balance)
	}
}

func TestApplyRefundFullRequiresDispute(t *testing.T) {
	acct := fundedAccount(t)
	if err := acct.ApplyRefund(amt("100"), "no show", "pay-f", "", testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("full refund without dispute = %v, want ErrInvalidStateTransition", err)
	}

	if err := acct.RecordDispute("item not delivered", testNow); err != nil {
		t.Fatalf("RecordDispute: %v", err)
	}
	if err := acct.ApplyRefund(amt("100"), "item not delivered", "pay-f", "gw-f", testNow); err != nil {
		t.Fatalf("full refund after dispute: %v", err)
	}
	if acct.Status != EscrowRefunded {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowRefunded)
	}
	if !acct.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", acct.Balance)
	}
}

func TestApplyRefundPartial(t *testing.T) {
	acct := fundedAccount(t)
	if err := acct.ApplyRefund(amt("25"), "late delivery", "pay-f", "", testNow); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if acct.Status != EscrowFundsHeld {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowFundsHeld)
	}
	if !acct.Balance.Equal(amt("75")) {
		t.Fatalf("balance = %s, want 75", acct.Balance)
	}
}

func TestRecordDisputeIsAuditOnly(t *testing.T) {
	acct := fundedAccount(t)
	before := acct.ReconciledBalance()

	if err := acct.RecordDispute("quality issue", testNow); err != nil {
		t.Fatalf("RecordDispute: %v", err)
	}
	if acct.Status != EscrowDisputed {
		t.Fatalf("status = %s, want %s", acct.Status, EscrowDisputed)
	}
	if !acct.Balance.Equal(amt("100")) {
		t.Fatalf("balance moved on dispute: %s", acct.Balance)
	}
	if !acct.ReconciledBalance().Equal(before) {
		t.Fatalf("reconciled moved on dispute: %s", acct.ReconciledBalance())
	}
}

func TestMarkConditionsMetByMethod(t *testing.T) {
	txn, err := NewTransaction("buyer-1", "seller-1", "two-step deal", amt("100"), "USD", TransactionTerms{
		VerificationRequirements: []VerificationRequirement{
			{Type: VerificationPhoto, Description: "photo proof", IsRequired: true},
			{Type: VerificationSignature, Description: "signed receipt", IsRequired: true},
		},
	}, testNow)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	acct := NewEscrowAccount(txn, testNow)

	if got := acct.MarkConditionsMet(string(VerificationPhoto), 0.8, testNow); got != 1 {
		t.Fatalf("updated = %d, want 1", got)
	}
	if acct.CanRelease() {
		t.Fatal("CanRelease with one condition still unmet")
	}
	// Marking the same method again is a no-op.
	if got := acct.MarkConditionsMet(string(VerificationPhoto), 0.8, testNow); got != 0 {
		t.Fatalf("repeat update = %d, want 0", got)
	}
	if got := acct.MarkConditionsMet(string(VerificationSignature), 0.9, testNow); got != 1 {
		t.Fatalf("updated = %d, want 1", got)
	}
}

func TestEntryForPayment(t *testing.T) {
	acct := fundedAccount(t)
	if !acct.HasEntryForPayment("pay-1") {
		t.Fatal("missing entry for pay-1")
	}
	if acct.HasEntryForPayment("pay-unknown") {
		t.Fatal("unexpected entry for pay-unknown")
	}
	if acct.EntryForPayment("") != nil {
		t.Fatal("empty reference must not match")
	}
	entry := acct.EntryForPayment("pay-1")
	if entry.Type != LedgerDeposit || !entry.Amount.Equal(amt("100")) {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestCloneIsDeep(t *testing.T) {
	acct := fundedAccount(t)
	clone := acct.Clone()
	clone.Ledger[0].Amount = amt("1")
	clone.ReleaseConditions[0].IsMet = true

	if acct.Ledger[0].Amount.Equal(amt("1")) {
		t.Fatal("ledger shared between clone and original")
	}
	if acct.ReleaseConditions[0].IsMet {
		t.Fatal("conditions shared between clone and original")
	}
}
