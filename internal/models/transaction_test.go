package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewTransactionValidation(t *testing.T) {
	cases := []struct {
		name     string
		buyer    string
		seller   string
		amount   decimal.Decimal
		wantErr  bool
	}{
		{"valid", "buyer-1", "seller-1", amt("100"), false},
		{"missing buyer", "", "seller-1", amt("100"), true},
		{"missing seller", "buyer-1", "", amt("100"), true},
		{"same party", "user-1", "user-1", amt("100"), true},
		{"zero amount", "buyer-1", "seller-1", decimal.Zero, true},
		{"negative amount", "buyer-1", "seller-1", amt("-5"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txn, err := NewTransaction(tc.buyer, tc.seller, "deal", tc.amount, "USD", TransactionTerms{}, testNow)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransaction: %v", err)
			}
			if txn.Status != TransactionCreated {
				t.Fatalf("status = %s, want %s", txn.Status, TransactionCreated)
			}
		})
	}
}

func TestNewTransactionDefaults(t *testing.T) {
	txn, err := NewTransaction("buyer-1", "seller-1", "deal", amt("100"), "", TransactionTerms{}, testNow)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if txn.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", txn.Currency)
	}
	if txn.Terms.TimeoutHours != 72 {
		t.Fatalf("timeout = %d, want 72", txn.Terms.TimeoutHours)
	}
}

func TestTransactionTransitions(t *testing.T) {
	cases := []struct {
		name string
		from TransactionStatus
		to   TransactionStatus
		ok   bool
	}{
		{"created to awaiting payment", TransactionCreated, TransactionAwaitingPayment, true},
		{"awaiting payment to received", TransactionAwaitingPayment, TransactionPaymentReceived, true},
		{"received to in progress", TransactionPaymentReceived, TransactionInProgress, true},
		{"in progress to awaiting proof", TransactionInProgress, TransactionAwaitingProof, true},
		{"awaiting proof to review", TransactionAwaitingProof, TransactionUnderReview, true},
		{"review to completed", TransactionUnderReview, TransactionCompleted, true},
		{"review to disputed", TransactionUnderReview, TransactionDisputed, true},
		{"disputed to refunded", TransactionDisputed, TransactionRefunded, true},
		{"disputed to completed", TransactionDisputed, TransactionCompleted, true},
		{"created to cancelled", TransactionCreated, TransactionCancelled, true},
		{"in progress to cancelled", TransactionInProgress, TransactionCancelled, true},
		{"created to completed", TransactionCreated, TransactionCompleted, false},
		{"completed is terminal", TransactionCompleted, TransactionDisputed, false},
		{"refunded is terminal", TransactionRefunded, TransactionInProgress, false},
		{"cancelled is terminal", TransactionCancelled, TransactionAwaitingPayment, false},
		{"no skipping to review", TransactionPaymentReceived, TransactionUnderReview, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txn, err := NewTransaction("buyer-1", "seller-1", "deal", amt("100"), "USD", TransactionTerms{}, testNow)
			if err != nil {
				t.Fatalf("NewTransaction: %v", err)
			}
			txn.Status = tc.from
			err = txn.TransitionTo(tc.to, testNow)
			if tc.ok && err != nil {
				t.Fatalf("TransitionTo(%s): %v", tc.to, err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidStateTransition) {
					t.Fatalf("error = %v, want ErrInvalidStateTransition", err)
				}
				if txn.Status != tc.from {
					t.Fatalf("status mutated on rejected transition: %s", txn.Status)
				}
			}
		})
	}
}

func TestTransitionToCompletedStampsTime(t *testing.T) {
	txn, err := NewTransaction("buyer-1", "seller-1", "deal", amt("100"), "USD", TransactionTerms{}, testNow)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	txn.Status = TransactionUnderReview
	if err := txn.TransitionTo(TransactionCompleted, testNow); err != nil {
		t.Fatalf("TransitionTo: %v", err)
	}
	if txn.CompletedAt == nil || !txn.CompletedAt.Equal(testNow) {
		t.Fatalf("CompletedAt = %v, want %v", txn.CompletedAt, testNow)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []TransactionStatus{TransactionCompleted, TransactionRefunded, TransactionCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []TransactionStatus{TransactionCreated, TransactionInProgress, TransactionDisputed} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
