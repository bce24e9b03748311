package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/models"
	"github.com/paypledge/settlement/internal/telemetry"
	"github.com/paypledge/settlement/internal/verifier"
)

// TransactionService drives the deal lifecycle around the settlement
// orchestrator: creation, proof submission and verification, disputes,
// cancellation and read views.
type TransactionService struct {
	orch     *Orchestrator
	verifier interfaces.Verifier
	gate     *verifier.Gate
}

func NewTransactionService(orch *Orchestrator, v interfaces.Verifier, gate *verifier.Gate) *TransactionService {
	return &TransactionService{orch: orch, verifier: v, gate: gate}
}

type CreateTransactionInput struct {
	BuyerID              string                  `json:"buyer_id"`
	SellerID             string                  `json:"seller_id"`
	Title                string                  `json:"title"`
	Description          string                  `json:"description"`
	Amount               decimal.Decimal         `json:"amount"`
	Currency             string                  `json:"currency"`
	Terms                models.TransactionTerms `json:"terms"`
	ExpectedDeliveryDate *time.Time              `json:"expected_delivery_date,omitempty"`
}

// CreateTransaction records a new deal together with its zero-balance escrow
// account and moves it straight to AwaitingPayment.
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.Transaction, *models.EscrowAccount, error) {
	now := s.orch.nowFn()
	txn, err := models.NewTransaction(input.BuyerID, input.SellerID, input.Title, input.Amount, input.Currency, input.Terms, now)
	if err != nil {
		return nil, nil, err
	}
	txn.Description = input.Description
	txn.ExpectedDeliveryDate = input.ExpectedDeliveryDate

	acct := models.NewEscrowAccount(txn, now)
	txn.EscrowAccountID = acct.ID
	if err := txn.TransitionTo(models.TransactionAwaitingPayment, now); err != nil {
		return nil, nil, err
	}

	if _, err := s.orch.stores.PutEscrow(ctx, acct, 0); err != nil {
		return nil, nil, err
	}
	if _, err := s.orch.stores.PutTransaction(ctx, txn, 0); err != nil {
		return nil, nil, err
	}

	s.orch.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(models.TransactionCreated), now)
	telemetry.Logger.Info("transaction created",
		zap.String("transaction_id", txn.ID),
		zap.String("escrow_account_id", acct.ID),
		zap.String("amount", txn.Amount.String()),
	)
	return txn, acct, nil
}

// StartWork marks the seller as having begun delivery.
func (s *TransactionService) StartWork(ctx context.Context, transactionID string) (*models.Transaction, error) {
	txn, version, err := s.orch.stores.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	now := s.orch.nowFn()
	prev := txn.Status
	if err := s.orch.mutateTransaction(ctx, txn, version, func(t *models.Transaction) error {
		return t.TransitionTo(models.TransactionInProgress, now)
	}); err != nil {
		return nil, err
	}
	s.orch.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prev), now)
	return txn, nil
}

type SubmitProofInput struct {
	TransactionID    string                  `json:"transaction_id"`
	SubmittedBy      string                  `json:"submitted_by"`
	VerificationType models.VerificationType `json:"verification_type"`
	Title            string                  `json:"title"`
	Description      string                  `json:"description"`
	FileURLs         []string                `json:"file_urls"`
	Metadata         models.ProofMetadata    `json:"metadata"`
}

// SubmitProof records delivery evidence, has the external verifier judge it
// and applies the verdict to the escrow release conditions. The transaction
// moves to UnderReview when the proof passes or needs human review, and stays
// AwaitingProof when it is rejected outright.
func (s *TransactionService) SubmitProof(ctx context.Context, input SubmitProofInput) (*models.ProofSubmission, error) {
	txn, txnVersion, err := s.orch.stores.GetTransaction(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	switch txn.Status {
	case models.TransactionInProgress, models.TransactionAwaitingProof, models.TransactionUnderReview:
	default:
		return nil, fmt.Errorf("%w: transaction %s does not accept proof in status %s", models.ErrInvalidStateTransition, txn.ID, txn.Status)
	}
	if input.SubmittedBy != txn.SellerID {
		return nil, fmt.Errorf("%w: proof must be submitted by the seller", models.ErrValidation)
	}

	now := s.orch.nowFn()
	proof := &models.ProofSubmission{
		ID:               uuid.NewString(),
		TransactionID:    txn.ID,
		SubmittedBy:      input.SubmittedBy,
		VerificationType: input.VerificationType,
		Title:            input.Title,
		Description:      input.Description,
		FileURLs:         input.FileURLs,
		Metadata:         input.Metadata,
		Status:           models.ProofProcessing,
		SubmittedAt:      now,
	}

	result, err := s.verifier.Judge(ctx, proof, txn.Terms.VerificationRequirements)
	if err != nil {
		proof.Status = models.ProofSubmitted
		if _, perr := s.orch.stores.PutProof(ctx, proof, 0); perr != nil {
			return nil, perr
		}
		return proof, fmt.Errorf("proof verification unavailable: %w", err)
	}
	proof.VerificationResult = result

	release, err := s.orch.locker.Acquire(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := s.orch.stores.GetEscrow(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}

	outcome, eligible := s.gate.Apply(acct, proof, result, now)
	switch outcome {
	case verifier.OutcomeMet:
		proof.Status = models.ProofVerified
		verified := now
		proof.VerifiedAt = &verified
	case verifier.OutcomeRequiresReview:
		proof.Status = models.ProofRequiresReview
		proof.RequiresHumanReview = true
	default:
		proof.Status = models.ProofRejected
		proof.RejectionReason = result.Summary
	}

	if outcome == verifier.OutcomeMet {
		prevEscrow := acct.Status
		if eligible && acct.Status == models.EscrowFundsHeld {
			if err := acct.TransitionTo(models.EscrowReadyForRelease, now); err != nil {
				return nil, err
			}
		}
		if _, err := s.orch.stores.PutEscrow(ctx, acct, acctVersion); err != nil {
			return nil, err
		}
		if acct.Status != prevEscrow {
			s.orch.publishStateChange(ctx, "escrow", acct.ID, txn.ID, string(acct.Status), string(prevEscrow), now)
		}
	}

	if _, err := s.orch.stores.PutProof(ctx, proof, 0); err != nil {
		return nil, err
	}

	prev := txn.Status
	if err := s.orch.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
		t.ProofSubmissionIDs = append(t.ProofSubmissionIDs, proof.ID)
		if t.Status == models.TransactionInProgress {
			if err := t.TransitionTo(models.TransactionAwaitingProof, now); err != nil {
				return err
			}
		}
		if (outcome == verifier.OutcomeMet || outcome == verifier.OutcomeRequiresReview) && t.Status == models.TransactionAwaitingProof {
			return t.TransitionTo(models.TransactionUnderReview, now)
		}
		t.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}
	if txn.Status != prev {
		s.orch.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prev), now)
	}

	telemetry.Logger.Info("proof submission judged",
		zap.String("transaction_id", txn.ID),
		zap.String("proof_id", proof.ID),
		zap.String("outcome", string(outcome)),
		zap.Float64("score", result.Score),
		zap.Bool("release_eligible", eligible),
	)
	return proof, nil
}

// Dispute freezes the deal and its escrowed funds pending resolution.
func (s *TransactionService) Dispute(ctx context.Context, transactionID, reason string) (*models.Transaction, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: dispute reason is required", models.ErrValidation)
	}
	txn, txnVersion, err := s.orch.stores.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	release, err := s.orch.locker.Acquire(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := s.orch.stores.GetEscrow(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}

	now := s.orch.nowFn()
	prevTxn := txn.Status
	if err := s.orch.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
		if err := t.TransitionTo(models.TransactionDisputed, now); err != nil {
			return err
		}
		t.DisputeReason = reason
		return nil
	}); err != nil {
		return nil, err
	}

	prevEscrow := acct.Status
	if err := acct.RecordDispute(reason, now); err != nil {
		return nil, err
	}
	if _, err := s.orch.stores.PutEscrow(ctx, acct, acctVersion); err != nil {
		return nil, err
	}

	s.orch.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prevTxn), now)
	s.orch.publishStateChange(ctx, "escrow", acct.ID, txn.ID, string(acct.Status), string(prevEscrow), now)
	telemetry.Logger.Info("transaction disputed",
		zap.String("transaction_id", txn.ID),
		zap.String("reason", reason),
	)
	return txn, nil
}

// Cancel voids a deal before any funds were captured.
func (s *TransactionService) Cancel(ctx context.Context, transactionID string) (*models.Transaction, error) {
	txn, txnVersion, err := s.orch.stores.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	release, err := s.orch.locker.Acquire(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := s.orch.stores.GetEscrow(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}
	if acct.Balance.Sign() > 0 || len(acct.Ledger) > 0 {
		return nil, fmt.Errorf("%w: cannot cancel once funds were captured", models.ErrInvalidStateTransition)
	}

	now := s.orch.nowFn()
	prevTxn := txn.Status
	if err := s.orch.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
		return t.TransitionTo(models.TransactionCancelled, now)
	}); err != nil {
		return nil, err
	}
	prevEscrow := acct.Status
	if err := acct.TransitionTo(models.EscrowCancelled, now); err != nil {
		return nil, err
	}
	if _, err := s.orch.stores.PutEscrow(ctx, acct, acctVersion); err != nil {
		return nil, err
	}

	s.orch.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prevTxn), now)
	s.orch.publishStateChange(ctx, "escrow", acct.ID, txn.ID, string(acct.Status), string(prevEscrow), now)
	return txn, nil
}

// TransactionView is the full read snapshot returned to callers.
type TransactionView struct {
	Transaction *models.Transaction      `json:"transaction"`
	Escrow      *models.EscrowAccount    `json:"escrow"`
	Proofs      []models.ProofSubmission `json:"proofs,omitempty"`
	Payments    []models.PaymentRecord   `json:"payments,omitempty"`
}

// GetTransactionView loads the transaction with its escrow account, proof
// submissions and settlement history.
func (s *TransactionService) GetTransactionView(ctx context.Context, transactionID string) (*TransactionView, error) {
	txn, _, err := s.orch.stores.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	view := &TransactionView{Transaction: txn}

	if txn.EscrowAccountID != "" {
		acct, _, err := s.orch.stores.GetEscrow(ctx, txn.EscrowAccountID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		view.Escrow = acct
	}

	proofs, err := s.orch.stores.ProofsForTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	view.Proofs = proofs

	payments, err := s.orch.stores.PaymentsForTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	view.Payments = payments
	return view, nil
}
