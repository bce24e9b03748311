package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paypledge/settlement/internal/fees"
	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/metrics"
	"github.com/paypledge/settlement/internal/models"
	"github.com/paypledge/settlement/internal/repository"
	"github.com/paypledge/settlement/internal/telemetry"
)

const (
	TopicSettlementRecorded = "escrow.settlement.recorded"
	TopicStateChanged       = "escrow.state.changed"
)

// EventPublisher is the slice of kafka.Writer the orchestrator needs; tests
// substitute an in-memory recorder.
type EventPublisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OrchestratorConfig carries the settlement policy knobs.
type OrchestratorConfig struct {
	// AllowPartialRelease permits partial releases while release conditions
	// are still unmet. Full releases always require eligibility.
	AllowPartialRelease bool
	// WriteRetries bounds internal retries on version conflicts.
	WriteRetries int
}

// Orchestrator executes deposits, releases and refunds against escrow
// accounts. Every operation holds the per-account lock for its whole
// read-modify-write, and ledger+balance+status commit as one document write,
// so no failure can leave the account half-applied.
type Orchestrator struct {
	stores  *repository.Stores
	gateway interfaces.Gateway
	locker  interfaces.Locker
	events  EventPublisher
	cfg     OrchestratorConfig
	nowFn   func() time.Time
}

func NewOrchestrator(stores *repository.Stores, gw interfaces.Gateway, locker interfaces.Locker, events EventPublisher, cfg OrchestratorConfig) *Orchestrator {
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = 3
	}
	return &Orchestrator{
		stores:  stores,
		gateway: gw,
		locker:  locker,
		events:  events,
		cfg:     cfg,
		nowFn:   time.Now,
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (o *Orchestrator) SetNowFunc(now func() time.Time) {
	if now == nil {
		o.nowFn = time.Now
		return
	}
	o.nowFn = now
}

// Deposit charges the buyer's payment method and credits the escrow account.
// operationID is the caller's idempotency key; retrying with the same id after
// a timeout or failure produces at most one ledger entry.
func (o *Orchestrator) Deposit(ctx context.Context, transactionID, paymentMethodID string, amount decimal.Decimal, operationID string) (*models.PaymentRecord, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", models.ErrValidation)
	}

	txn, txnVersion, err := o.stores.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.EscrowAccountID == "" {
		return nil, fmt.Errorf("%w: transaction %s has no escrow account", models.ErrValidation, transactionID)
	}
	method, _, err := o.stores.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return nil, err
	}
	if !method.IsActive {
		return nil, fmt.Errorf("%w: payment method %s is inactive", models.ErrValidation, paymentMethodID)
	}

	release, err := o.locker.Acquire(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := o.stores.GetEscrow(ctx, txn.EscrowAccountID)
	if err != nil {
		return nil, err
	}

	feeBreakdown, err := fees.Calculate(amount, method.MethodType)
	if err != nil {
		return nil, err
	}

	now := o.nowFn()
	record, recVersion, fresh, err := o.prepareRecord(ctx, acct, operationID, func() *models.PaymentRecord {
		return &models.PaymentRecord{
			ID:              recordID(operationID),
			TransactionID:   txn.ID,
			EscrowAccountID: acct.ID,
			PaymentMethodID: method.ID,
			Amount:          amount,
			Currency:        acct.Currency,
			Status:          models.PaymentProcessing,
			PaymentType:     models.PaymentTypeDeposit,
			Fees:            feeBreakdown,
			CreatedAt:       now,
		}
	})
	if err != nil || !fresh {
		return record, err
	}

	// Fees are charged to the buyer on top of the escrowed amount, so the
	// account is credited with the gross deposit.
	charged := amount.Add(feeBreakdown.TotalFees)
	result, err := o.gateway.Charge(ctx, charged, acct.Currency, method.ID, record.ID)
	if err != nil {
		// Indeterminate outcome: leave the record Processing so a retry with
		// the same operation id reconciles instead of double-charging.
		telemetry.Logger.Warn("gateway charge indeterminate",
			zap.String("payment_id", record.ID),
			zap.Error(err),
		)
		return record, fmt.Errorf("%w: %v", models.ErrGatewayFailure, err)
	}
	if !result.Success {
		return o.failRecord(ctx, record, recVersion, result.FailureReason)
	}

	apply := func(a *models.EscrowAccount) error {
		if err := a.ApplyDeposit(amount, txn.Amount, record.ID, result.Reference, now); err != nil {
			return err
		}
		a.PaymentMethodID = method.ID
		a.Fees.ServiceFeeAmount = feeBreakdown.PlatformFee
		a.Fees.ProcessingFee = feeBreakdown.ProcessingFee
		a.Fees.TotalFees = feeBreakdown.TotalFees
		return nil
	}
	if err := apply(acct); err != nil {
		return nil, err
	}
	acct, err = o.commitEscrow(ctx, acct, acctVersion, record.ID, apply)
	if err != nil {
		return nil, err
	}

	record.MarkCompleted(result.Reference, now)
	if _, err := o.stores.PutPayment(ctx, record, recVersion); err != nil {
		return nil, err
	}

	if acct.Status == models.EscrowFundsHeld {
		prev := txn.Status
		if err := o.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
			return t.TransitionTo(models.TransactionPaymentReceived, now)
		}); err != nil {
			return nil, err
		}
		o.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prev), now)
	}

	o.finish(ctx, record, acct, now)
	return record, nil
}

// Release pays escrowed funds out to the seller. A full release requires
// every release condition to be met; partial releases additionally require
// the AllowPartialRelease policy when conditions are still open.
func (o *Orchestrator) Release(ctx context.Context, escrowAccountID string, amount decimal.Decimal, operationID string) (*models.PaymentRecord, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: release amount must be positive", models.ErrValidation)
	}

	release, err := o.locker.Acquire(ctx, escrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := o.stores.GetEscrow(ctx, escrowAccountID)
	if err != nil {
		return nil, err
	}
	txn, txnVersion, err := o.stores.GetTransaction(ctx, acct.TransactionID)
	if err != nil {
		return nil, err
	}

	if acct.Status.Terminal() {
		return nil, fmt.Errorf("%w: escrow %s is %s", models.ErrInvalidStateTransition, acct.ID, acct.Status)
	}
	if acct.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: release %s exceeds balance %s", models.ErrInsufficientFunds, amount, acct.Balance)
	}
	full := acct.Balance.Equal(amount)
	if !acct.CanRelease() {
		if full || !o.cfg.AllowPartialRelease || acct.Status == models.EscrowDisputed {
			return nil, fmt.Errorf("%w: escrow %s", models.ErrReleaseNotEligible, acct.ID)
		}
	}

	now := o.nowFn()
	record, recVersion, fresh, err := o.prepareRecord(ctx, acct, operationID, func() *models.PaymentRecord {
		return &models.PaymentRecord{
			ID:              recordID(operationID),
			TransactionID:   acct.TransactionID,
			EscrowAccountID: acct.ID,
			Amount:          amount,
			Currency:        acct.Currency,
			Status:          models.PaymentProcessing,
			PaymentType:     models.PaymentTypeRelease,
			CreatedAt:       now,
		}
	})
	if err != nil || !fresh {
		return record, err
	}

	result, err := o.gateway.Payout(ctx, amount, acct.Currency, txn.SellerID, record.ID)
	if err != nil {
		telemetry.Logger.Warn("gateway payout indeterminate",
			zap.String("payment_id", record.ID),
			zap.Error(err),
		)
		return record, fmt.Errorf("%w: %v", models.ErrGatewayFailure, err)
	}
	if !result.Success {
		return o.failRecord(ctx, record, recVersion, result.FailureReason)
	}

	apply := func(a *models.EscrowAccount) error {
		return a.ApplyRelease(amount, record.ID, result.Reference, now)
	}
	if err := apply(acct); err != nil {
		return nil, err
	}
	acct, err = o.commitEscrow(ctx, acct, acctVersion, record.ID, apply)
	if err != nil {
		return nil, err
	}

	record.MarkCompleted(result.Reference, now)
	if _, err := o.stores.PutPayment(ctx, record, recVersion); err != nil {
		return nil, err
	}

	if acct.Status == models.EscrowReleased {
		prev := txn.Status
		if err := o.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
			return fastForward(t, models.TransactionCompleted, now)
		}); err != nil {
			return nil, err
		}
		o.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prev), now)
	}

	o.finish(ctx, record, acct, now)
	return record, nil
}

// Refund returns escrowed funds to the buyer. Refunding the full balance
// requires a disputed escrow and leaves both the account and the transaction
// in their terminal Refunded states.
func (o *Orchestrator) Refund(ctx context.Context, escrowAccountID string, amount decimal.Decimal, reason, operationID string) (*models.PaymentRecord, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", models.ErrValidation)
	}

	release, err := o.locker.Acquire(ctx, escrowAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, acctVersion, err := o.stores.GetEscrow(ctx, escrowAccountID)
	if err != nil {
		return nil, err
	}
	txn, txnVersion, err := o.stores.GetTransaction(ctx, acct.TransactionID)
	if err != nil {
		return nil, err
	}

	if acct.Status == models.EscrowReleased || acct.Status == models.EscrowRefunded || acct.Status == models.EscrowCancelled {
		return nil, fmt.Errorf("%w: escrow %s is %s", models.ErrInvalidStateTransition, acct.ID, acct.Status)
	}
	if acct.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: refund %s exceeds balance %s", models.ErrInsufficientFunds, amount, acct.Balance)
	}
	if acct.Balance.Equal(amount) && acct.Status != models.EscrowDisputed {
		return nil, fmt.Errorf("%w: full refund requires a disputed escrow", models.ErrInvalidStateTransition)
	}

	now := o.nowFn()
	record, recVersion, fresh, err := o.prepareRecord(ctx, acct, operationID, func() *models.PaymentRecord {
		return &models.PaymentRecord{
			ID:              recordID(operationID),
			TransactionID:   acct.TransactionID,
			EscrowAccountID: acct.ID,
			Amount:          amount,
			Currency:        acct.Currency,
			Status:          models.PaymentProcessing,
			PaymentType:     models.PaymentTypeRefund,
			CreatedAt:       now,
		}
	})
	if err != nil || !fresh {
		return record, err
	}

	result, err := o.gateway.Payout(ctx, amount, acct.Currency, txn.BuyerID, record.ID)
	if err != nil {
		telemetry.Logger.Warn("gateway payout indeterminate",
			zap.String("payment_id", record.ID),
			zap.Error(err),
		)
		return record, fmt.Errorf("%w: %v", models.ErrGatewayFailure, err)
	}
	if !result.Success {
		return o.failRecord(ctx, record, recVersion, result.FailureReason)
	}

	apply := func(a *models.EscrowAccount) error {
		return a.ApplyRefund(amount, reason, record.ID, result.Reference, now)
	}
	if err := apply(acct); err != nil {
		return nil, err
	}
	acct, err = o.commitEscrow(ctx, acct, acctVersion, record.ID, apply)
	if err != nil {
		return nil, err
	}

	record.MarkCompleted(result.Reference, now)
	if _, err := o.stores.PutPayment(ctx, record, recVersion); err != nil {
		return nil, err
	}

	prev := txn.Status
	if err := o.mutateTransaction(ctx, txn, txnVersion, func(t *models.Transaction) error {
		refunded := amount
		if t.RefundAmount != nil {
			refunded = refunded.Add(*t.RefundAmount)
		}
		t.RefundAmount = &refunded
		if acct.Status == models.EscrowRefunded {
			return t.TransitionTo(models.TransactionRefunded, now)
		}
		t.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}
	if txn.Status != prev {
		o.publishStateChange(ctx, "transaction", txn.ID, txn.ID, string(txn.Status), string(prev), now)
	}

	o.finish(ctx, record, acct, now)
	return record, nil
}

func recordID(operationID string) string {
	if operationID != "" {
		return operationID
	}
	return uuid.NewString()
}

// prepareRecord loads or creates the PaymentRecord for an operation id. The
// returned fresh flag is false when the operation already reached a terminal
// outcome, in which case the cached record is returned as-is. A Processing
// record whose ledger entry already landed is reconciled to Completed here.
func (o *Orchestrator) prepareRecord(ctx context.Context, acct *models.EscrowAccount, operationID string, build func() *models.PaymentRecord) (*models.PaymentRecord, int64, bool, error) {
	id := recordID(operationID)
	existing, version, err := o.stores.GetPayment(ctx, id)
	switch {
	case err == nil:
		switch existing.Status {
		case models.PaymentCompleted:
			return existing, version, false, nil
		case models.PaymentProcessing:
			if entry := acct.EntryForPayment(id); entry != nil {
				existing.MarkCompleted(entry.ExternalReference, o.nowFn())
				if _, perr := o.stores.PutPayment(ctx, existing, version); perr != nil {
					return nil, 0, false, perr
				}
				return existing, version + 1, false, nil
			}
			// Prior attempt timed out before the ledger write: retry the
			// gateway call under the same idempotency key.
			return existing, version, true, nil
		case models.PaymentFailed:
			existing.Status = models.PaymentProcessing
			existing.FailureReason = ""
			if _, perr := o.stores.PutPayment(ctx, existing, version); perr != nil {
				return nil, 0, false, perr
			}
			return existing, version + 1, true, nil
		default:
			return existing, version, false, fmt.Errorf("%w: payment %s is %s", models.ErrInvalidStateTransition, id, existing.Status)
		}
	case errors.Is(err, models.ErrNotFound):
		record := build()
		record.ID = id
		version, err := o.stores.PutPayment(ctx, record, 0)
		if err != nil {
			return nil, 0, false, err
		}
		return record, version, true, nil
	default:
		return nil, 0, false, err
	}
}

func (o *Orchestrator) failRecord(ctx context.Context, record *models.PaymentRecord, version int64, reason string) (*models.PaymentRecord, error) {
	record.MarkFailed(reason, o.nowFn())
	if _, err := o.stores.PutPayment(ctx, record, version); err != nil {
		return nil, err
	}
	metrics.GatewayFailures.Inc()
	metrics.SettlementsTotal.WithLabelValues(string(record.PaymentType), string(record.Status)).Inc()
	telemetry.Logger.Warn("gateway declined settlement",
		zap.String("payment_id", record.ID),
		zap.String("payment_type", string(record.PaymentType)),
		zap.String("reason", reason),
	)
	return record, fmt.Errorf("%w: %s", models.ErrGatewayFailure, reason)
}

// commitEscrow writes the mutated account with a version check, re-reading
// and re-applying on conflict a bounded number of times. If a concurrent
// writer already landed this operation's ledger entry the fresh account is
// returned unchanged.
func (o *Orchestrator) commitEscrow(ctx context.Context, acct *models.EscrowAccount, version int64, dedupeRef string, apply func(*models.EscrowAccount) error) (*models.EscrowAccount, error) {
	for attempt := 0; ; attempt++ {
		if _, err := o.stores.PutEscrow(ctx, acct, version); err == nil {
			return acct, nil
		} else if !errors.Is(err, models.ErrConcurrencyConflict) || attempt >= o.cfg.WriteRetries {
			return nil, err
		}
		metrics.ConcurrencyConflicts.Inc()
		fresh, freshVersion, err := o.stores.GetEscrow(ctx, acct.ID)
		if err != nil {
			return nil, err
		}
		if fresh.HasEntryForPayment(dedupeRef) {
			return fresh, nil
		}
		if err := apply(fresh); err != nil {
			return nil, err
		}
		acct, version = fresh, freshVersion
	}
}

func (o *Orchestrator) mutateTransaction(ctx context.Context, txn *models.Transaction, version int64, mutate func(*models.Transaction) error) error {
	if err := mutate(txn); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		_, err := o.stores.PutTransaction(ctx, txn, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConcurrencyConflict) || attempt >= o.cfg.WriteRetries {
			return err
		}
		metrics.ConcurrencyConflicts.Inc()
		fresh, freshVersion, gerr := o.stores.GetTransaction(ctx, txn.ID)
		if gerr != nil {
			return gerr
		}
		if err := mutate(fresh); err != nil {
			return err
		}
		*txn, version = *fresh, freshVersion
	}
}

// happyPath is the forward walk used when a settlement outcome implies
// intermediate lifecycle hops (e.g. a release completing a deal that never
// went through explicit review).
var happyPath = []models.TransactionStatus{
	models.TransactionCreated,
	models.TransactionAwaitingPayment,
	models.TransactionPaymentReceived,
	models.TransactionInProgress,
	models.TransactionAwaitingProof,
	models.TransactionUnderReview,
	models.TransactionCompleted,
}

func fastForward(txn *models.Transaction, target models.TransactionStatus, now time.Time) error {
	if txn.Status == target {
		return nil
	}
	if txn.Status.CanTransitionTo(target) {
		return txn.TransitionTo(target, now)
	}
	start := -1
	for i, s := range happyPath {
		if s == txn.Status {
			start = i
			break
		}
	}
	if start == -1 {
		return fmt.Errorf("%w: transaction %s cannot reach %s from %s", models.ErrInvalidStateTransition, txn.ID, target, txn.Status)
	}
	for _, next := range happyPath[start+1:] {
		if err := txn.TransitionTo(next, now); err != nil {
			return err
		}
		if next == target {
			return nil
		}
	}
	return fmt.Errorf("%w: transaction %s cannot reach %s from %s", models.ErrInvalidStateTransition, txn.ID, target, txn.Status)
}

func (o *Orchestrator) finish(ctx context.Context, record *models.PaymentRecord, acct *models.EscrowAccount, now time.Time) {
	metrics.SettlementsTotal.WithLabelValues(string(record.PaymentType), string(record.Status)).Inc()
	amount, _ := record.Amount.Float64()
	metrics.SettlementAmount.WithLabelValues(string(record.PaymentType)).Observe(amount)

	o.publish(ctx, TopicSettlementRecorded, acct.TransactionID, models.SettlementRecordedEvent{
		PaymentID:       record.ID,
		TransactionID:   acct.TransactionID,
		EscrowAccountID: acct.ID,
		PaymentType:     record.PaymentType,
		Status:          record.Status,
		Amount:          record.Amount,
		Currency:        record.Currency,
		Balance:         acct.Balance,
		Timestamp:       now,
	})

	telemetry.Logger.Info("settlement recorded",
		zap.String("payment_id", record.ID),
		zap.String("escrow_account_id", acct.ID),
		zap.String("payment_type", string(record.PaymentType)),
		zap.String("status", string(record.Status)),
		zap.String("amount", record.Amount.String()),
		zap.String("balance", acct.Balance.String()),
	)
}

func (o *Orchestrator) publishStateChange(ctx context.Context, kind, id, transactionID, state, previous string, now time.Time) {
	o.publish(ctx, TopicStateChanged, transactionID, models.StateChangedEvent{
		EntityKind:    kind,
		EntityID:      id,
		TransactionID: transactionID,
		State:         state,
		PreviousState: previous,
		Timestamp:     now,
	})
}

func (o *Orchestrator) publish(ctx context.Context, topic, key string, event any) {
	if o.events == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		telemetry.Logger.Error("error marshaling event", zap.Error(err))
		return
	}
	if err := o.events.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		telemetry.Logger.Error("error publishing event",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
