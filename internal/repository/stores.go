package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/models"
)

// Document kinds stored in the shared document table.
const (
	KindTransaction   = "transaction"
	KindEscrow        = "escrow"
	KindPayment       = "payment"
	KindPaymentMethod = "payment_method"
	KindProof         = "proof"
)

// Stores wraps the document store with typed access to each entity. Every
// read returns the document version alongside the entity so callers can do
// compare-and-swap writes.
type Stores struct {
	docs interfaces.DocumentStore
}

func NewStores(docs interfaces.DocumentStore) *Stores {
	return &Stores{docs: docs}
}

func get[T any](ctx context.Context, s *Stores, id, kind string) (*T, int64, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if doc.Kind != kind {
		return nil, 0, fmt.Errorf("%w: document %s is %s, not %s", models.ErrNotFound, id, doc.Kind, kind)
	}
	var entity T
	if err := json.Unmarshal(doc.Data, &entity); err != nil {
		return nil, 0, fmt.Errorf("%w: decode %s %s: %v", models.ErrPersistence, kind, id, err)
	}
	return &entity, doc.Version, nil
}

func put(ctx context.Context, s *Stores, id, kind string, entity any, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return 0, fmt.Errorf("%w: encode %s %s: %v", models.ErrPersistence, kind, id, err)
	}
	return s.docs.Put(ctx, &interfaces.Document{ID: id, Kind: kind, Data: data}, expectedVersion)
}

func (s *Stores) GetTransaction(ctx context.Context, id string) (*models.Transaction, int64, error) {
	return get[models.Transaction](ctx, s, id, KindTransaction)
}

func (s *Stores) PutTransaction(ctx context.Context, txn *models.Transaction, expectedVersion int64) (int64, error) {
	return put(ctx, s, txn.ID, KindTransaction, txn, expectedVersion)
}

func (s *Stores) GetEscrow(ctx context.Context, id string) (*models.EscrowAccount, int64, error) {
	return get[models.EscrowAccount](ctx, s, id, KindEscrow)
}

func (s *Stores) PutEscrow(ctx context.Context, acct *models.EscrowAccount, expectedVersion int64) (int64, error) {
	return put(ctx, s, acct.ID, KindEscrow, acct, expectedVersion)
}

func (s *Stores) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, int64, error) {
	return get[models.PaymentRecord](ctx, s, id, KindPayment)
}

func (s *Stores) PutPayment(ctx context.Context, record *models.PaymentRecord, expectedVersion int64) (int64, error) {
	return put(ctx, s, record.ID, KindPayment, record, expectedVersion)
}

func (s *Stores) GetPaymentMethod(ctx context.Context, id string) (*models.PaymentMethod, int64, error) {
	return get[models.PaymentMethod](ctx, s, id, KindPaymentMethod)
}

func (s *Stores) PutPaymentMethod(ctx context.Context, method *models.PaymentMethod, expectedVersion int64) (int64, error) {
	return put(ctx, s, method.ID, KindPaymentMethod, method, expectedVersion)
}

func (s *Stores) GetProof(ctx context.Context, id string) (*models.ProofSubmission, int64, error) {
	return get[models.ProofSubmission](ctx, s, id, KindProof)
}

func (s *Stores) PutProof(ctx context.Context, proof *models.ProofSubmission, expectedVersion int64) (int64, error) {
	return put(ctx, s, proof.ID, KindProof, proof, expectedVersion)
}

// ProofsForTransaction loads the proof submissions recorded on a transaction,
// preserving submission order.
func (s *Stores) ProofsForTransaction(ctx context.Context, txn *models.Transaction) ([]models.ProofSubmission, error) {
	proofs := make([]models.ProofSubmission, 0, len(txn.ProofSubmissionIDs))
	for _, id := range txn.ProofSubmissionIDs {
		proof, _, err := s.GetProof(ctx, id)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, *proof)
	}
	return proofs, nil
}

// PaymentsForTransaction queries all settlement attempts for a transaction.
func (s *Stores) PaymentsForTransaction(ctx context.Context, transactionID string) ([]models.PaymentRecord, error) {
	docs, err := s.docs.Query(ctx, KindPayment, func(data json.RawMessage) bool {
		var probe struct {
			TransactionID string `json:"transaction_id"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return false
		}
		return probe.TransactionID == transactionID
	})
	if err != nil {
		return nil, err
	}
	records := make([]models.PaymentRecord, 0, len(docs))
	for _, doc := range docs {
		var record models.PaymentRecord
		if err := json.Unmarshal(doc.Data, &record); err != nil {
			return nil, fmt.Errorf("%w: decode payment %s: %v", models.ErrPersistence, doc.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
