// Package verifier connects the engine to the external proof verifier and
// holds the release-eligibility gate that interprets its judgements.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/paypledge/settlement/internal/models"
)

const (
	subjectVerify  = "proof.verify"
	requestTimeout = 5 * time.Second
)

type verifyRequest struct {
	Proof        *models.ProofSubmission          `json:"proof"`
	Requirements []models.VerificationRequirement `json:"requirements"`
}

// NATSVerifier asks the verification service for a judgement over NATS
// request/reply. The scoring heuristic lives entirely on the other side.
type NATSVerifier struct {
	nc *nats.Conn
}

func NewNATSVerifier(nc *nats.Conn) *NATSVerifier {
	return &NATSVerifier{nc: nc}
}

func (v *NATSVerifier) Judge(ctx context.Context, proof *models.ProofSubmission, requirements []models.VerificationRequirement) (*models.VerificationResult, error) {
	payload, err := json.Marshal(verifyRequest{Proof: proof, Requirements: requirements})
	if err != nil {
		return nil, fmt.Errorf("verifier: encode request: %w", err)
	}

	timeout := requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	msg, err := v.nc.Request(subjectVerify, payload, timeout)
	if err != nil {
		return nil, fmt.Errorf("verifier: request failed: %w", err)
	}

	var result models.VerificationResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return nil, fmt.Errorf("verifier: decode response: %w", err)
	}
	return &result, nil
}
