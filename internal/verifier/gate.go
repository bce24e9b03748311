package verifier

import (
	"strings"
	"time"

	"github.com/paypledge/settlement/internal/models"
)

// DefaultThreshold is the minimum verifier score that can satisfy a release
// condition.
const DefaultThreshold = 0.7

// DefaultBlockingFlags reject a submission outright regardless of score. Flag
// matching is substring-based, so HIGH_RISK also catches derived flags such
// as HIGH_RISK_LOCATION.
var DefaultBlockingFlags = []string{"HIGH_RISK", "POTENTIAL_DEEPFAKE"}

// Outcome is the gate's verdict over one verification result.
type Outcome string

const (
	OutcomeMet            Outcome = "MET"
	OutcomeRejected       Outcome = "REJECTED"
	OutcomeRequiresReview Outcome = "REQUIRES_REVIEW"
)

// Gate decides whether accumulated proof verification satisfies release
// conditions. It is a deterministic evaluator: the only state it touches is
// the condition flags on the escrow account passed in.
type Gate struct {
	Threshold     float64
	BlockingFlags []string
}

func NewGate(threshold float64, blockingFlags []string) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(blockingFlags) == 0 {
		blockingFlags = DefaultBlockingFlags
	}
	return &Gate{Threshold: threshold, BlockingFlags: blockingFlags}
}

// Evaluate maps a verification result to a gate outcome.
func (g *Gate) Evaluate(result *models.VerificationResult) Outcome {
	if result == nil {
		return OutcomeRejected
	}
	if g.blocked(result.Flags) || result.Score < g.Threshold || !result.IsAuthentic {
		if result.RequiresHumanReview {
			return OutcomeRequiresReview
		}
		return OutcomeRejected
	}
	return OutcomeMet
}

// Apply evaluates the result and, when it passes, marks the matching release
// conditions met on the account. It returns the outcome and whether the
// account became fully release-eligible.
func (g *Gate) Apply(acct *models.EscrowAccount, proof *models.ProofSubmission, result *models.VerificationResult, now time.Time) (Outcome, bool) {
	outcome := g.Evaluate(result)
	if outcome != OutcomeMet {
		return outcome, false
	}
	acct.MarkConditionsMet(string(proof.VerificationType), result.Score, now)
	return outcome, acct.CanRelease()
}

func (g *Gate) blocked(flags []string) bool {
	for _, flag := range flags {
		for _, blocking := range g.BlockingFlags {
			if strings.Contains(flag, blocking) {
				return true
			}
		}
	}
	return false
}
