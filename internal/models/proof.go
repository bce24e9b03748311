package models

import "time"

type ProofStatus string

const (
	ProofSubmitted      ProofStatus = "SUBMITTED"
	ProofProcessing     ProofStatus = "PROCESSING"
	ProofVerified       ProofStatus = "VERIFIED"
	ProofRejected       ProofStatus = "REJECTED"
	ProofRequiresReview ProofStatus = "REQUIRES_REVIEW"
)

type LocationData struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   string   `json:"address,omitempty"`
}

type ProofMetadata struct {
	FileSize   int64         `json:"file_size"`
	FileType   string        `json:"file_type,omitempty"`
	CapturedAt *time.Time    `json:"captured_at,omitempty"`
	Location   *LocationData `json:"location,omitempty"`
	DeviceInfo string        `json:"device_info,omitempty"`
	Checksum   string        `json:"checksum,omitempty"`
}

// ProofSubmission is the seller's delivery evidence for one transaction.
type ProofSubmission struct {
	ID                  string              `json:"id"`
	TransactionID       string              `json:"transaction_id"`
	SubmittedBy         string              `json:"submitted_by"`
	VerificationType    VerificationType    `json:"verification_type"`
	Title               string              `json:"title,omitempty"`
	Description         string              `json:"description,omitempty"`
	FileURLs            []string            `json:"file_urls,omitempty"`
	Metadata            ProofMetadata       `json:"metadata"`
	Status              ProofStatus         `json:"status"`
	VerificationResult  *VerificationResult `json:"verification_result,omitempty"`
	RejectionReason     string              `json:"rejection_reason,omitempty"`
	RequiresHumanReview bool                `json:"requires_human_review"`
	SubmittedAt         time.Time           `json:"submitted_at"`
	VerifiedAt          *time.Time          `json:"verified_at,omitempty"`
}

// VerificationResult is the external verifier's judgement over a proof
// submission. The engine treats it as a read-only input; the scoring
// heuristic behind it is not part of this system.
type VerificationResult struct {
	Score               float64   `json:"score"`
	IsAuthentic         bool      `json:"is_authentic"`
	Flags               []string  `json:"flags,omitempty"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	Summary             string    `json:"summary,omitempty"`
	ProcessedAt         time.Time `json:"processed_at"`
}
