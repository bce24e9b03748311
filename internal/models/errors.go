package models

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientFunds      = errors.New("insufficient funds in escrow")
	ErrReleaseNotEligible     = errors.New("release conditions not satisfied")
	ErrConcurrencyConflict    = errors.New("document version conflict")
	ErrGatewayFailure         = errors.New("payment gateway failure")
	ErrPersistence            = errors.New("persistence unavailable")
)
