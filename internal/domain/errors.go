package domain

import "errors"

// Signing workflow outcomes. Services wrap these in errorutil.DomainError;
// errors.Is keeps working through the wrap.
var (
	ErrNotFound              = errors.New("assignment: not found")
	ErrTokenNotFound         = errors.New("assignment: signing token not found")
	ErrTokenExpired          = errors.New("assignment: signing token expired")
	ErrAlreadyFinalized      = errors.New("assignment: already finalized")
	ErrValidation            = errors.New("assignment: validation failed")
	ErrTokenGenerationFailed = errors.New("assignment: token generation failed")
	ErrTokenAlreadyIssued    = errors.New("assignment: token already issued")
	ErrTokenCollision        = errors.New("assignment: token collision")
	ErrConcurrencyConflict   = errors.New("assignment: concurrent transition conflict")
	ErrNotYetExpired         = errors.New("assignment: token not yet expired")
	ErrCorruptState          = errors.New("assignment: stored state is inconsistent")
)
