package service

import (
	"errors"
	"net/http"

	"github.com/assetflow/handover-service/internal/domain"
	apperrors "github.com/assetflow/handover-service/pkg/util/errorutil"
)

// Error codes surfaced to callers on top of the generic errorutil ones.
const (
	CodeTokenNotFound    = "TOKEN_NOT_FOUND"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeAlreadyFinalized = "ALREADY_FINALIZED"
	CodeValidation       = "VALIDATION_FAILED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// mapError turns domain sentinels into DomainErrors while keeping the
// sentinel reachable through errors.Is.
func mapError(err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, domain.ErrTokenNotFound):
		return apperrors.Wrap(err, CodeTokenNotFound, "invalid signing link", http.StatusNotFound, nil)
	case errors.Is(err, domain.ErrTokenExpired):
		return apperrors.Wrap(err, CodeTokenExpired, "signing link expired, request a new one", http.StatusGone, nil)
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return apperrors.Wrap(err, CodeAlreadyFinalized, "assignment already signed or disputed", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.Wrap(err, "NOT_FOUND", "assignment not found", http.StatusNotFound, nil)
	case errors.Is(err, domain.ErrTokenAlreadyIssued):
		return apperrors.Wrap(err, "CONFLICT", "signing token already issued", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return apperrors.Wrap(err, "CONFLICT", "assignment changed concurrently, retry", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrValidation):
		return apperrors.Wrap(err, CodeValidation, "validation failed", http.StatusBadRequest, nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func validationError(message string, details map[string]any) error {
	return apperrors.Wrap(domain.ErrValidation, CodeValidation, message, http.StatusBadRequest, details)
}

func payloadTooLargeError(field string, maxBytes, got int) error {
	return apperrors.Wrap(domain.ErrValidation, CodePayloadTooLarge, "payload too large", http.StatusRequestEntityTooLarge, map[string]any{
		"field":      field,
		"constraint": "max_bytes",
		"max_bytes":  maxBytes,
		"size_bytes": got,
	})
}
