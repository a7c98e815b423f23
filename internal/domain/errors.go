package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConnectionDisabled = errors.New("connection is disabled")
	ErrRunBudgetExceeded  = errors.New("sync run exceeded its time budget")
)

// CredentialError means stored credentials could not be decrypted or are unusable
type CredentialError struct {
	ConnectionID ConnectionID
	Reason       string
	Err          error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential error for connection %s: %s: %v", e.ConnectionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("credential error for connection %s: %s", e.ConnectionID, e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// AuthError is returned once the vendor rejected the credentials after a re-authentication attempt
type AuthError struct {
	Provider   ProviderType
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s authentication failed (status %d)", e.Provider, e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Provider   ProviderType
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit still in effect after %d attempts (last retry-after %s)", e.Provider, e.Attempts, e.RetryAfter)
}

// TransientError wraps 5xx responses and network failures that outlived the retry budget
type TransientError struct {
	Provider   ProviderType
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d after %d attempts", e.Provider, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("%s request failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProviderError is a non-retryable vendor response
type ProviderError struct {
	Provider   ProviderType
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type NormalizationError struct {
	Provider   ProviderType
	EntityType EntityType
	ExternalID string
	Err        error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("unable to normalize %s %s record %q: %v", e.Provider, e.EntityType, e.ExternalID, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// ReconciliationError is a constraint violation while writing one record
type ReconciliationError struct {
	EntityType EntityType
	ExternalID string
	Constraint string
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("unable to reconcile %s record %q (constraint %q): %v", e.EntityType, e.ExternalID, e.Constraint, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// IsFatalForRun reports whether err ends the whole run instead of one entity type
func IsFatalForRun(err error) bool {
	var credentialErr *CredentialError
	var authErr *AuthError
	return errors.As(err, &credentialErr) || errors.As(err, &authErr)
}

// ErrorKind names the taxonomy bucket an error belongs to, for audit entries
func ErrorKind(err error) string {
	var credentialErr *CredentialError
	var authErr *AuthError
	var rateLimitErr *RateLimitError
	var transientErr *TransientError
	var providerErr *ProviderError
	var normalizationErr *NormalizationError
	var reconciliationErr *ReconciliationError

	switch {
	case errors.As(err, &credentialErr):
		return "credential_error"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &rateLimitErr):
		return "rate_limit_error"
	case errors.As(err, &transientErr):
		return "transient_error"
	case errors.As(err, &providerErr):
		return "provider_error"
	case errors.As(err, &normalizationErr):
		return "normalization_error"
	case errors.As(err, &reconciliationErr):
		return "reconciliation_error"
	case errors.Is(err, ErrRunBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrConnectionDisabled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal_error"
	}
}
