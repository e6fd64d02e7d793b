package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSearchNotFound signals a missing search record.
	ErrSearchNotFound = errors.New("search not found")
	// ErrTransportExhausted signals that all fetch retries were spent.
	ErrTransportExhausted = errors.New("transport retries exhausted")
	// ErrBlockedByTarget signals a classified block (captcha, 403, 429).
	ErrBlockedByTarget = errors.New("blocked by target")
	// ErrCaptchaUnsolved signals a challenge that could not be solved.
	ErrCaptchaUnsolved = errors.New("captcha unsolved")
	// ErrProviderMisconfigured signals missing required provider credentials.
	ErrProviderMisconfigured = errors.New("provider misconfigured")
	// ErrPersistenceFailure signals a storage error that fails the owning job.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNoChallenge signals that no captcha challenge was found on a page.
	ErrNoChallenge = errors.New("no captcha challenge found")
)

// AcquisitionError wraps a provider failure with the provider kind,
// so the fallback orchestrator can report which link of the chain broke.
type AcquisitionError struct {
	Provider string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Err.Error())
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NewAcquisitionError creates an acquisition error for the given provider.
func NewAcquisitionError(provider string, err error) error {
	return &AcquisitionError{Provider: provider, Err: err}
}

// ErrorTag returns the taxonomy tag stored alongside a failed search.
func ErrorTag(err error) string {
	switch {
	case errors.Is(err, ErrProviderMisconfigured):
		return "provider_misconfigured"
	case errors.Is(err, ErrCaptchaUnsolved):
		return "captcha_unsolved"
	case errors.Is(err, ErrBlockedByTarget):
		return "blocked_by_target"
	case errors.Is(err, ErrTransportExhausted):
		return "transport_exhausted"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "error"
	}
}
