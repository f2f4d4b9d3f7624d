// Package llm is the single call surface to the model provider: an ordered
// fallback chain with per-model bounded retry, request pacing, response
// shape validation, and a typed error taxonomy the workflow classifies by.
package llm

import (
	"errors"
	"fmt"
)

// ErrQuotaExhausted is returned when every model in the fallback chain has
// exhausted its attempts against quota.
var ErrQuotaExhausted = errors.New("llm: all models quota exhausted")

// ErrShape is returned when a structured response still fails validation
// after the corrective retry.
var ErrShape = errors.New("llm: response shape mismatch")

// APIError wraps any other terminal provider condition.
type APIError struct {
	Model string
	Err   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api error (model %s): %v", e.Model, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// QuotaError carries the attempted model list for diagnostics.
type QuotaError struct {
	Attempted []string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("llm: all models quota exhausted (attempted: %v)", e.Attempted)
}

// Is makes errors.Is(err, ErrQuotaExhausted) hold for QuotaError values.
func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExhausted }

// Provider-level error kinds, used by the gateway's retry classifier.
// Provider implementations (and test fakes) wrap these to signal how a
// failed call should be handled.

// ErrModelQuota marks a single model's quota exhaustion: the chain moves on
// to the next model without waiting.
var ErrModelQuota = errors.New("model quota exhausted")

// ErrTransient marks a retryable failure: the same model is retried after a
// jittered delay.
var ErrTransient = errors.New("transient provider failure")
