package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an upstream failure for retry decisions.
type ErrorKind int

const (
	// KindUnknown covers failures that could not be classified.
	KindUnknown ErrorKind = iota
	// KindRateLimit marks quota and throttling responses. Retryable.
	KindRateLimit
	// KindTimeout marks deadline expiry on the upstream call. Retryable.
	KindTimeout
	// KindNetwork marks transient connection and server failures. Retryable.
	KindNetwork
	// KindAuth marks authentication/authorization failures. Fatal.
	KindAuth
)

// String returns the kind's wire-friendly name.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// UpstreamError reports a failure from an embedding or generation backend,
// with enough context (operation and kind) to diagnose without log access.
type UpstreamError struct {
	Op   string // operation that failed, e.g. "ollama.chat"
	Kind ErrorKind
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: upstream %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: upstream %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying with backoff.
// Rate limits, timeouts and transient network errors are retryable;
// auth failures and unknowns are surfaced immediately.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// errorPatterns groups error substrings by kind, matched case-insensitively.
//
// NOTE: string matching is used because provider SDKs do not expose typed
// errors for transient failures. Re-evaluate if the SDKs grow structured
// error types.
var errorPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindRateLimit, []string{"rate limit", "quota exceeded", "too many requests", "429"}},
	{KindAuth, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "authentication"}},
	{KindTimeout, []string{"timeout", "deadline exceeded"}},
	{KindNetwork, []string{"500", "502", "503", "504", "unavailable", "connection refused", "connection reset", "temporary", "no such host", "eof"}},
}

// Classify wraps err into an *UpstreamError for op, inferring the kind from
// context errors first and error text second. A nil err returns nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	// Context cancellation is the caller's doing, not an upstream failure.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Op: op, Kind: KindTimeout, Err: err}
	}

	// Already classified: keep the original kind but note the outer op.
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}

	lower := strings.ToLower(err.Error())
	for _, group := range errorPatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return &UpstreamError{Op: op, Kind: group.kind, Err: err}
			}
		}
	}

	return &UpstreamError{Op: op, Kind: KindUnknown, Err: err}
}
