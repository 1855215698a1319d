package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider error codes.
const (
	CodeInvalidAPIKey = "invalid_api_key"
	CodeRateLimited   = "rate_limited"
	CodeQuotaExceeded = "quota_exceeded"
	CodeTimeout       = "timeout"
	CodeServerError   = "server_error"
	CodeBlocked       = "blocked"
	CodeAPIError      = "api_error"
)

// ProviderError is a failed provider call classified into a code.
type ProviderError struct {
	Provider   string
	Code       string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient provider failure. It is
// meant for graph.RetryPolicy.Retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Classify wraps err as a *ProviderError. status is the HTTP status code
// when known, otherwise 0 and the message text is inspected.
func Classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	pe := &ProviderError{Provider: provider, StatusCode: status, Err: err}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		pe.Code, pe.Retryable = CodeTimeout, true
	case status == 401 || status == 403 || strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		pe.Code = CodeInvalidAPIKey
	case status == 429 || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		pe.Code, pe.Retryable = CodeRateLimited, true
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing"):
		pe.Code = CodeQuotaExceeded
	case status >= 500 || strings.Contains(msg, "overloaded") || strings.Contains(msg, "unavailable"):
		pe.Code, pe.Retryable = CodeServerError, true
	default:
		pe.Code = CodeAPIError
	}
	return pe
}
