package messaging

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed send.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration_error"
	KindProviderSend  ErrorKind = "provider_send_failure"
	KindRateLimited   ErrorKind = "rate_limited"
)

var (
	// ErrConfiguration means the tenant config does not resolve to a usable transport.
	ErrConfiguration = errors.New("messaging: configuration error")
	// ErrProviderSend means the provider call failed.
	ErrProviderSend = errors.New("messaging: provider send failure")
	// ErrRateLimited means the outbound gate refused the send.
	ErrRateLimited = errors.New("messaging: rate limited")
)

// SendError is the failure reported by Router.Send.
type SendError struct {
	Kind    ErrorKind
	Message string
	// RetryAfter is set for rate limited sends.
	RetryAfter time.Duration
	cause      error
}

func (e *SendError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Kind, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the kind sentinel and the underlying cause to errors.Is/As.
func (e *SendError) Unwrap() []error {
	out := make([]error, 0, 2)
	switch e.Kind {
	case KindConfiguration:
		out = append(out, ErrConfiguration)
	case KindProviderSend:
		out = append(out, ErrProviderSend)
	case KindRateLimited:
		out = append(out, ErrRateLimited)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func configurationError(cause error, format string, args ...any) *SendError {
	return &SendError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...), cause: cause}
}

func providerSendError(cause error, format string, args ...any) *SendError {
	return &SendError{Kind: KindProviderSend, Message: fmt.Sprintf(format, args...), cause: cause}
}

func rateLimitedError(retryAfter time.Duration) *SendError {
	return &SendError{Kind: KindRateLimited, Message: "outbound rate limit exceeded", RetryAfter: retryAfter}
}

// SendResult is the outcome of Router.Send.
type SendResult struct {
	Success   bool
	MessageID string
	Err       *SendError
}

// Error returns the failure as an error, or nil on success.
func (r SendResult) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
