package gateway

import (
	"errors"

	"github.com/wolfman30/messaging-gateway/internal/messaging"
)

// ErrorKind classifies why a delivery did not end in a reply.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindMalformedPayload  ErrorKind = "malformed_payload"
	KindResolutionFailure ErrorKind = "resolution_failure"
	KindDuplicateMessage  ErrorKind = "duplicate_message"
	KindConfiguration     ErrorKind = "configuration_error"
	KindProviderSend      ErrorKind = "provider_send_failure"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAICollaborator    ErrorKind = "ai_collaborator_failure"
	KindInternal          ErrorKind = "internal_error"
)

var (
	// ErrMalformedPayload means the payload had no usable sender or content.
	ErrMalformedPayload = errors.New("gateway: malformed payload")
	// ErrOwnMessage means the payload is an echo of a message the tenant sent.
	ErrOwnMessage = errors.New("gateway: message sent by the tenant")
	// ErrResolutionFailure means no conversation could be found or created.
	ErrResolutionFailure = errors.New("gateway: conversation resolution failed")
	// ErrAICollaborator means the responder failed; nothing was sent.
	ErrAICollaborator = errors.New("gateway: ai responder failed")
)

// KindOf maps a pipeline error to its kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrOwnMessage):
		return KindMalformedPayload
	case errors.Is(err, ErrResolutionFailure):
		return KindResolutionFailure
	case errors.Is(err, ErrAICollaborator):
		return KindAICollaborator
	case errors.Is(err, messaging.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, messaging.ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, messaging.ErrProviderSend):
		return KindProviderSend
	default:
		return KindInternal
	}
}

// Retryable reports whether the provider should redeliver the webhook.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindResolutionFailure, KindInternal:
		return true
	}
	return false
}
