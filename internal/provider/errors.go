package provider

import (
	"fmt"
	"time"
)

// Kind distinguishes the structured error cases a provider adapter can
// raise. Unlike a plain wrapped error, Kind lets the Orchestrator decide
// whether to retry, surface a hint, or abort without string-matching.
type Kind int

const (
	KindAuthentication Kind = iota
	KindRateLimit
	KindNotFound
	KindQuotaExceeded
	KindInvalidConfig
	KindNotSupported
	KindTimeout
	KindNetwork
	KindAPI
	KindNotImplemented
	KindUnknownProvider
	KindOther
)

// Error is the structured error type every Provider method returns instead
// of a bare error, so callers can branch on Kind without string matching.
type Error struct {
	Kind Kind

	Provider     string
	Message      string
	ResourceType string
	ResourceID   string
	Resource     string
	Field        string
	Feature      string
	Operation    string
	Elapsed      time.Duration
	Status       int
	Name         string
	Supported    []string

	RetryAfterDuration time.Duration
	hasRetryAfter      bool

	Wrapped error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return fmt.Sprintf("authentication failed for %s: %s", e.Provider, e.Message)
	case KindRateLimit:
		if e.hasRetryAfter {
			return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfterDuration)
		}
		return "rate limit exceeded"
	case KindNotFound:
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	case KindQuotaExceeded:
		return fmt.Sprintf("quota exceeded for %s: %s", e.Resource, e.Message)
	case KindInvalidConfig:
		return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Message)
	case KindNotSupported:
		return fmt.Sprintf("feature not supported: %s", e.Feature)
	case KindTimeout:
		return fmt.Sprintf("operation timed out after %s: %s", e.Elapsed, e.Operation)
	case KindNetwork:
		if e.Wrapped != nil {
			return fmt.Sprintf("network error: %s", e.Wrapped)
		}
		return "network error"
	case KindAPI:
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	case KindNotImplemented:
		return fmt.Sprintf("provider %q is not yet implemented", e.Name)
	case KindUnknownProvider:
		return fmt.Sprintf("unknown provider: %s. supported providers: %v", e.Name, e.Supported)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// IsRetryable reports whether the Orchestrator may transparently retry the
// operation that produced err, up to its enclosing deadline.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// RetryAfter returns the delay to wait before retrying, if any.
func (e *Error) RetryAfter() (time.Duration, bool) {
	switch e.Kind {
	case KindRateLimit:
		return e.RetryAfterDuration, e.hasRetryAfter
	case KindTimeout:
		return 5 * time.Second, true
	case KindNetwork:
		return 2 * time.Second, true
	default:
		return 0, false
	}
}

// NewAuthError reports invalid or expired credentials for provider.
func NewAuthError(providerName, message string) *Error {
	return &Error{Kind: KindAuthentication, Provider: providerName, Message: message}
}

// NewRateLimitError reports a vendor rate limit, optionally with the
// retry-after duration the vendor advertised.
func NewRateLimitError(retryAfter time.Duration, has bool) *Error {
	return &Error{Kind: KindRateLimit, RetryAfterDuration: retryAfter, hasRetryAfter: has}
}

// NewNotFoundError reports a missing resource of resourceType identified by
// id.
func NewNotFoundError(resourceType, id string) *Error {
	return &Error{Kind: KindNotFound, ResourceType: resourceType, ResourceID: id}
}

// NewQuotaExceededError reports an account limit on resource.
func NewQuotaExceededError(resource, message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Resource: resource, Message: message}
}

// NewInvalidConfigError reports a malformed field in the request or
// provider configuration.
func NewInvalidConfigError(field, message string) *Error {
	return &Error{Kind: KindInvalidConfig, Field: field, Message: message}
}

// NewNotSupportedError reports a capability the provider does not offer.
func NewNotSupportedError(feature string) *Error {
	return &Error{Kind: KindNotSupported, Feature: feature}
}

// NewTimeoutError reports operation exceeding its deadline after elapsed.
func NewTimeoutError(operation string, elapsed time.Duration) *Error {
	return &Error{Kind: KindTimeout, Operation: operation, Elapsed: elapsed}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(wrapped error) *Error {
	return &Error{Kind: KindNetwork, Wrapped: wrapped}
}

// NewAPIError reports a vendor API error response.
func NewAPIError(status int, message string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: message}
}

// NewNotImplementedError reports a registered but unimplemented provider.
func NewNotImplementedError(name string) *Error {
	return &Error{Kind: KindNotImplemented, Name: name}
}

// NewUnknownProviderError reports a name absent from the registry, listing
// what is actually supported.
func NewUnknownProviderError(name string, supported []string) *Error {
	return &Error{Kind: KindUnknownProvider, Name: name, Supported: supported}
}

// NewOtherError wraps a message that doesn't fit another Kind.
func NewOtherError(message string) *Error {
	return &Error{Kind: KindOther, Message: message}
}
