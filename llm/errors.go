package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

type ErrorKind string

const (
	ErrKindAuth        ErrorKind = "auth"
	ErrKindRateLimit   ErrorKind = "rate_limit"
	ErrKindBadRequest  ErrorKind = "bad_request"
	ErrKindNotFound    ErrorKind = "not_found"
	ErrKindServer      ErrorKind = "server"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindNetwork     ErrorKind = "network"
	ErrKindCanceled    ErrorKind = "canceled"
	ErrKindParse       ErrorKind = "parse"
	ErrKindUnsupported ErrorKind = "unsupported"
	ErrKindConfig      ErrorKind = "config"
	ErrKindUnavailable ErrorKind = "unavailable"
	ErrKindUnknown     ErrorKind = "unknown"
)

// ErrorClass groups error kinds by the reaction they demand, so retry and
// routing logic never has to inspect provider-specific payloads.
type ErrorClass string

const (
	// ClassTransient errors (network failure, timeout, rate limit, 5xx) are
	// safe to retry against the same provider.
	ClassTransient ErrorClass = "transient"

	// ClassClient errors (invalid request, unknown model, parse failure) will
	// fail the same way on retry; a different provider may still succeed.
	ClassClient ErrorClass = "client"

	// ClassAuthentication errors (401/403) are fatal for the credential in
	// use. Retrying or failing over with the same credential is pointless.
	ClassAuthentication ErrorClass = "authentication"

	// ClassConfiguration errors (malformed manifest, unresolved reference)
	// are raised at load/reload time only, never during a request.
	ClassConfiguration ErrorClass = "configuration"
)

// Class returns the ErrorClass a kind belongs to.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case ErrKindRateLimit, ErrKindServer, ErrKindTimeout, ErrKindNetwork, ErrKindUnavailable:
		return ClassTransient
	case ErrKindAuth:
		return ClassAuthentication
	case ErrKindConfig:
		return ClassConfiguration
	default:
		return ClassClient
	}
}

// Retryable reports whether errors of this kind are worth retrying against
// the same provider.
func (k ErrorKind) Retryable() bool { return k.Class() == ClassTransient }

// LLMError is a provider-agnostic error container.
//
// It is designed for enterprise use: stable classification, raw payload access,
// and retry-related hints.
type LLMError struct {
	Provider string
	Kind     ErrorKind
	Class    ErrorClass

	HTTPStatus   int
	ProviderCode string
	Message      string

	Retryable bool

	// RetryAfter is the backend's requested wait before the next attempt
	// (from a Retry-After header). Zero when the backend gave no hint.
	RetryAfter time.Duration

	// Raw is an optional raw error payload (e.g. the HTTP response body).
	Raw []byte

	Cause error
}

func (e *LLMError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, msg)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// NewError builds an LLMError with Class and Retryable derived from kind.
func NewError(provider string, kind ErrorKind, message string) *LLMError {
	return &LLMError{
		Provider:  provider,
		Kind:      kind,
		Class:     kind.Class(),
		Message:   message,
		Retryable: kind.Retryable(),
	}
}

// WrapError is NewError with an underlying cause preserved for errors.Is/As.
func WrapError(provider string, kind ErrorKind, cause error) *LLMError {
	e := NewError(provider, kind, "")
	e.Cause = cause
	return e
}

func AsLLMError(err error) (*LLMError, bool) {
	var e *LLMError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassOf classifies an arbitrary error. Errors that are not LLMErrors are
// treated as Client: they will not improve on retry.
func ClassOf(err error) ErrorClass {
	if e, ok := AsLLMError(err); ok {
		if e.Class != "" {
			return e.Class
		}
		return e.Kind.Class()
	}
	return ClassClient
}

// IsRetryable reports whether err should be retried against the same
// provider. Only Transient errors qualify.
func IsRetryable(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Retryable
}

// IsAuth reports whether err is fatal for the credential in use.
func IsAuth(err error) bool { return ClassOf(err) == ClassAuthentication }

// IsRateLimit reports whether the backend asked the caller to slow down.
func IsRateLimit(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Kind == ErrKindRateLimit
}

// ClassifyHTTP maps a non-2xx status and response body to an LLMError.
//
// 401/403 become auth, 404 not_found, 408 timeout, 429 rate_limit, other
// 4xx bad_request, 5xx server. The backend's own message and code are
// extracted from the body when it follows a recognizable error envelope.
func ClassifyHTTP(provider string, status int, body []byte) *LLMError {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrKindAuth
	case status == http.StatusNotFound:
		kind = ErrKindNotFound
	case status == http.StatusRequestTimeout:
		kind = ErrKindTimeout
	case status == http.StatusTooManyRequests:
		kind = ErrKindRateLimit
	case status >= 400 && status < 500:
		kind = ErrKindBadRequest
	case status >= 500:
		kind = ErrKindServer
	default:
		kind = ErrKindUnknown
	}

	e := NewError(provider, kind, "")
	e.HTTPStatus = status
	e.Raw = body
	e.Message, e.ProviderCode = parseErrorEnvelope(body)
	if e.Message == "" {
		e.Message = fmt.Sprintf("http %d: %s", status, http.StatusText(status))
	}
	return e
}

// ClassifyTransport maps an error returned by the HTTP transport to an
// LLMError. Errors that already carry a classification pass through.
func ClassifyTransport(provider string, err error) *LLMError {
	if err == nil {
		return nil
	}
	if e, ok := AsLLMError(err); ok {
		return e
	}

	var kind ErrorKind
	switch {
	case errors.Is(err, context.Canceled):
		kind = ErrKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				kind = ErrKindTimeout
			} else {
				kind = ErrKindNetwork
			}
		} else {
			kind = ErrKindUnknown
		}
	}

	return WrapError(provider, kind, err)
}

// parseErrorEnvelope extracts a human-readable message and provider code from
// common error body shapes:
//
//	{"error": {"message": "...", "code": "..."}}   OpenAI-style
//	{"error": "..."}                               flat string
//	{"message": "..."}                             bare message
//	{"detail": "..."}                              FastAPI-style
func parseErrorEnvelope(body []byte) (message, code string) {
	if len(body) == 0 {
		return "", ""
	}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
			Type    string          `json:"type"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			code := decodeErrorCode(nested.Code)
			if code == "" {
				code = nested.Type
			}
			return nested.Message, code
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && flat != "" {
			return flat, ""
		}
	}
	if envelope.Message != "" {
		return envelope.Message, ""
	}
	if envelope.Detail != "" {
		return envelope.Detail, ""
	}
	return "", ""
}

// decodeErrorCode tolerates both string and numeric provider codes.
func decodeErrorCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
