package helpers

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

// Kind classifies a relay error for transport-level mapping.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindTransport        Kind = "transport"
	KindAuthorization    Kind = "authorization"
	KindDecode           Kind = "decode"
	KindTimeout          Kind = "timeout"
	KindValidation       Kind = "validation"
	KindPositionNotFound Kind = "position_not_found"
	KindAccountNotFound  Kind = "account_not_found"
	KindNotAuthorized    Kind = "not_authorized"
	KindLinkDown         Kind = "link_down"
	KindNotConnected     Kind = "not_connected"
	KindUpstream         Kind = "upstream"
	KindRiskRejected     Kind = "risk_rejected"
	KindConfiguration    Kind = "configuration"
	KindStorage          Kind = "storage"
)

type RelayError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match sentinels by kind, so a wrapped
// &RelayError{Kind: KindLinkDown} still matches ErrLinkDown.
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// Distinct wrappers for type assertions
type TransportError struct{ RelayError }
type AuthorizationError struct{ RelayError }
type DecodeError struct{ RelayError }
type ValidationError struct{ RelayError }
type ConfigurationError struct{ RelayError }
type StorageError struct{ RelayError }

// UpstreamError is an error object reported by the brokerage in a reply frame.
type UpstreamError struct {
	RelayError
	Code string
}

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{RelayError{Kind: KindTransport, Message: msg, Cause: cause}}
}

func NewAuthorizationError(msg string, cause error) *AuthorizationError {
	return &AuthorizationError{RelayError{Kind: KindAuthorization, Message: msg, Cause: cause}}
}

func NewDecodeError(msg string, cause error) *DecodeError {
	return &DecodeError{RelayError{Kind: KindDecode, Message: msg, Cause: cause}}
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{RelayError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}}
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{RelayError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}}
}

func NewStorageError(msg string, cause error) *StorageError {
	return &StorageError{RelayError{Kind: KindStorage, Message: msg, Cause: cause}}
}

func NewUpstreamError(code, msg string) *UpstreamError {
	return &UpstreamError{RelayError: RelayError{Kind: KindUpstream, Message: msg}, Code: code}
}

func (e *UpstreamError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	ErrLinkDown         = &RelayError{Kind: KindLinkDown, Message: "upstream link down"}
	ErrRequestTimeout   = &RelayError{Kind: KindTimeout, Message: "request timed out"}
	ErrNotAuthorized    = &RelayError{Kind: KindNotAuthorized, Message: "not authorized"}
	ErrPositionNotFound = &RelayError{Kind: KindPositionNotFound, Message: "position not found"}
	ErrAccountNotFound  = &RelayError{Kind: KindAccountNotFound, Message: "account not found"}
	ErrNotConnected     = &RelayError{Kind: KindNotConnected, Message: "upstream not connected"}
	ErrRiskRejected     = &RelayError{Kind: KindRiskRejected, Message: "rejected by risk guard"}
)

// Wrap attaches context to a sentinel while keeping errors.Is working.
func Wrap(sentinel *RelayError, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// -----------------------------------------------------------------------------

// KindOf returns the kind of the first RelayError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return KindUpstream
	}
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	var ae *AuthorizationError
	if errors.As(err, &ae) {
		return KindAuthorization
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return KindDecode
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return KindConfiguration
	}
	var se *StorageError
	if errors.As(err, &se) {
		return KindStorage
	}
	return KindUnknown
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// Backoff yields exponentially growing delays between reconnect attempts,
// starting at Base and capped at Max.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max}
}

// Next returns the delay for the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Base
	for i := 0; i < b.attempt; i++ {
		delay *= 2
		if delay >= b.Max {
			delay = b.Max
			break
		}
	}
	b.attempt++
	return delay
}

// Reset goes back to the base delay after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempts reports how many delays have been handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}
