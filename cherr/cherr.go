// Package cherr defines the client's error taxonomy (§7 of the design):
// error kinds are distinguishable by tag, not by Go type name, so the retry
// interceptor can classify failures with errors.As regardless of which
// package raised them.
package cherr

import (
	"errors"
	"fmt"
)

// Kind tags an Error with the category described in §7.
type Kind int

const (
	// KindIO is an underlying socket/file failure; usually retryable if safe.
	KindIO Kind = iota
	// KindTimeout means a configured duration was exceeded.
	KindTimeout
	// KindCanceled means the call was explicitly canceled; never retried.
	KindCanceled
	// KindProtocol is a malformed status line, frame, chunk, or header; not retryable.
	KindProtocol
	// KindTLS is a handshake failure or verification failure.
	KindTLS
	// KindUnknownHost is an address resolution failure; retryable on another route.
	KindUnknownHost
	// KindConnect is a connect failure; retryable on another route.
	KindConnect
	// KindHTTP2StreamReset carries an HTTP/2 error code.
	KindHTTP2StreamReset
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindProtocol:
		return "protocol"
	case KindTLS:
		return "tls"
	case KindUnknownHost:
		return "unknown_host"
	case KindConnect:
		return "connect"
	case KindHTTP2StreamReset:
		return "http2_stream_reset"
	default:
		return "unknown"
	}
}

// TimeoutBudget identifies which of the four independent timeout budgets
// (§4.1) expired.
type TimeoutBudget int

const (
	BudgetNone TimeoutBudget = iota
	BudgetConnect
	BudgetRead
	BudgetWrite
	BudgetCall
)

func (b TimeoutBudget) String() string {
	switch b {
	case BudgetConnect:
		return "connect"
	case BudgetRead:
		return "read"
	case BudgetWrite:
		return "write"
	case BudgetCall:
		return "call"
	default:
		return "none"
	}
}

// Error is the wrapper every internal failure is surfaced as.
type Error struct {
	Kind    Kind
	Budget  TimeoutBudget // only meaningful when Kind == KindTimeout
	Code    ErrCode       // only meaningful when Kind == KindHTTP2StreamReset
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Timeout builds a KindTimeout error tagged with which budget expired.
func Timeout(budget TimeoutBudget, cause error) *Error {
	return &Error{Kind: KindTimeout, Budget: budget, Message: "deadline exceeded", Cause: cause}
}

// Canceled builds a KindCanceled error; canceled errors are never retried.
func Canceled() *Error {
	return &Error{Kind: KindCanceled, Message: "call canceled"}
}

// StreamReset builds a KindHTTP2StreamReset error carrying code.
func StreamReset(code ErrCode) *Error {
	return &Error{Kind: KindHTTP2StreamReset, Code: code, Message: fmt.Sprintf("stream reset: %s", code)}
}

// ErrCode is an HTTP/2 error code (RFC 7540 §7).
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

func (c ErrCode) String() string {
	names := [...]string{"NO_ERROR", "PROTOCOL_ERROR", "INTERNAL_ERROR", "FLOW_CONTROL_ERROR",
		"SETTINGS_TIMEOUT", "STREAM_CLOSED", "FRAME_SIZE_ERROR", "REFUSED_STREAM", "CANCEL",
		"COMPRESSION_ERROR", "CONNECT_ERROR", "ENHANCE_YOUR_CALM", "INADEQUATE_SECURITY", "HTTP_1_1_REQUIRED"}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("ERROR_0x%x", uint32(c))
}

// Retryable reports whether err (as classified by §4.1's retry policy) may
// be retried on another route without violating "RST after any bytes sent
// is never retryable".
func Retryable(err error, bytesSentBeforeFailure bool) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindCanceled, KindProtocol:
		return false
	case KindHTTP2StreamReset:
		if e.Code == ErrCodeRefusedStream {
			return true
		}
		if e.Code == ErrCodeCancel && bytesSentBeforeFailure {
			return false
		}
		return false
	case KindIO, KindConnect, KindUnknownHost:
		return true
	case KindTLS:
		return true
	case KindTimeout:
		return false
	default:
		return false
	}
}
