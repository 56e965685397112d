package apierr

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Kind buckets every failure the gateway can observe. The retry policy is a
// pure function of Kind; see Retryable.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindAuthentication  Kind = "AUTHENTICATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindNetwork         Kind = "NETWORK"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindServerFault     Kind = "SERVER_FAULT"
	KindInvalidResponse Kind = "INVALID_RESPONSE"
	KindUnknown         Kind = "UNKNOWN"
)

// Context carries where a raw failure was observed. Filled by the caller at
// the I/O boundary, then baked into the classified error.
type Context struct {
	Op        string
	Resource  string
	VehicleID string
	Hint      string
}

// Error is the single typed error the rest of the system deals in.
// Classification happens exactly once; everything above the boundary
// propagates *Error unchanged.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Code       string
	Message    string
	Op         string
	Resource   string
	Hint       string
	Timestamp  time.Time

	cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets callers match by kind: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, status int, msg string, c Context) *Error {
	return &Error{
		Kind:       kind,
		HTTPStatus: status,
		Code:       string(kind),
		Message:    msg,
		Op:         c.Op,
		Resource:   c.Resource,
		Hint:       c.Hint,
		Timestamp:  time.Now().UTC(),
	}
}

func Validation(msg string, c Context) *Error {
	return newError(KindValidation, 0, msg, c)
}

func Authentication(status int, msg string, c Context) *Error {
	return newError(KindAuthentication, status, msg, c)
}

func NotFound(c Context) *Error {
	msg := "resource not found"
	if c.Resource != "" {
		msg = fmt.Sprintf("%s not found", c.Resource)
	}
	if c.VehicleID != "" {
		msg = fmt.Sprintf("%s (vehicle %s)", msg, c.VehicleID)
	}
	return newError(KindNotFound, http.StatusNotFound, msg, c)
}

func Network(msg string, cause error, c Context) *Error {
	e := newError(KindNetwork, 0, msg, c)
	e.cause = cause
	return e
}

func RateLimit(msg string, c Context) *Error {
	return newError(KindRateLimit, http.StatusTooManyRequests, msg, c)
}

func ServerFault(status int, msg string, c Context) *Error {
	return newError(KindServerFault, status, msg, c)
}

func InvalidResponse(msg string, cause error, c Context) *Error {
	e := newError(KindInvalidResponse, 0, msg, c)
	e.cause = cause
	return e
}

func Unknown(msg string, cause error, c Context) *Error {
	e := newError(KindUnknown, 0, msg, c)
	e.cause = cause
	return e
}

// FromStatus maps a non-success HTTP status plus the (best-effort decoded)
// response body into a classified error.
func FromStatus(status int, body string, c Context) *Error {
	if body == "" {
		body = http.StatusText(status)
	}
	switch {
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		e := Validation(body, c)
		e.HTTPStatus = status
		return e
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Authentication(status, body, c)
	case status == http.StatusNotFound:
		return NotFound(c)
	case status == http.StatusTooManyRequests:
		return RateLimit(body, c)
	case status >= 500:
		return ServerFault(status, body, c)
	default:
		e := Unknown(fmt.Sprintf("unexpected status %d: %s", status, body), nil, c)
		e.HTTPStatus = status
		return e
	}
}

// Classify turns a raw transport-level failure into an *Error. Already
// classified errors pass through unchanged, so classification stays
// idempotent no matter how many layers re-raise.
func Classify(err error, c Context) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	// net/http wraps transport failures in *url.Error; unwrap for inspection
	// but keep the original as the cause.
	inner := err
	var uerr *url.Error
	if errors.As(err, &uerr) {
		inner = uerr.Err
	}

	switch {
	case errors.Is(inner, context.DeadlineExceeded),
		errors.Is(inner, context.Canceled):
		return Network("request aborted: "+inner.Error(), err, c)
	case errors.Is(inner, syscall.ECONNREFUSED),
		errors.Is(inner, syscall.ECONNRESET),
		errors.Is(inner, syscall.EHOSTUNREACH),
		errors.Is(inner, syscall.ENETUNREACH):
		return Network("connection failed: "+inner.Error(), err, c)
	}

	var nerr net.Error
	if errors.As(inner, &nerr) {
		if nerr.Timeout() {
			return Network("request timed out: "+nerr.Error(), err, c)
		}
		return Network(nerr.Error(), err, c)
	}

	var operr *net.OpError
	if errors.As(inner, &operr) {
		return Network(operr.Error(), err, c)
	}

	return Unknown(err.Error(), err, c)
}

// Retryable reports whether a failure is worth another attempt. It is
// deliberately conservative: only transient transport conditions, throttling,
// and upstream faults qualify. A request the server called semantically
// invalid is never retried.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindRateLimit, KindServerFault:
		return true
	}
	return false
}
