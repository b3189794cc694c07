package domain

import (
	"errors"
	"net/http"
)

// Kind classifies a failure independently of its message.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindUnavailable
	KindNetwork
	KindTimeout
	KindGatewayTimeout
	KindForbidden
	KindConflict
	KindRateLimited
	KindPaymentRequired
	KindNotImplemented
	KindUnauthenticated
	KindNotFound
	KindValidation
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindInternal:        "internal",
	KindUnavailable:     "unavailable",
	KindNetwork:         "network",
	KindTimeout:         "timeout",
	KindGatewayTimeout:  "gateway_timeout",
	KindForbidden:       "forbidden",
	KindConflict:        "conflict",
	KindRateLimited:     "rate_limited",
	KindPaymentRequired: "payment_required",
	KindNotImplemented:  "not_implemented",
	KindUnauthenticated: "unauthenticated",
	KindNotFound:        "not_found",
	KindValidation:      "validation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the tagged error produced by the remote clients and the request
// validators. Handlers map Kind to a status code.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with a message only
// matches when the messages are equal too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Kind sentinels for errors.Is.
var (
	ErrInternal        = &Error{Kind: KindInternal}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrGatewayTimeout  = &Error{Kind: KindGatewayTimeout}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrValidation      = &Error{Kind: KindValidation}
)

// E builds a tagged error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds a tagged error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return KindUnknown, false
}

// KindFromStatus classifies a remote HTTP status code.
func KindFromStatus(code int) Kind {
	switch code {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusPaymentRequired:
		return KindPaymentRequired
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusRequestTimeout:
		return KindTimeout
	case http.StatusConflict, http.StatusPreconditionFailed:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotImplemented:
		return KindNotImplemented
	case http.StatusBadGateway:
		return KindNetwork
	case http.StatusServiceUnavailable:
		return KindUnavailable
	case http.StatusGatewayTimeout:
		return KindGatewayTimeout
	default:
		return KindInternal
	}
}
