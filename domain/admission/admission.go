// Package admission provides admission decision types for API-key filtering.
// This package has NO dependencies on I/O.
package admission

import (
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
)

// DefaultHeader is the request header carrying the API key.
const DefaultHeader = "X-Api-Key"

// Request is the part of an inbound request the filter needs (value type).
type Request struct {
	Tokens []string // every value of the key header
	Origin key.Origin
}

// Rejection is a client-facing denial (value type).
type Rejection struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (r Rejection) Error() string {
	return r.Message
}

// Rejections returned by the filter. Messages are the response bodies.
var (
	ErrMissingHeader = Rejection{
		Status:  400,
		Code:    "missing_header",
		Message: "missing header",
	}
	ErrMultipleHeaders = Rejection{
		Status:  400,
		Code:    "multiple_headers",
		Message: "multiple headers",
	}
	ErrKeyNotFound = Rejection{
		Status:  400,
		Code:    "key_not_found",
		Message: "key not found",
	}
	ErrKeyInactive = Rejection{
		Status:  400,
		Code:    "key_inactive",
		Message: "key inactive",
	}
	ErrRestricted = Rejection{
		Status:  400,
		Code:    "restricted",
		Message: "request not allowed by key restrictions",
	}
	ErrQuotaExceeded = Rejection{
		Status:  429,
		Code:    "quota_exceeded",
		Message: "daily request limit exceeded; upgrade to a paid key to make more requests",
	}
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Key       key.Key    // populated when a key was resolved
	Rejection *Rejection // populated when Allowed is false
	Used      int64      // free-tier requests counted today before this one
}

// Allow returns an allowing result for k.
func Allow(k key.Key, used int64) Result {
	return Result{Allowed: true, Key: k, Used: used}
}

// Deny returns a denying result.
func Deny(r Rejection) Result {
	return Result{Rejection: &r}
}

// Outcome is a short label for metrics and logs.
func (r Result) Outcome() string {
	if r.Allowed {
		return "allowed"
	}
	return r.Rejection.Code
}

// SingleToken extracts the only token from the header values.
// This is a PURE function.
func SingleToken(values []string) (string, *Rejection) {
	switch len(values) {
	case 0:
		r := ErrMissingHeader
		return "", &r
	case 1:
		return values[0], nil
	default:
		r := ErrMultipleHeaders
		return "", &r
	}
}
