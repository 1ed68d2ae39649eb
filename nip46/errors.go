// Package nip46 implements the bunker remote-signing protocol: pairing
// URIs, the request/response wire model, session and permission
// enforcement, the bunker-side signer, and the client that talks to it.
// Grounded on the teacher's nip46.go and nostrconnect.go, generalized
// from a single hardcoded client flow into a two-sided protocol library.
package nip46

import "errors"

// Stable wire error tokens, §7 of the protocol this package implements.
const (
	ErrTokenUnauthorized        = "UNAUTHORIZED"
	ErrTokenInvalidRequest      = "INVALID_REQUEST"
	ErrTokenPermissionDenied    = "PERMISSION_DENIED"
	ErrTokenMethodNotSupported  = "METHOD_NOT_SUPPORTED"
	ErrTokenInvalidParameters   = "INVALID_PARAMETERS"
	ErrTokenSigningFailed       = "SIGNING_FAILED"
	ErrTokenEncryptionFailed    = "ENCRYPTION_FAILED"
	ErrTokenDecryptionFailed    = "DECRYPTION_FAILED"
	ErrTokenInternalError       = "INTERNAL_ERROR"
	ErrTokenTimeout             = "TIMEOUT"
	ErrTokenRateLimited         = "RATE_LIMITED"
)

var (
	ErrInvalidConnectionString = errors.New("nip46: invalid connection string")
	ErrInvalidRequest          = errors.New("nip46: invalid request")
	ErrInvalidParameters       = errors.New("nip46: invalid parameters")
	ErrUnauthorized            = errors.New("nip46: unauthorized")
	ErrPermissionDenied        = errors.New("nip46: permission denied")
	ErrMethodNotSupported      = errors.New("nip46: method not supported")
	ErrReplay                  = errors.New("nip46: replayed request id")
	ErrRateLimited             = errors.New("nip46: rate limited")
	ErrRequestTimeout          = errors.New("nip46: request timed out")
	ErrDisconnected            = errors.New("nip46: disconnected")
	ErrInternal                = errors.New("nip46: internal error")
)

// errTokenFor maps a local error to the stable wire token it should be
// collapsed to in a Response.Error field. Unknown errors collapse to
// INTERNAL_ERROR rather than leaking their Go error string.
func errTokenFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidParameters):
		return ErrTokenInvalidRequest
	case errors.Is(err, ErrUnauthorized):
		return ErrTokenUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return ErrTokenPermissionDenied
	case errors.Is(err, ErrMethodNotSupported):
		return ErrTokenMethodNotSupported
	case errors.Is(err, ErrReplay):
		return ErrTokenInvalidRequest
	case errors.Is(err, ErrRateLimited):
		return ErrTokenRateLimited
	default:
		return ErrTokenInternalError
	}
}
