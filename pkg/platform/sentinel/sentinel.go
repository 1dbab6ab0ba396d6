package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into taxonomy errors without string
// matching.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrExpired: session is past its expiry
// - ErrRevoked: session was revoked before this operation
// - ErrConflict: a concurrent update lost the race
// - ErrUnavailable: store or downstream temporarily unavailable
//
// For input validation use pkg/gateway-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrRevoked     = errors.New("revoked")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
