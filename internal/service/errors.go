package service

import "errors"

// Failure taxonomy shared by every service. The transport layer maps these to
// scoped error events (WebSocket) or status codes (REST); they never terminate
// another connection's session.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("missing or invalid field")
	ErrStateConflict = errors.New("invalid for current state")
)
