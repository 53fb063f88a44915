package core

import "errors"

// Sentinel errors returned across the event, store, VM and overlay layers.
// Callers should use errors.Is to test against these.
var (
	ErrInvalidEvent  = errors.New("core: invalid event")
	ErrStorageIO     = errors.New("core: storage io failure")
	ErrCorrupt       = errors.New("core: corrupt record")
	ErrNotFound      = errors.New("core: not found")
	ErrQuotaExceeded = errors.New("core: quota exceeded")
	ErrOverlay       = errors.New("core: overlay failure")
	ErrPolicyDenied  = errors.New("core: policy denied")
	ErrSandbox       = errors.New("core: sandbox failure")

	ErrProtocolMismatch         = errors.New("core: protocol mismatch")
	ErrRecipientProfileUnknown  = errors.New("core: recipient key-agreement profile unknown")
)
