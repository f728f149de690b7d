package domain

import "errors"

// Failure kinds surfaced by the orchestrators. Callers wrap the root cause
// alongside the kind, so errors.Is matches both.
var (
	ErrChainRead             = errors.New("chain read failed")
	ErrTransactionReverted   = errors.New("transaction reverted")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrEncryption            = errors.New("encryption failed")
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoBid          = errors.New("caller has no bid")
	ErrNoSnapshot     = errors.New("snapshot not loaded")
	ErrNotInitialized = errors.New("encryption client not initialized")
	ErrLockHeld       = errors.New("lock already held")
)
