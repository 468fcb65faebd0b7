package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Callers match with errors.Is; infra and services wrap these with %w.

var (
	// Ledger and friendship errors
	ErrDuplicateRequest = errors.New("friend request already sent")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")

	// Backend errors
	ErrBackendUnavailable = errors.New("data backend unavailable")

	// Identity errors
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)
