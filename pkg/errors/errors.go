package apperrors

import "errors"

// Standardized Purchase Errors
var (
	ErrNoSignerConfigured = errors.New("no signer configured")
	ErrAlreadyRunning     = errors.New("a purchase is already running")
	ErrQuoteFailed        = errors.New("quote failed")
	ErrBuildFailed        = errors.New("transaction build failed")
	ErrExecutionFailed    = errors.New("transaction execution failed")
	ErrBatchAborted       = errors.New("batch aborted")
)

// Standardized Input Errors
var (
	ErrInvalidWeights = errors.New("invalid weights")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrBasketNotFound = errors.New("basket not found")
	ErrUnknownAsset   = errors.New("unknown asset")
	ErrInvalidMode    = errors.New("invalid execution mode")
)

// Standardized Venue Errors
var (
	ErrNoRoute            = errors.New("no route found")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrNetwork            = errors.New("network error")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrInvalidKey         = errors.New("invalid key material")
	ErrAddressMismatch    = errors.New("address does not match key")
	ErrTransactionPending = errors.New("transaction not yet indexed")
)
