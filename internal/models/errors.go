package models

import "errors"

// The ledger's closed error set. Services and stores return these
// sentinels; the HTTP layer maps them onto statuses.
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountFrozen      = errors.New("account is frozen")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSameAccount        = errors.New("cannot transfer to the same account")
)
