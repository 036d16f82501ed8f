package domain

import "errors"

var (
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBelowMinimumWithdrawal = errors.New("amount is below the minimum withdrawal")
	ErrInvalidAmount          = errors.New("amount must be positive")
)
