package catalog

import "errors"

var (
	ErrNotFound       = errors.New("price not found")
	ErrModelNotFound  = errors.New("product model not found")
	ErrInvalidAmount  = errors.New("price amounts must not be negative")
	ErrModelRequired  = errors.New("product model name is required")
	ErrPriceContended = errors.New("active price changed concurrently")
)
