package inventory

import (
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("inventory unit not found")
	ErrNotInStock      = errors.New("inventory unit is not in stock")
	ErrChassisRequired = errors.New("chassis number is required")
	ErrDuplicateUnit   = errors.New("chassis or engine number already received")
	ErrInvalidPrice    = errors.New("unit prices must not be negative")
)

// NormalizeChassis is the canonical form used for every chassis lookup and write.
func NormalizeChassis(chassis string) string {
	return strings.ToUpper(strings.TrimSpace(chassis))
}
