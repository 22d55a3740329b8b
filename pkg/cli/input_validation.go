// Package cli validates and parses user input shared by the HTTP API and basketctl
package cli

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "basket_swap/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
)

// ErrMaliciousInput flags input carrying shell, path or SQL metacharacters
var ErrMaliciousInput = errors.New("potentially malicious input detected")

// ValidateInput checks for potentially malicious input patterns
func ValidateInput(input string) error {
	if strings.Contains(input, ";") || strings.Contains(input, "&&") || strings.Contains(input, "||") {
		return ErrMaliciousInput
	}

	if strings.Contains(input, "../") || strings.Contains(input, "..\\") {
		return ErrMaliciousInput
	}

	sqlPattern := regexp.MustCompile(`['"]\s*;\s*|\b(DROP|DELETE|UPDATE|INSERT)\b`)
	if sqlPattern.MatchString(strings.ToUpper(input)) {
		return ErrMaliciousInput
	}

	return nil
}

// ValidateBasketRef accepts a basket slug or ID
func ValidateBasketRef(ref string) error {
	if err := ValidateInput(ref); err != nil {
		return err
	}
	if !slugPattern.MatchString(ref) && !idPattern.MatchString(ref) {
		return fmt.Errorf("basket %q: %w", ref, apperrors.ErrBasketNotFound)
	}
	return nil
}

// ValidateAddress accepts a 0x-prefixed hex Sui address of up to 32 bytes
func ValidateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("invalid address %q", addr)
	}
	return nil
}

// ParseAmount parses an investment in funding units. Empty input yields def. The result must
// be positive and at most max; a zero max disables the upper bound.
func ParseAmount(s string, def, max decimal.Decimal) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, apperrors.ErrInvalidAmount)
	}
	if err := CheckAmount(amount, max); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// CheckAmount enforces 0 < amount <= max. A zero max disables the upper bound.
func CheckAmount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s must be positive: %w", amount, apperrors.ErrInvalidAmount)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("amount %s exceeds maximum %s: %w", amount, max, apperrors.ErrInvalidAmount)
	}
	return nil
}

// ParseWeights parses a comma-separated weight list such as "50,25,25"
func ParseWeights(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", p, apperrors.ErrInvalidWeights)
		}
		out = append(out, w)
	}
	return out, nil
}
