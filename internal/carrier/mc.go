// Package carrier verifies that a caller's MC number belongs to a carrier
// authorized to operate.
package carrier

import (
	"strings"

	"github.com/sells-group/inbound-carrier/internal/apperr"
)

const maxMCDigits = 8

// NormalizeMC returns the bare digit form of an MC number. An optional "MC",
// "MC-" or "MC " prefix is accepted in any case.
func NormalizeMC(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.EqualFold(s[:2], "MC") {
		s = strings.TrimLeft(s[2:], " -#")
	}
	if s == "" {
		return "", apperr.InvalidInput("mc_number is required")
	}
	if len(s) > maxMCDigits {
		return "", apperr.InvalidInput("mc_number %q must have at most %d digits", raw, maxMCDigits)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", apperr.InvalidInput("mc_number %q must be numeric", raw)
		}
	}
	return s, nil
}
