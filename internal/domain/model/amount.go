package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// minorPerMajor is the number of minor units (paisa) in one rupee.
const minorPerMajor = 100

// Amount is a monetary value in integer minor units.
type Amount int64

// Rupees converts a whole-rupee value to an Amount.
func Rupees(n int64) Amount {
	return Amount(n * minorPerMajor)
}

// Minor returns the raw minor-unit value sent to the ledger.
func (a Amount) Minor() int64 {
	return int64(a)
}

// String formats the amount as rupees with two decimals.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/minorPerMajor, v%minorPerMajor)
}

// ParseAmount parses a rupee value with at most two decimals, such as
// "1500" or "1500.50".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if rupees > math.MaxInt64/minorPerMajor-1 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	var paisa int64
	if hasFrac {
		if frac == "" || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: at most two decimals", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		if paisa, err = strconv.ParseInt(frac, 10, 64); err != nil || paisa < 0 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}
	return Amount(rupees*minorPerMajor + paisa), nil
}
