package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a statement amount such as "1,234.56", "1.234,56",
// "(12.00)" or "150.000,00 CR". ok is false when the text is not an amount.
// The sign is negative for parenthesised or DB/"-" prefixed values.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	for _, suffix := range []string{" DB", " CR", "DB", "CR"} {
		if strings.HasSuffix(s, suffix) {
			if strings.TrimSpace(suffix) == "DB" {
				negative = true
			}
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "RP"), ".")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))

	s = normalizeSeparators(s)
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// normalizeSeparators rewrites thousands and decimal separators to the
// plain "1234.56" form. The right-most separator is the decimal one when
// it is followed by one or two digits.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	decimalSep := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep = max(lastDot, lastComma)
	case lastComma >= 0 && len(s)-lastComma-1 <= 2:
		decimalSep = lastComma
	case lastDot >= 0 && len(s)-lastDot-1 <= 2:
		decimalSep = lastDot
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == decimalSep:
			b.WriteRune('.')
		case r == '.' || r == ',' || r == ' ':
		default:
			return ""
		}
	}
	return b.String()
}
