package calc

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var numberToken = regexp.MustCompile(`-?\d[\d.,']*`)

// ParseLocaleNumber reads the first number in s, accepting "." or "," as the
// decimal separator and "'", "." or "," as thousands separators. When both
// "." and "," appear the rightmost one is the decimal point; a single kind
// of separator repeated is a thousands separator, and a single occurrence is
// a decimal point.
func ParseLocaleNumber(s string) (float64, bool) {
	tok := numberToken.FindString(s)
	if tok == "" {
		return 0, false
	}
	tok = strings.TrimRight(strings.ReplaceAll(tok, "'", ""), ".,")

	dot, comma := strings.LastIndex(tok, "."), strings.LastIndex(tok, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		}
	case comma >= 0:
		if strings.Count(tok, ",") > 1 {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.Replace(tok, ",", ".", 1)
		}
	case dot >= 0:
		if strings.Count(tok, ".") > 1 {
			tok = strings.ReplaceAll(tok, ".", "")
		}
	}

	d, err := decimal.NewFromString(tok)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
