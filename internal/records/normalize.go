package records

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DiameterTolerance is the absolute tolerance, in inches, for fractional targets.
const DiameterTolerance = 0.1

var leadingNumber = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)

// NormalizeText lowercases s, folds accents and drops every rune that is not
// a letter or digit, so "T-Motor" and "tmotor" compare equal. Composition
// runs last so that runes made adjacent by the strip are already composed.
func NormalizeText(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))),
		strings.ToLower(s),
	)
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return norm.NFC.String(b.String())
}

// ParseDiameter extracts the leading number of a propeller size such as
// "18x10.0", "18,5 x 12" or "17.96". It returns false when raw has no
// numeric prefix.
func ParseDiameter(raw string) (float64, bool) {
	m := leadingNumber.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// DiameterMatches compares a parsed diameter with a target. Whole-inch
// targets match values that round to the target at one decimal, so 18.0 and
// 17.96 match 18 while 17.8 does not. Fractional targets use
// DiameterTolerance.
func DiameterMatches(value, target float64) bool {
	whole := math.Round(target)
	if math.Abs(target-whole) < 0.01 {
		return int64(math.Round(value*10)) == int64(whole)*10
	}
	return math.Abs(value-target) < DiameterTolerance
}
