package records

import (
	"strings"

	"github.com/samber/lo"
)

// AllManufacturers disables the manufacturer predicate.
const AllManufacturers = "all"

// Criteria selects candidates. Manufacturer terms are OR-combined; the
// manufacturer and diameter predicates are AND-combined.
type Criteria struct {
	// Manufacturers holds substrings matched against the normalized
	// manufacturer and motor name. Empty, or containing "all", matches every record.
	Manufacturers []string
	// Diameter in inches; zero disables the diameter predicate.
	Diameter float64
}

// Active reports whether any predicate narrows the input.
func (c Criteria) Active() bool {
	return c.Diameter > 0 || len(c.terms()) > 0
}

func (c Criteria) terms() []string {
	if lo.ContainsBy(c.Manufacturers, func(m string) bool {
		return strings.EqualFold(strings.TrimSpace(m), AllManufacturers)
	}) {
		return nil
	}
	return lo.Uniq(lo.Compact(lo.Map(c.Manufacturers, func(m string, _ int) string {
		return NormalizeText(m)
	})))
}

// Filter returns the records matching c, preserving input order.
func Filter(recs []CandidateRecord, c Criteria) []CandidateRecord {
	terms := c.terms()
	return lo.Filter(recs, func(r CandidateRecord, _ int) bool {
		return matchesManufacturer(r, terms) && matchesDiameter(r, c.Diameter)
	})
}

// FilterOne is the single-term form: manufacturer may be "all".
func FilterOne(recs []CandidateRecord, targetDiameter float64, manufacturer string) []CandidateRecord {
	return Filter(recs, Criteria{Manufacturers: []string{manufacturer}, Diameter: targetDiameter})
}

// SplitTerms splits a comma separated manufacturer list.
func SplitTerms(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))
}

func matchesManufacturer(r CandidateRecord, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	manuf := NormalizeText(r.ManufacturerName)
	motor := NormalizeText(r.MotorName)
	return lo.ContainsBy(terms, func(t string) bool {
		return strings.Contains(manuf, t) || strings.Contains(motor, t)
	})
}

func matchesDiameter(r CandidateRecord, target float64) bool {
	if target <= 0 {
		return true
	}
	d, ok := ParseDiameter(r.PropDiameterRaw)
	return ok && DiameterMatches(d, target)
}
