package calc

import "math"

// MatchMode says how the target power answer was obtained.
type MatchMode string

const (
	// ModeNone means the efficiency table was never reached.
	ModeNone         MatchMode = ""
	ModeInterpolated MatchMode = "interpolated"
	ModeClosest      MatchMode = "closest"
	ModeError        MatchMode = "error"
)

// Tolerance bounds how far the closest row may be from the target power when
// no pair of rows brackets it.
type Tolerance struct {
	MinWatts float64
	Fraction float64
}

// DefaultTolerance accepts max(50 W, 15% of target).
var DefaultTolerance = Tolerance{MinWatts: 50, Fraction: 0.15}

// Allowed is the accepted absolute power difference for target.
func (t Tolerance) Allowed(target float64) float64 {
	return math.Max(t.MinWatts, t.Fraction*target)
}

// PowerPoint is the table answer at the target power.
type PowerPoint struct {
	Mode       MatchMode
	Power      Value
	Throttle   Value
	Efficiency Value
	Thrust     Value
}

// AtPower answers throttle, efficiency and thrust at target power. A pair of
// rows with power <= target and >= target, each as close as possible, is
// interpolated linearly. Without such a pair the nearest row is used if it
// is within tol; otherwise, and when there are no rows at all, every field
// is OutOfRange together.
func AtPower(rows []Row, target float64, tol Tolerance) PowerPoint {
	if len(rows) == 0 {
		return outOfRange()
	}

	lo, hi := -1, -1
	for i, r := range rows {
		if r.Power <= target && (lo < 0 || r.Power > rows[lo].Power) {
			lo = i
		}
		if r.Power >= target && (hi < 0 || r.Power < rows[hi].Power) {
			hi = i
		}
	}
	if lo >= 0 && hi >= 0 {
		a, b := rows[lo], rows[hi]
		t := 0.0
		if b.Power != a.Power {
			t = (target - a.Power) / (b.Power - a.Power)
		}
		return PowerPoint{
			Mode:       ModeInterpolated,
			Power:      Number(target),
			Throttle:   Number(lerp(a.Throttle, b.Throttle, t)),
			Efficiency: Number(lerp(a.Efficiency, b.Efficiency, t)),
			Thrust:     Number(lerp(a.Thrust, b.Thrust, t)),
		}
	}

	best := 0
	for i, r := range rows {
		if math.Abs(r.Power-target) < math.Abs(rows[best].Power-target) {
			best = i
		}
	}
	r := rows[best]
	if math.Abs(r.Power-target) > tol.Allowed(target) {
		return outOfRange()
	}
	return PowerPoint{
		Mode:       ModeClosest,
		Power:      Number(r.Power),
		Throttle:   Number(r.Throttle),
		Efficiency: Number(r.Efficiency),
		Thrust:     Number(r.Thrust),
	}
}

// EffAtMaxThrottle is the efficiency of the highest-throttle row.
func EffAtMaxThrottle(rows []Row) Value {
	if len(rows) == 0 {
		return NotAvailable()
	}
	best := 0
	for i, r := range rows {
		if r.Throttle >= rows[best].Throttle {
			best = i
		}
	}
	return Number(rows[best].Efficiency)
}

func outOfRange() PowerPoint {
	return PowerPoint{
		Mode:       ModeError,
		Power:      OutOfRange(),
		Throttle:   OutOfRange(),
		Efficiency: OutOfRange(),
		Thrust:     OutOfRange(),
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
