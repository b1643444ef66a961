package calc

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
)

const (
	scoreName = 1
	scoreKv   = 10
)

// MotorQuery identifies the motor to pick from the cascading motor list.
type MotorQuery struct {
	ID   string
	Name string
	Kv   string
}

func (q MotorQuery) target() string {
	if q.ID != "" {
		return q.ID
	}
	return q.Name
}

// MatchMotor picks the option for q. An option labelled exactly with the id
// or name wins. Otherwise options containing the target are scored, with a
// bonus when the label also carries the kv as "(kv)" or "kv<kv>"; ties go to
// enabled options, then to the closest label by Jaro-Winkler similarity.
// The best match being disabled yields ErrMotorDisabled.
func MatchMotor(opts []browser.Option, q MotorQuery) (browser.Option, error) {
	for _, label := range []string{q.ID, q.Name} {
		if label == "" {
			continue
		}
		for _, o := range opts {
			if o.Label == strings.TrimSpace(label) {
				return checkEnabled(o)
			}
		}
	}

	target := strings.ToLower(q.target())
	if target == "" {
		return browser.Option{}, ErrMotorNotFound
	}
	kv := strings.ToLower(strings.TrimSpace(q.Kv))

	type scored struct {
		opt   browser.Option
		score int
		sim   float64
	}
	var matches []scored
	for _, o := range opts {
		label := strings.ToLower(o.Label)
		if !strings.Contains(label, target) {
			continue
		}
		s := scoreName
		if kv != "" && (strings.Contains(label, "("+kv+")") || strings.Contains(label, "kv"+kv)) {
			s = scoreKv
		}
		matches = append(matches, scored{opt: o, score: s, sim: matchr.JaroWinkler(label, target, false)})
	}
	if len(matches) == 0 {
		return browser.Option{}, fmt.Errorf("%w: %q", ErrMotorNotFound, q.target())
	}
	slices.SortStableFunc(matches, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if a.opt.Disabled != b.opt.Disabled {
			if a.opt.Disabled {
				return 1
			}
			return -1
		}
		return cmp.Compare(b.sim, a.sim)
	})
	return checkEnabled(matches[0].opt)
}

func checkEnabled(o browser.Option) (browser.Option, error) {
	if o.Disabled {
		return o, fmt.Errorf("%w: %q", ErrMotorDisabled, o.Label)
	}
	return o, nil
}
