package calc

import (
	"context"
	"errors"
	"fmt"
)

// Outcome classifies one calculation attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable failures may succeed after session recovery.
	OutcomeRetryable
	// OutcomeFatal failures will not change on retry.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{OutcomeSuccess, OutcomeRetryable, OutcomeFatal} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Attempt records how one pass through the calculation form ended.
type Attempt struct {
	Number  int     `json:"number"`
	Outcome Outcome `json:"outcome"`
	Cause   string  `json:"cause,omitempty"`
	Err     error   `json:"-"`
}

func newAttempt(ctx context.Context, n int, err error) Attempt {
	a := Attempt{Number: n, Outcome: classify(ctx, err), Err: err}
	if err != nil {
		a.Cause = err.Error()
	}
	return a
}

// classify treats only the caller's own cancellation as fatal. Page and
// action timeouts wrap context.DeadlineExceeded too but are worth a retry.
func classify(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrMotorDisabled), ctx.Err() != nil:
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}
