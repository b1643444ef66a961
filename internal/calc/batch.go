package calc

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

// Progress is called after each candidate with its 1-based position.
type Progress func(done, total int, res CalculationResult)

// NewRequests builds one Request per candidate.
func NewRequests(recs []records.CandidateRecord, cfg config.CalcConfig, inputs map[string]string) []Request {
	out := make([]Request, len(recs))
	for i, r := range recs {
		out[i] = NewRequest(r, cfg, inputs)
	}
	return out
}

// Run calculates reqs one after another on the shared session, spaced at
// least cfg.Pace apart. A failing candidate never stops the batch; only
// cancellation of ctx does, in which case the results computed so far are
// returned with the context error.
func (c *Calculator) Run(ctx context.Context, sess *session.Session, reqs []Request, progress Progress) ([]CalculationResult, error) {
	limit := rate.Inf
	if c.cfg.Pace > 0 {
		limit = rate.Every(c.cfg.Pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([]CalculationResult, 0, len(reqs))
	for i, req := range reqs {
		if err := limiter.Wait(ctx); err != nil {
			c.logger.Warn("Batch cancelled while pacing.", zap.Int("done", i), zap.Error(err))
			return results, err
		}
		c.logger.Info("Calculating candidate.", zap.Int("index", i+1), zap.Int("total", len(reqs)), zap.String("motor", req.MotorName))
		res := c.Calculate(ctx, sess, req)
		results = append(results, res)
		if progress != nil {
			progress(i+1, len(reqs), res)
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}
