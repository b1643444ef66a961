// Package calc drives the eCalc propeller calculator for one candidate at a
// time and turns its outputs into a CalculationResult: total power, thrust
// across a flight speed sweep, and the efficiency table answer at a target
// power.
package calc

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

var (
	// ErrSessionInvalid means the session could not be recovered.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrFormNotReady means the motor select never rendered.
	ErrFormNotReady = errors.New("calculation form not ready")
	// ErrMotorNotFound means no motor option matched the candidate.
	ErrMotorNotFound = errors.New("motor not found")
	// ErrMotorDisabled means the matching motor option is disabled, usually a
	// member-only entry. Retrying does not help.
	ErrMotorDisabled = errors.New("motor option disabled")
)

// SnapshotError is written when a candidate ends without a successful attempt.
const SnapshotError = "debug_propcalc_error.html"

// Form controls of the calculation tool.
const (
	manufacturerSelect = "#inMManufacturer"
	motorSelect        = "#inMType"
	propDiameterInput  = "#inPDiameter"
	propPitchInput     = "#inPPitch"
	propTypeSelect     = "#inPType"
	escSelect          = "#inEType"
	batterySelect      = "#inBCell"
	weightInput        = "#inGWeight"
	cellsInput         = "#inBS"
	chargeStateSelect  = "#inBChargeState"
	capacityInput      = "#inBCellCap"
	continuousInput    = "#inBCcont"
	speedInput         = "#inPSpeed"

	totalPowerOut   = "#outTotPout"
	driveWeightOut  = "#outTotDriveWeight"
	motorWeightOut  = "#outMWeight"
	motorWeightIn   = "#inMWeight"
	flightThrustOut = "#outPFlightThrust"
	efficiencyTable = "#rpmDynTable"

	calculateFunction = "calculate"
)

// powerOutputs are read in order; the first ready one is the reported power.
var powerOutputs = []string{"#outMaxWin", "#outOptWin", totalPowerOut}

// Calculator runs candidates through the calculation tool.
type Calculator struct {
	cfg    config.CalcConfig
	tol    Tolerance
	snap   browser.Snapshotter
	logger *zap.Logger
}

// New returns a Calculator using cfg's tolerance and timings.
func New(cfg config.CalcConfig, snap browser.Snapshotter, logger *zap.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg,
		tol:    Tolerance{MinWatts: cfg.ToleranceMinWatts, Fraction: cfg.ToleranceFraction},
		snap:   snap,
		logger: logger.Named("calc"),
	}
}

// Calculate runs req with a bounded number of attempts and never fails: the
// returned result holds whatever the attempts produced, with sentinels for
// the rest, and its Attempts field records how each attempt ended.
func (c *Calculator) Calculate(ctx context.Context, sess *session.Session, req Request) CalculationResult {
	res := newResult(req)
	logger := c.logger.With(zap.String("motor", req.MotorName), zap.String("prop", req.PropDiameterRaw+"x"+req.PropPitchRaw))
	maxAttempts := max(1, c.cfg.MaxAttempts)

	for n := 1; n <= maxAttempts; n++ {
		logger.Info("Running calculation.", zap.Int("attempt", n))
		err := c.attempt(ctx, sess, req, &res, logger)
		a := newAttempt(ctx, n, err)
		res.Attempts = append(res.Attempts, a)

		switch a.Outcome {
		case OutcomeSuccess:
			return res
		case OutcomeFatal:
			logger.Warn("Calculation abandoned.", zap.Int("attempt", n), zap.Error(err))
			if ctx.Err() == nil {
				c.snapshot(ctx, sess.Page(), logger)
			}
			return res
		}

		logger.Warn("Calculation attempt failed.", zap.Int("attempt", n), zap.Error(err))
		if n < maxAttempts && sess.EnsureValid(ctx) {
			continue
		}
		if ctx.Err() == nil {
			c.snapshot(ctx, sess.Page(), logger)
		}
		return res
	}
	return res
}

// attempt fills the form once and reads every output into res. Failures of a
// single field are logged and leave that field at its sentinel; only errors
// that make the rest of the form meaningless are returned.
func (c *Calculator) attempt(ctx context.Context, sess *session.Session, req Request, res *CalculationResult, logger *zap.Logger) error {
	if !sess.EnsureValid(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrSessionInvalid
	}
	p := sess.Page()
	if err := c.open(ctx, sess, logger); err != nil {
		return err
	}
	if err := c.waitForm(ctx, sess, logger); err != nil {
		return err
	}

	c.selectManufacturer(ctx, p, req, logger)
	if err := c.selectMotor(ctx, p, req, logger); err != nil {
		return err
	}
	c.fillForm(ctx, p, req, logger)

	if err := p.Call(ctx, calculateFunction); err != nil {
		return fmt.Errorf("triggering calculation: %w", err)
	}
	if err := c.waitResult(ctx, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Calculation results timed out, reading what is available.")
	}

	c.readOutputs(ctx, p, res)
	c.sweep(ctx, p, res, logger)
	c.analyze(ctx, p, req, res, logger)
	return ctx.Err()
}

// open makes sure the calculation tool is loaded, escaping the members'
// landing page by its tool link first and by direct navigation second.
func (c *Calculator) open(ctx context.Context, sess *session.Session, logger *zap.Logger) error {
	p := sess.Page()
	ecfg := sess.Config()
	calcPage := path.Base(ecfg.CalcPath)
	memberArea := path.Dir(ecfg.LoginPath)

	if u, _ := p.URL(ctx); !strings.Contains(u, calcPage) {
		logger.Info("Opening calculator.")
		if err := p.Navigate(ctx, ecfg.CalcURL()); err != nil {
			return fmt.Errorf("opening calculator: %w", err)
		}
	}

	if u, _ := p.URL(ctx); strings.Contains(u, memberArea) {
		logger.Info("On member landing page, following the calculator link.", zap.String("url", u))
		link := fmt.Sprintf("a[href*='%s']", calcPage)
		var err error
		if ok, _ := p.Exists(ctx, link); ok {
			err = p.Click(ctx, link)
		} else {
			err = p.Navigate(ctx, ecfg.CalcURL())
		}
		if err != nil {
			logger.Warn("Calculator link failed.", zap.Error(err))
		}
		if err := browser.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}

	if u, _ := p.URL(ctx); strings.Contains(u, memberArea) {
		logger.Info("Still on member landing page, forcing navigation.")
		if err := p.Navigate(ctx, ecfg.CalcURL()); err != nil {
			return fmt.Errorf("forcing calculator navigation: %w", err)
		}
	}
	return nil
}

func (c *Calculator) waitForm(ctx context.Context, sess *session.Session, logger *zap.Logger) error {
	p := sess.Page()
	err := browser.WaitExists(ctx, p, motorSelect, c.cfg.FormTimeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	u, _ := p.URL(ctx)
	if !strings.Contains(u, path.Base(sess.Config().CalcPath)) {
		logger.Info("Not on the calculator, navigating again.", zap.String("url", u))
		if err := p.Navigate(ctx, sess.Config().CalcURL()); err != nil {
			return fmt.Errorf("%w: %w", ErrFormNotReady, err)
		}
	} else {
		logger.Info("Calculator form missing, reloading.")
		if err := p.Reload(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrFormNotReady, err)
		}
	}
	if err := browser.WaitExists(ctx, p, motorSelect, c.cfg.FormRetryTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrFormNotReady, err)
	}
	return nil
}

func (c *Calculator) selectManufacturer(ctx context.Context, p browser.Page, req Request, logger *zap.Logger) {
	id, name := req.ManufacturerID, req.ManufacturerName
	if id == "" && name == "" {
		return
	}
	choose := func() error {
		_, err := browser.SelectValueOrLabel(ctx, p, manufacturerSelect, id, name)
		return err
	}
	if err := choose(); err != nil {
		logger.Warn("Manufacturer selection failed.", zap.String("id", id), zap.String("name", name), zap.Error(err))
		return
	}
	if err := c.waitMotorList(ctx, p); err == nil {
		return
	}
	logger.Info("Motor list did not populate, selecting the manufacturer again.")
	if err := choose(); err != nil {
		logger.Warn("Manufacturer reselection failed.", zap.Error(err))
		return
	}
	if err := c.waitMotorList(ctx, p); err != nil {
		logger.Warn("Motor list still empty.", zap.Error(err))
	}
}

// waitMotorList waits for the motor select to hold more than its placeholder.
func (c *Calculator) waitMotorList(ctx context.Context, p browser.Page) error {
	return browser.Poll(ctx, c.cfg.MotorListTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		opts, err := p.Options(ctx, motorSelect)
		return len(opts) > 1, err
	})
}

func (c *Calculator) selectMotor(ctx context.Context, p browser.Page, req Request, logger *zap.Logger) error {
	opts, err := p.Options(ctx, motorSelect)
	if err != nil {
		return fmt.Errorf("reading motor list: %w", err)
	}
	opt, err := MatchMotor(opts, MotorQuery{ID: req.MotorID, Name: req.MotorName, Kv: req.MotorKv})
	switch {
	case errors.Is(err, ErrMotorDisabled):
		logger.Warn("Motor found but disabled, access may be restricted to members.", zap.String("option", opt.Label))
		return err
	case err != nil:
		logger.Warn("Motor not found in list.", zap.String("motor_id", req.MotorID), zap.Error(err))
		return err
	}
	if err := p.SelectValue(ctx, motorSelect, opt.Value); err != nil {
		return fmt.Errorf("selecting motor %q: %w", opt.Label, err)
	}
	logger.Info("Selected motor.", zap.String("option", opt.Label))
	return nil
}

// fillForm sets the propeller, drive and battery fields. The diameter is
// checked again at the end since dependent fields can reset it.
func (c *Calculator) fillForm(ctx context.Context, p browser.Page, req Request, logger *zap.Logger) {
	diameter := strings.ReplaceAll(req.PropDiameterRaw, ",", ".")
	pitch := strings.ReplaceAll(req.PropPitchRaw, ",", ".")
	c.fill(ctx, p, propDiameterInput, diameter, logger)
	c.fill(ctx, p, propPitchInput, pitch, logger)

	for _, s := range []struct{ selector, label string }{
		{propTypeSelect, req.PropType},
		{escSelect, req.ESC},
		{batterySelect, req.Battery},
	} {
		if s.label == "" {
			continue
		}
		if _, err := browser.SelectLabel(ctx, p, s.selector, s.label); err != nil {
			logger.Warn("Selection failed.", zap.String("select", s.selector), zap.String("label", s.label), zap.Error(err))
		}
	}

	c.fill(ctx, p, weightInput, req.WeightGrams, logger)
	c.fill(ctx, p, cellsInput, req.BatteryCells, logger)
	if req.ChargeState != "" {
		if _, err := browser.SelectLabel(ctx, p, chargeStateSelect, req.ChargeState); err != nil {
			logger.Warn("Charge state selection failed.", zap.String("label", req.ChargeState), zap.Error(err))
		}
	}
	c.fillIfEnabled(ctx, p, capacityInput, strings.ReplaceAll(req.BatteryCapacity, ",", "."), logger)
	c.fillIfEnabled(ctx, p, continuousInput, strings.ReplaceAll(req.BatteryContinuous, ",", "."), logger)

	if diameter == "" {
		return
	}
	if cur, err := p.Value(ctx, propDiameterInput); err == nil && cur != diameter {
		logger.Info("Prop diameter drifted, refilling.", zap.String("was", cur), zap.String("want", diameter))
		c.fill(ctx, p, propDiameterInput, diameter, logger)
	}
}

func (c *Calculator) fill(ctx context.Context, p browser.Page, selector, value string, logger *zap.Logger) {
	if value == "" {
		return
	}
	if err := p.Fill(ctx, selector, value); err != nil {
		logger.Warn("Could not fill field.", zap.String("field", selector), zap.Error(err))
	}
}

func (c *Calculator) fillIfEnabled(ctx context.Context, p browser.Page, selector, value string, logger *zap.Logger) {
	if value == "" {
		return
	}
	if ok, err := p.Enabled(ctx, selector); err != nil || !ok {
		logger.Debug("Field locked by battery preset.", zap.String("field", selector))
		return
	}
	c.fill(ctx, p, selector, value, logger)
}

func (c *Calculator) waitResult(ctx context.Context, p browser.Page) error {
	return browser.Poll(ctx, c.cfg.ResultTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		text, err := p.Text(ctx, totalPowerOut)
		return ready(text), err
	})
}

// ready reports whether an output holds a computed value rather than the
// page's placeholder.
func ready(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && t != "-" && t != "0"
}

func (c *Calculator) readOutputs(ctx context.Context, p browser.Page, res *CalculationResult) {
	for _, sel := range powerOutputs {
		if text, err := p.Text(ctx, sel); err == nil && ready(text) {
			res.Power = ParseValue(text)
			break
		}
	}
	if text, err := p.Text(ctx, driveWeightOut); err == nil {
		if v := ParseValue(text); v.IsNumber() {
			res.DriveWeight = v
		}
	}
	if text, err := p.Text(ctx, motorWeightOut); err == nil && ready(text) {
		res.MotorWeight = ParseValue(text)
	} else if text, err := p.Value(ctx, motorWeightIn); err == nil {
		res.MotorWeight = ParseValue(text)
	}
	if res.PropDiameter == "" {
		res.PropDiameter, _ = p.Value(ctx, propDiameterInput)
	}
	if res.PropPitch == "" {
		res.PropPitch, _ = p.Value(ctx, propPitchInput)
	}
}

// sweep records the flight thrust at every configured speed. A reading is
// accepted once it is ready and differs from the value shown before the
// speed change; an unchanged but ready value is kept when the wait runs out.
func (c *Calculator) sweep(ctx context.Context, p browser.Page, res *CalculationResult, logger *zap.Logger) {
	speeds := c.cfg.Speeds()
	logger.Info("Running speed sweep.", zap.Ints("speeds", speeds))
	for _, v := range speeds {
		if ctx.Err() != nil {
			return
		}
		before, _ := p.Text(ctx, flightThrustOut)
		if err := c.setSpeed(ctx, p, v); err != nil {
			logger.Warn("Could not set flight speed.", zap.Int("speed", v), zap.Error(err))
			res.TractionBySpeed[v] = Failed()
			continue
		}
		if err := p.Call(ctx, calculateFunction); err != nil {
			logger.Warn("Recalculation failed.", zap.Int("speed", v), zap.Error(err))
			res.TractionBySpeed[v] = Failed()
			continue
		}

		var last string
		err := browser.Poll(ctx, c.cfg.SweepTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
			text, err := p.Text(ctx, flightThrustOut)
			if err != nil {
				return false, err
			}
			last = text
			return ready(text) && text != before, nil
		})
		switch {
		case err == nil:
			res.TractionBySpeed[v] = ParseValue(last)
		case ctx.Err() != nil:
			return
		case errors.Is(err, browser.ErrWaitTimeout) && ready(last):
			res.TractionBySpeed[v] = ParseValue(last)
		case errors.Is(err, browser.ErrWaitTimeout):
			res.TractionBySpeed[v] = TimedOut()
		default:
			res.TractionBySpeed[v] = Failed()
		}
	}
}

// setSpeed writes the speed with dispatched input events, falling back to
// typing it.
func (c *Calculator) setSpeed(ctx context.Context, p browser.Page, kmh int) error {
	v := strconv.Itoa(kmh)
	if err := p.SetValue(ctx, speedInput, v); err != nil {
		return p.Fill(ctx, speedInput, v)
	}
	return nil
}

// analyze resets the speed to zero, waits for the efficiency table and
// answers the target power from it.
func (c *Calculator) analyze(ctx context.Context, p browser.Page, req Request, res *CalculationResult, logger *zap.Logger) {
	if err := c.setSpeed(ctx, p, 0); err != nil {
		logger.Warn("Could not reset flight speed.", zap.Error(err))
	} else if err := p.Call(ctx, calculateFunction); err != nil {
		logger.Warn("Recalculation failed.", zap.Error(err))
	}

	var rows []Row
	err := browser.Poll(ctx, c.cfg.TableTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		html, err := p.OuterHTML(ctx, efficiencyTable)
		if err != nil {
			return false, err
		}
		rows, err = ParseEfficiencyTable(html)
		return len(rows) > 0, err
	})
	if err != nil {
		logger.Warn("Efficiency table not found or empty.", zap.Error(err))
	}
	if len(rows) > 0 {
		res.EffMaxThrottle = EffAtMaxThrottle(rows)
	}
	point := AtPower(rows, req.AnalyzedPower, c.tol)
	res.setTarget(point)
	logger.Info("Efficiency analysed.",
		zap.Int("rows", len(rows)),
		zap.String("mode", string(point.Mode)),
		zap.Stringer("eff_at_power", point.Efficiency))
}

func (c *Calculator) snapshot(ctx context.Context, p browser.Page, logger *zap.Logger) {
	file, err := c.snap.Write(ctx, p, SnapshotError)
	if err != nil {
		logger.Warn("Could not write diagnostic snapshot.", zap.Error(err))
		return
	}
	logger.Info("Wrote diagnostic snapshot.", zap.String("path", file))
}
