package harvest

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
)

// Logical input names that are not plain text fields.
const (
	FieldFlightPlan = "flight_plan"
	FieldWingType   = "wing_type"
)

const (
	flightPlanSelect = "#inPerfMission"
	wingTypeSelect   = "#inAcWingTyp"
)

// FieldIDs maps the logical input names to the setup finder element ids.
var FieldIDs = map[string]string{
	"weight":            "inAcAuw",
	"wingspan":          "inAcSpan",
	"wing_area":         "inGWingArea",
	"speed":             "inPerfSpeed",
	"thrust":            "inPerfThrust",
	"flight_time":       "inPerfTime",
	"battery_cells":     "inBS",
	"battery_voltage":   "inBCellV",
	"motors":            "inGMotors",
	"max_weight":        "inMWeightMax",
	"max_prop_diameter": "inPDiameter",
	"prop_blades":       "inPBlades",
	"elevation":         "inGElevation",
	"temperature":       "inGTemp",
}

// Inputs are the setup finder values keyed by logical name. Unknown keys are
// ignored.
type Inputs map[string]string

// fillForm sets the flight plan first, because choosing one pre-populates
// several text fields, then the wing type, then every mapped text field.
// Fields that cannot be set are logged and left at the page default.
func (h *Harvester) fillForm(ctx context.Context, p browser.Page, in Inputs) error {
	if v := in[FieldFlightPlan]; v != "" {
		h.logger.Info("Selecting flight plan.", zap.String("flight_plan", v))
		if _, err := browser.SelectLabel(ctx, p, flightPlanSelect, v); err != nil {
			h.logger.Warn("Could not select flight plan.", zap.Error(err))
		} else if err := browser.Sleep(ctx, h.cfg.FlightPlanSettle); err != nil {
			return err
		}
	}

	if v := in[FieldWingType]; v != "" {
		if err := browser.WaitExists(ctx, p, wingTypeSelect, h.cfg.FieldTimeout); err != nil {
			h.logger.Warn("Wing type select missing.", zap.Error(err))
		} else if _, err := browser.SelectValueOrLabel(ctx, p, wingTypeSelect, v, v); err != nil {
			h.logger.Warn("Could not select wing type.", zap.String("wing_type", v), zap.Error(err))
		}
	}

	for _, key := range slices.Sorted(maps.Keys(in)) {
		id, ok := FieldIDs[key]
		if !ok {
			continue
		}
		if err := h.fillField(ctx, p, "#"+id, in[key]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Warn("Could not fill field.", zap.String("field", key), zap.String("id", id), zap.Error(err))
			continue
		}
		h.logger.Debug("Filled field.", zap.String("field", key), zap.String("value", in[key]))
	}
	return nil
}

// fillField focuses, fills and tabs out so the page's change handlers run.
func (h *Harvester) fillField(ctx context.Context, p browser.Page, selector, value string) error {
	if err := browser.WaitExists(ctx, p, selector, h.cfg.FieldTimeout); err != nil {
		return err
	}
	if err := p.Focus(ctx, selector); err != nil {
		return err
	}
	if err := p.Fill(ctx, selector, value); err != nil {
		return err
	}
	if err := p.Press(ctx, browser.KeyTab); err != nil {
		return err
	}
	return browser.Sleep(ctx, h.cfg.KeyInterval)
}
