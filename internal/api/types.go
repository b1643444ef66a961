package api

import (
	"bytes"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Field is a setup finder value. Clients may send it as a JSON string or a
// number; it is kept as the text typed into the form.
type Field string

func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", b)
	}
	*f = Field(b)
	return nil
}

// SetupFinderInput is the body of POST /api/calculate.
type SetupFinderInput struct {
	Weight       Field `json:"weight"`
	Wingspan     Field `json:"wingspan"`
	WingArea     Field `json:"wing_area"`
	Speed        Field `json:"speed"`
	Thrust       Field `json:"thrust"`
	BatteryCells Field `json:"battery_cells"`
	WingType     Field `json:"wing_type"`
}

// DefaultWingType is used when the request leaves wing_type out.
const DefaultWingType = "Monoplano"

// Inputs maps the body onto setup finder field names. Missing lists the
// required fields that are empty.
func (in SetupFinderInput) Inputs() (inputs map[string]string, missing []string) {
	required := []struct {
		name  string
		value Field
	}{
		{"weight", in.Weight},
		{"wingspan", in.Wingspan},
		{"wing_area", in.WingArea},
		{"speed", in.Speed},
		{"thrust", in.Thrust},
		{"battery_cells", in.BatteryCells},
	}
	inputs = make(map[string]string, len(required)+1)
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
			continue
		}
		inputs[r.name] = string(r.value)
	}
	inputs["wing_type"] = DefaultWingType
	if in.WingType != "" {
		inputs["wing_type"] = string(in.WingType)
	}
	return inputs, missing
}

// MotorResult is one calculated setup in the response. Fields the page did
// not yield carry the sentinel label ("N/A", "Timeout", ...).
type MotorResult struct {
	MotorName       string `json:"motor_name"`
	Manufacturer    string `json:"manufacturer"`
	PropDiameter    string `json:"prop_diam"`
	PropPitch       string `json:"prop_pitch"`
	Power           string `json:"power"`
	Traction        string `json:"traction"`
	MotorWeight     string `json:"motor_weight"`
	DriveWeight     string `json:"drive_weight"`
	EffAtPower      string `json:"eff_at_power"`
	TargetPowerMode string `json:"target_power_match_mode,omitempty"`
}

// NewMotorResult flattens res; traction is the static thrust.
func NewMotorResult(res calc.CalculationResult) MotorResult {
	return MotorResult{
		MotorName:       res.MotorName,
		Manufacturer:    res.Manufacturer,
		PropDiameter:    res.PropDiameter,
		PropPitch:       res.PropPitch,
		Power:           res.Power.String(),
		Traction:        res.Traction(0).String(),
		MotorWeight:     res.MotorWeight.String(),
		DriveWeight:     res.DriveWeight.String(),
		EffAtPower:      res.EffAtTargetPower.String(),
		TargetPowerMode: string(res.TargetPowerMatchMode),
	}
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Detail string `json:"detail"`
}
