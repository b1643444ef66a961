package calc

import (
	"maps"
	"slices"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
)

// Request is a harvested candidate plus the fixed parts of the calculation
// form.
type Request struct {
	records.CandidateRecord

	ESC         string
	Battery     string
	PropType    string
	ChargeState string
	// WeightGrams and BatteryCells are typed into the form as given.
	WeightGrams  string
	BatteryCells string
	// BatteryCapacity and BatteryContinuous come from calc.battery_capacity
	// and calc.battery_continuous and are only written when the page leaves
	// those fields editable.
	BatteryCapacity   string
	BatteryContinuous string
	PropBlades        string
	AnalyzedPower     float64
}

// NewRequest merges rec with the calculation settings and the setup finder
// inputs it was harvested with.
func NewRequest(rec records.CandidateRecord, cfg config.CalcConfig, inputs map[string]string) Request {
	blades := inputs["prop_blades"]
	if blades == "" {
		blades = "2"
	}
	return Request{
		CandidateRecord:   rec,
		ESC:               cfg.ESC,
		Battery:           cfg.Battery,
		PropType:          cfg.PropType,
		ChargeState:       cfg.ChargeState,
		WeightGrams:       inputs["weight"],
		BatteryCells:      inputs["battery_cells"],
		BatteryCapacity:   cfg.BatteryCapacity,
		BatteryContinuous: cfg.BatteryContinuous,
		PropBlades:        blades,
		AnalyzedPower:     cfg.AnalyzedPower,
	}
}

// CalculationResult is always returned by Calculate. Fields the page did not
// yield keep a sentinel Value.
type CalculationResult struct {
	MotorName    string `json:"motor"`
	MotorKv      string `json:"kv"`
	Manufacturer string `json:"manufacturer"`
	PropDiameter string `json:"prop_diam"`
	PropPitch    string `json:"prop_pitch"`
	PropBlades   string `json:"prop_blades"`

	MotorWeight Value `json:"motor_weight"`
	DriveWeight Value `json:"drive_weight"`
	Power       Value `json:"power"`
	// TractionBySpeed maps flight speed in km/h to thrust in grams.
	TractionBySpeed map[int]Value `json:"traction_by_speed"`

	EffMaxThrottle        Value     `json:"eff_max_throttle"`
	AnalyzedPower         float64   `json:"analyzed_power"`
	PowerAtTarget         Value     `json:"power_at_eff"`
	EffAtTargetPower      Value     `json:"eff_at_power"`
	ThrottleAtTargetPower Value     `json:"thr_at_power"`
	ThrustAtTargetPower   Value     `json:"thrust_at_power"`
	TargetPowerMatchMode  MatchMode `json:"target_power_match_mode"`

	Attempts []Attempt `json:"attempts"`
}

func newResult(req Request) CalculationResult {
	return CalculationResult{
		MotorName:       req.MotorName,
		MotorKv:         req.MotorKv,
		Manufacturer:    req.ManufacturerName,
		PropDiameter:    req.PropDiameterRaw,
		PropPitch:       req.PropPitchRaw,
		PropBlades:      req.PropBlades,
		DriveWeight:     ParseValue(req.DriveWeight),
		TractionBySpeed: map[int]Value{},
		AnalyzedPower:   req.AnalyzedPower,
	}
}

// Traction returns the thrust recorded at speed, NotAvailable if none.
func (r CalculationResult) Traction(speed int) Value {
	return r.TractionBySpeed[speed]
}

// Speeds lists the recorded sweep speeds in ascending order.
func (r CalculationResult) Speeds() []int {
	return slices.Sorted(maps.Keys(r.TractionBySpeed))
}

// Mass is the drive weight, or the motor weight when the drive weight is
// unknown.
func (r CalculationResult) Mass() Value {
	if r.DriveWeight.IsNumber() {
		return r.DriveWeight
	}
	return r.MotorWeight
}

// Succeeded reports whether the last attempt completed.
func (r CalculationResult) Succeeded() bool {
	return len(r.Attempts) > 0 && r.Attempts[len(r.Attempts)-1].Outcome == OutcomeSuccess
}

func (r *CalculationResult) setTarget(p PowerPoint) {
	r.TargetPowerMatchMode = p.Mode
	r.PowerAtTarget = p.Power
	r.EffAtTargetPower = p.Efficiency
	r.ThrottleAtTargetPower = p.Throttle
	r.ThrustAtTargetPower = p.Thrust
}
