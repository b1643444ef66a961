// Package records turns the setup finder's packed metadata strings into
// candidate records and filters them by manufacturer and propeller diameter.
// Everything here is pure; no browser access.
package records

// Unknown is the manufacturer name used when no known brand is found.
const Unknown = "Unknown"

// CandidateRecord is one harvested motor and propeller combination.
type CandidateRecord struct {
	PropDiameterRaw  string `json:"prop_diam"`
	PropPitchRaw     string `json:"prop_pitch"`
	ManufacturerID   string `json:"manufacturer_id"`
	ManufacturerName string `json:"manufacturer"`
	MotorID          string `json:"motor_id"`
	MotorKv          string `json:"motor_kv"`
	MotorName        string `json:"motor_name"`
	// DriveWeight is the raw grams string, empty when it could not be located.
	DriveWeight string `json:"drive_weight"`
	RawMetadata string `json:"raw_metadata"`
}

// Key identifies a candidate within one harvest run.
type Key struct {
	MotorID      string
	PropDiameter string
	PropPitch    string
}

// Key returns the identity key (motor id, diameter, pitch).
func (c CandidateRecord) Key() Key {
	return Key{MotorID: c.MotorID, PropDiameter: c.PropDiameterRaw, PropPitch: c.PropPitchRaw}
}
