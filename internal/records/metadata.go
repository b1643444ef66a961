package records

import (
	"strconv"
	"strings"
)

// MinFields is the smallest accepted metadata row: diameter, pitch,
// manufacturer id, motor id and kv.
const MinFields = 5

// DefaultBrands is the brand vocabulary used to locate the manufacturer name.
// Entries are lowercase substrings; a field matches when it contains one.
// Rows whose brand is not listed are kept with ManufacturerName "Unknown".
var DefaultBrands = []string{
	"t-motor",
	"sunnysky",
	"scorpion",
	"mad",
	"neu",
	"leo",
	"dual",
	"joker",
	"cobra",
	"antigravity",
	"u-series",
}

// Parser parses metadata titles. The zero value is not usable; start from
// DefaultParser and extend Brands as needed.
type Parser struct {
	Brands []string
	// MinDriveWeight is the smallest value (grams) accepted as a drive weight
	// during the backward scan.
	MinDriveWeight float64
	// DriveWeightIndex is the fallback position of the drive weight.
	DriveWeightIndex int
}

// DefaultParser mirrors the setup finder's current title layout.
var DefaultParser = Parser{
	Brands:           DefaultBrands,
	MinDriveWeight:   50,
	DriveWeightIndex: 11,
}

// ParseMetadata parses a title with DefaultParser.
func ParseMetadata(title string) (CandidateRecord, bool) {
	return DefaultParser.Parse(title)
}

// Parse splits the comma-packed title of a grid row. The leading fields are
// positional; the manufacturer name is the last field containing a known
// brand, and the drive weight is the nearest numeric field before it that
// exceeds MinDriveWeight. It returns false for rows without a comma or with
// fewer than MinFields fields.
func (p Parser) Parse(title string) (CandidateRecord, bool) {
	if !strings.Contains(title, ",") {
		return CandidateRecord{}, false
	}
	vals := strings.Split(title, ",")
	for i := range vals {
		vals[i] = strings.TrimSpace(vals[i])
	}
	if len(vals) < MinFields {
		return CandidateRecord{}, false
	}

	manufIdx := p.brandIndex(vals)
	manufName := Unknown
	if manufIdx > 0 {
		manufName = vals[manufIdx]
	}

	rec := CandidateRecord{
		PropDiameterRaw:  vals[0],
		PropPitchRaw:     vals[1],
		ManufacturerID:   vals[2],
		ManufacturerName: manufName,
		MotorID:          vals[3],
		MotorKv:          vals[4],
		MotorName:        vals[3],
		DriveWeight:      p.driveWeight(vals, manufIdx),
		RawMetadata:      title,
	}
	if manufName != Unknown {
		rec.MotorName = manufName + " " + vals[3]
	}
	return rec, true
}

// brandIndex scans from the end down to index 2; the last field is usually a
// version marker and the first two are the propeller dimensions.
func (p Parser) brandIndex(vals []string) int {
	for j := len(vals) - 1; j > 1; j-- {
		low := strings.ToLower(vals[j])
		for _, brand := range p.Brands {
			if strings.Contains(low, brand) {
				return j
			}
		}
	}
	return -1
}

func (p Parser) driveWeight(vals []string, manufIdx int) string {
	if manufIdx > 0 {
		for j := manufIdx - 1; j > 0; j-- {
			if f, ok := plainNumber(vals[j]); ok && f > p.MinDriveWeight {
				return vals[j]
			}
		}
	}
	if p.DriveWeightIndex > 0 && len(vals) > p.DriveWeightIndex {
		if _, ok := plainNumber(vals[p.DriveWeightIndex]); ok {
			return vals[p.DriveWeightIndex]
		}
	}
	return ""
}

// plainNumber accepts digits with at most one dot, the only form the grid
// title uses for masses.
func plainNumber(s string) (float64, bool) {
	if s == "" || strings.Count(s, ".") > 1 {
		return 0, false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
