// Package reporting writes finished batches: the semicolon separated
// spreadsheet, the last_run_data.json snapshot and the terminal table.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File names inside the output directory.
const (
	SpreadsheetDir = "Planilhas"
	LastRunFile    = "last_run_data.json"
)

// Configuration is the input side of a run as it is saved in the snapshot.
type Configuration struct {
	Inputs        map[string]string `json:"inputs"`
	Limit         int               `json:"limit"`
	Manufacturers []string          `json:"manufacturers,omitempty"`
	Diameter      float64           `json:"diameter,omitempty"`
	ESC           string            `json:"esc_model"`
	Battery       string            `json:"battery_model"`
	PropType      string            `json:"prop_type"`
	ChargeState   string            `json:"battery_charge_state"`
	AnalyzedPower float64           `json:"analyzed_power"`
	Speeds        []int             `json:"speeds"`
}

// Run is one batch: what was asked, which setups were picked and what the
// calculator returned for each.
type Run struct {
	ID            uuid.UUID                 `json:"run_id"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
	Configuration Configuration             `json:"configuration"`
	Setups        []records.CandidateRecord `json:"setups_to_analyze"`
	Results       []calc.CalculationResult  `json:"results"`
}

// NewRun starts a run with a fresh identifier.
func NewRun(cfg Configuration) *Run {
	return &Run{ID: uuid.New(), StartedAt: time.Now().UTC(), Configuration: cfg}
}

// PowerLabel renders the analysed power the way it appears in file names
// and column headers.
func (r *Run) PowerLabel() string {
	return strconv.FormatFloat(r.Configuration.AnalyzedPower, 'f', -1, 64)
}

// SpreadsheetPath is Planilhas/P{power} - N{limit}.csv under dir.
func SpreadsheetPath(dir string, r *Run) string {
	name := fmt.Sprintf("P%s - N%d.csv", r.PowerLabel(), r.Configuration.Limit)
	return filepath.Join(dir, SpreadsheetDir, name)
}

// LastRunPath is the snapshot location under dir.
func LastRunPath(dir string) string {
	return filepath.Join(dir, LastRunFile)
}

// LoadRun reads a snapshot written by the json reporter.
func LoadRun(path string) (*Run, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run snapshot: %w", err)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding run snapshot %s: %w", path, err)
	}
	return &r, nil
}
