package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
)

// utf8BOM lets spreadsheet programs detect the encoding.
const utf8BOM = "\ufeff"

// CSVReporter writes the spreadsheet: one row per result, ";" separated,
// sentinel cells as N/A, Timeout, OutOfRange or Error.
type CSVReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewCSVReporter takes ownership of w.
func NewCSVReporter(w io.WriteCloser) *CSVReporter {
	return &CSVReporter{writer: w}
}

// Header lists the spreadsheet columns for run.
func Header(run *Run) []string {
	header := []string{
		"marca", "motor", "preco", "massa[g]", "link",
		"diametro", "passo", "pa",
		"Throttle100Pot[W]", "Throttle100tracao0[g]",
	}
	for _, v := range sweepSpeeds(run) {
		header = append(header, "T100tracao"+strconv.Itoa(v))
	}
	header = append(header, "Throttle100Ef[%]")
	p := "Pot≈" + run.PowerLabel()
	return append(header, p+"Throttle[%]", p+"Pot[W]", p+"Ef[%]", p+"Tracao[g]")
}

// Row renders one result in Header order.
func Row(run *Run, res calc.CalculationResult) []string {
	blades := lo.Ternary(res.PropBlades != "", res.PropBlades, "2")
	row := []string{
		res.Manufacturer,
		lo.Ternary(res.MotorName != "", res.MotorName, "Unknown"),
		"",
		res.Mass().String(),
		"",
		res.PropDiameter,
		res.PropPitch,
		blades,
		res.Power.String(),
		res.Traction(0).String(),
	}
	for _, v := range sweepSpeeds(run) {
		row = append(row, res.Traction(v).String())
	}
	return append(row,
		res.EffMaxThrottle.String(),
		res.ThrottleAtTargetPower.String(),
		res.PowerAtTarget.String(),
		res.EffAtTargetPower.String(),
		res.ThrustAtTargetPower.String(),
	)
}

// sweepSpeeds are the non-zero sweep speeds; zero has its own column.
func sweepSpeeds(run *Run) []int {
	speeds := run.Configuration.Speeds
	if len(speeds) == 0 {
		for _, res := range run.Results {
			speeds = lo.Union(speeds, res.Speeds())
		}
	}
	speeds = lo.Filter(speeds, func(v int, _ int) bool { return v > 0 })
	slices.Sort(speeds)
	return speeds
}

func (r *CSVReporter) Write(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.writer, utf8BOM); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}
	w := csv.NewWriter(r.writer)
	w.Comma = ';'
	if err := w.Write(Header(run)); err != nil {
		return fmt.Errorf("writing spreadsheet header: %w", err)
	}
	for _, res := range run.Results {
		if err := w.Write(Row(run, res)); err != nil {
			return fmt.Errorf("writing spreadsheet row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (r *CSVReporter) Close() error {
	return r.writer.Close()
}
