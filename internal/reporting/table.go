package reporting

import (
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/CodedDrexler/eCalc-Auto/internal/records"
)

// TableReporter prints the summary table; the full sweep is only in the
// spreadsheet.
type TableReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewTableReporter takes ownership of w.
func NewTableReporter(w io.WriteCloser) *TableReporter {
	return &TableReporter{writer: w}
}

func (r *TableReporter) Write(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(r.writer)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetTitle("Run %s: %d setups at %s W", run.ID.String()[:8], len(run.Results), run.PowerLabel())
	t.AppendHeader(table.Row{
		"Marca", "Motor", "Helice", "Passo", "Massa (g)",
		"Pwr (W)", "Eff Max(%)", "Eff Pwr(%)", "Thrst @Pwr(g)", "Trac(0kmh)",
	})
	for _, res := range run.Results {
		t.AppendRow(table.Row{
			res.Manufacturer,
			res.MotorName,
			res.PropDiameter,
			res.PropPitch,
			res.Mass(),
			res.Power,
			res.EffMaxThrottle,
			res.EffAtTargetPower,
			res.ThrustAtTargetPower,
			res.Traction(0),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Colors: text.Colors{text.Bold, text.FgCyan}},
		{Number: 7, Colors: text.Colors{text.Bold, text.FgYellow}},
		{Number: 8, Colors: text.Colors{text.Bold, text.FgYellow}},
		{Number: 10, Colors: text.Colors{text.Bold, text.FgGreen}},
	})
	t.Render()
	return nil
}

func (r *TableReporter) Close() error {
	return r.writer.Close()
}

// PrintSetups lists harvested candidates before any calculation.
func PrintSetups(w io.Writer, setups []records.CandidateRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetTitle("%d setups", len(setups))
	t.AppendHeader(table.Row{"#", "Marca", "Motor", "KV", "Helice", "Passo", "Massa (g)"})
	for i, s := range setups {
		t.AppendRow(table.Row{i + 1, s.ManufacturerName, s.MotorName, s.MotorKv, s.PropDiameterRaw, s.PropPitchRaw, s.DriveWeight})
	}
	t.Render()
}
