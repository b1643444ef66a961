package reporting_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleRun() *reporting.Run {
	run := reporting.NewRun(reporting.Configuration{
		Inputs:        map[string]string{"weight": "18000"},
		Limit:         2,
		AnalyzedPower: 600,
		Speeds:        []int{0, 9, 18},
	})
	full := calc.CalculationResult{
		MotorName:    "MN5008",
		MotorKv:      "340",
		Manufacturer: "T-Motor",
		PropDiameter: "18",
		PropPitch:    "10.0",
		PropBlades:   "2",
		MotorWeight:  calc.ParseValue("380"),
		DriveWeight:  calc.ParseValue("1'250"),
		Power:        calc.ParseValue("612"),
		TractionBySpeed: map[int]calc.Value{
			0:  calc.ParseValue("4000"),
			9:  calc.ParseValue("3820"),
			18: calc.TimedOut(),
		},
		EffMaxThrottle:        calc.Number(76),
		AnalyzedPower:         600,
		PowerAtTarget:         calc.Number(600),
		EffAtTargetPower:      calc.Number(80),
		ThrottleAtTargetPower: calc.Number(75),
		ThrustAtTargetPower:   calc.Number(3000),
		TargetPowerMatchMode:  calc.ModeInterpolated,
	}
	failed := calc.CalculationResult{
		MotorName:             "V804",
		Manufacturer:          "T-Motor",
		PropDiameter:          "20",
		PropPitch:             "6.5",
		TractionBySpeed:       map[int]calc.Value{},
		MotorWeight:           calc.ParseValue("420"),
		PowerAtTarget:         calc.OutOfRange(),
		EffAtTargetPower:      calc.OutOfRange(),
		ThrottleAtTargetPower: calc.OutOfRange(),
		ThrustAtTargetPower:   calc.OutOfRange(),
		TargetPowerMatchMode:  calc.ModeError,
	}
	run.Results = []calc.CalculationResult{full, failed}
	return run
}

func TestNew(t *testing.T) {
	t.Run("Stdout", func(t *testing.T) {
		for _, path := range []string{"", "stdout"} {
			r, err := reporting.New("table", path)
			require.NoError(t, err)
			assert.NoError(t, r.Close())
		}
	})

	t.Run("CreatesParentDirs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "out.csv")
		r, err := reporting.New("csv", path)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.FileExists(t, path)
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.sarif")
		r, err := reporting.New("sarif", path)
		assert.Nil(t, r)
		assert.EqualError(t, err, "unsupported output format: sarif")
		assert.NoFileExists(t, path, "nothing is created for an unknown format")
	})
}

func TestCSVReporter(t *testing.T) {
	run := sampleRun()
	buf := &bufferCloser{}
	r := reporting.NewCSVReporter(buf)
	require.NoError(t, r.Write(run))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "spreadsheet starts with a BOM")

	cr := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff")))
	cr.Comma = ';'
	rows, err := cr.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"marca", "motor", "preco", "massa[g]", "link", "diametro", "passo", "pa",
		"Throttle100Pot[W]", "Throttle100tracao0[g]", "T100tracao9", "T100tracao18",
		"Throttle100Ef[%]", "Pot≈600Throttle[%]", "Pot≈600Pot[W]", "Pot≈600Ef[%]", "Pot≈600Tracao[g]",
	}, rows[0])
	assert.Equal(t, []string{
		"T-Motor", "MN5008", "", "1'250", "", "18", "10.0", "2",
		"612", "4000", "3820", "Timeout",
		"76", "75", "600", "80", "3000",
	}, rows[1])
	assert.Equal(t, []string{
		"T-Motor", "V804", "", "420", "", "20", "6.5", "2",
		"N/A", "N/A", "N/A", "N/A",
		"N/A", "OutOfRange", "OutOfRange", "OutOfRange", "OutOfRange",
	}, rows[2], "mass falls back to the motor weight and blades default to 2")
}

func TestHeaderSpeedsFromResults(t *testing.T) {
	run := sampleRun()
	run.Configuration.Speeds = nil
	assert.Equal(t, []string{"T100tracao9", "T100tracao18"}, reporting.Header(run)[10:12])
}

func TestJSONReporterRoundTrip(t *testing.T) {
	run := sampleRun()
	path := reporting.LastRunPath(t.TempDir())
	require.NoError(t, reporting.FileSink{Format: "json", Path: path}.Publish(context.Background(), run))

	got, err := reporting.LoadRun(path)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Configuration, got.Configuration)
	require.Len(t, got.Results, 2)
	assert.Equal(t, calc.KindTimedOut, got.Results[0].Traction(18).Kind)
	assert.InDelta(t, 3820.0, got.Results[0].Traction(9).Num, 1e-9)
	assert.Equal(t, calc.ModeError, got.Results[1].TargetPowerMatchMode)
}

func TestLoadRunMissing(t *testing.T) {
	_, err := reporting.LoadRun(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTableReporter(t *testing.T) {
	buf := &bufferCloser{}
	require.NoError(t, reporting.NewTableReporter(buf).Write(sampleRun()))
	out := buf.String()
	for _, want := range []string{"Marca", "MN5008", "V804", "1'250", "612", "OutOfRange", "N/A"} {
		assert.Contains(t, out, want)
	}
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, *reporting.Run) error { return f.err }

func TestPublishAll(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun()
	sinks := reporting.FileSinks(dir, []string{"csv", "json", "table"}, run)
	require.Len(t, sinks, 2)

	require.NoError(t, reporting.PublishAll(context.Background(), zaptest.NewLogger(t), run, sinks...))
	assert.FileExists(t, filepath.Join(dir, "Planilhas", "P600 - N2.csv"))
	assert.FileExists(t, filepath.Join(dir, "last_run_data.json"))

	boom := errors.New("disk full")
	err := reporting.PublishAll(context.Background(), zaptest.NewLogger(t), run, append(sinks, failingSink{boom})...)
	assert.ErrorIs(t, err, boom)
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	r, err := reporting.NewWriter("json", &buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleRun()))
	require.NoError(t, r.Close())
	assert.Contains(t, buf.String(), `"run_id"`)

	_, err = reporting.NewWriter("xml", &buf)
	assert.EqualError(t, err, "unsupported output format: xml")
}

func TestPrintSetups(t *testing.T) {
	var buf bytes.Buffer
	reporting.PrintSetups(&buf, []records.CandidateRecord{
		{ManufacturerName: "T-Motor", MotorName: "MN5008", MotorKv: "340", PropDiameterRaw: "18", PropPitchRaw: "10.0", DriveWeight: "1250"},
		{ManufacturerName: "Scorpion", MotorName: "SII-4020", MotorKv: "420", PropDiameterRaw: "16", PropPitchRaw: "8.0"},
	})
	out := buf.String()
	assert.Contains(t, out, "2 setups")
	for _, want := range []string{"Marca", "MN5008", "SII-4020", "340", "10.0", "1250"} {
		assert.Contains(t, out, want)
	}
}
