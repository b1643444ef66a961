package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
	"github.com/CodedDrexler/eCalc-Auto/internal/store"
)

type fakeStore struct {
	runs      map[uuid.UUID]*reporting.Run
	published []*reporting.Run
	schemaErr error
}

func (f *fakeStore) Publish(_ context.Context, run *reporting.Run) error {
	f.published = append(f.published, run)
	return nil
}

func (f *fakeStore) EnsureSchema(context.Context) error { return f.schemaErr }

func (f *fakeStore) LoadRun(_ context.Context, id uuid.UUID) (*reporting.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
	}
	return run, nil
}

type fakeProvider struct {
	store   *fakeStore
	err     error
	created int
}

func (p *fakeProvider) Create(context.Context, *config.Config, *zap.Logger) (runStore, func(), error) {
	p.created++
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() {}, nil
}

// noBrowser fails the test if a command tries to start Chrome.
func noBrowser(t *testing.T) browserLauncher {
	return func(context.Context, config.BrowserConfig, *zap.Logger) (tab, error) {
		t.Error("browser must not be started")
		return nil, errors.New("unexpected launch")
	}
}

// isolate runs the test in an empty directory without ECALC_* credentials
// so no local config.yaml or credentials.json leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ECALC_EMAIL", "")
	t.Setenv("ECALC_PASSWORD", "")
	t.Setenv("ECALC_DATABASE_URL", "")
	return dir
}

func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// captureConfig replaces the RunE of the named subcommand and returns a
// pointer that receives the loaded configuration.
func captureConfig(t *testing.T, root *cobra.Command, name string) **config.Config {
	t.Helper()
	sub, _, err := root.Find([]string{name})
	require.NoError(t, err)
	var got *config.Config
	sub.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		got = cfg
		return err
	}
	return &got
}

func sampleRun() *reporting.Run {
	run := reporting.NewRun(reporting.Configuration{Limit: 1, AnalyzedPower: 600, Speeds: []int{0, 9}})
	run.Results = []calc.CalculationResult{{
		MotorName:       "MN5008",
		Manufacturer:    "T-Motor",
		PropDiameter:    "18",
		PropPitch:       "10.0",
		Power:           calc.Number(612),
		TractionBySpeed: map[int]calc.Value{0: calc.Number(4000), 9: calc.TimedOut()},
	}}
	return run
}

func TestVersion(t *testing.T) {
	isolate(t)

	for _, args := range [][]string{{"version"}, {"--version"}} {
		out, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), args...)
		require.NoError(t, err)
		assert.Equal(t, "ecalc version "+Version+"\n", out)
	}
}

func TestConfigFlagOverride(t *testing.T) {
	dir := isolate(t)
	configFile := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
harvest:
  limit: 3
calc:
  analyzed_power: 450
  esc: "max 60A"
filter:
  diameter: 18
`), 0o644))

	root := newRootCommand(noBrowser(t), &fakeProvider{})
	got := captureConfig(t, root, "run")

	_, err := executeCommand(t, root, "-c", configFile, "run", "--limit", "5", "--manufacturers", "all", "--charge-state", "normal")
	require.NoError(t, err)
	cfg := *got
	require.NotNil(t, cfg)

	assert.Equal(t, 5, cfg.Harvest.Limit, "flag beats the config file")
	assert.Equal(t, 450.0, cfg.Calc.AnalyzedPower, "config file beats the default")
	assert.Equal(t, "max 60A", cfg.Calc.ESC)
	assert.Equal(t, "normal", cfg.Calc.ChargeState)
	assert.Equal(t, []string{"all"}, cfg.Filter.Manufacturers)
	assert.Equal(t, 18.0, cfg.Filter.Diameter)
	assert.Equal(t, "LiPo 3300mAh - 45/60C", cfg.Calc.Battery, "unset values keep their default")
}

func TestEnvironmentOverride(t *testing.T) {
	isolate(t)
	t.Setenv("ECALC_HARVEST_LIMIT", "7")
	t.Setenv("ECALC_EMAIL", "pilot@example.com")
	t.Setenv("ECALC_DATABASE_URL", "postgres://u:p@localhost/ecalc")

	root := newRootCommand(noBrowser(t), &fakeProvider{})
	got := captureConfig(t, root, "harvest")

	_, err := executeCommand(t, root, "harvest")
	require.NoError(t, err)
	cfg := *got
	assert.Equal(t, 7, cfg.Harvest.Limit)
	assert.Equal(t, "pilot@example.com", cfg.ECalc.Email)
	assert.Equal(t, "postgres://u:p@localhost/ecalc", cfg.Database.URL)
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)
	_, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "run", "--limit", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harvest.limit must be a positive integer")
}

func TestLogin(t *testing.T) {
	t.Run("MissingCredentials", func(t *testing.T) {
		dir := isolate(t)
		_, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "login", "--output-dir", dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrNoCredentials)
		assert.Contains(t, err.Error(), "ECALC_EMAIL")
	})

	t.Run("BrowserFailsToStart", func(t *testing.T) {
		isolate(t)
		t.Setenv("ECALC_EMAIL", "pilot@example.com")
		t.Setenv("ECALC_PASSWORD", "secret")

		launchErr := errors.New("chrome not found")
		launched := 0
		launch := func(context.Context, config.BrowserConfig, *zap.Logger) (tab, error) {
			launched++
			return nil, launchErr
		}
		_, err := executeCommand(t, newRootCommand(launch, &fakeProvider{}), "login")
		assert.ErrorIs(t, err, launchErr)
		assert.Equal(t, 1, launched)
	})
}

func TestReport(t *testing.T) {
	t.Run("LastRun", func(t *testing.T) {
		dir := isolate(t)
		run := sampleRun()
		require.NoError(t, reporting.FileSink{Format: "json", Path: reporting.LastRunPath(dir)}.Publish(context.Background(), run))

		out, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "report", "--output-dir", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "MN5008")
		assert.Contains(t, out, "612")

		out, err = executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "report", "--output-dir", dir, "-f", "csv")
		require.NoError(t, err)
		assert.Contains(t, out, "marca;motor")
		assert.Contains(t, out, "Timeout")

		path := filepath.Join(dir, "again.csv")
		_, err = executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "report", "--output-dir", dir, "-f", "csv", "-o", path)
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("NoLastRun", func(t *testing.T) {
		dir := isolate(t)
		_, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "report", "--output-dir", dir)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("StoredRun", func(t *testing.T) {
		isolate(t)
		run := sampleRun()
		provider := &fakeProvider{store: &fakeStore{runs: map[uuid.UUID]*reporting.Run{run.ID: run}}}

		out, err := executeCommand(t, newRootCommand(noBrowser(t), provider), "report", "--run-id", run.ID.String(), "-f", "json")
		require.NoError(t, err)
		assert.Contains(t, out, run.ID.String())
		assert.Equal(t, 1, provider.created)
	})

	t.Run("UnknownStoredRun", func(t *testing.T) {
		isolate(t)
		provider := &fakeProvider{store: &fakeStore{}}
		_, err := executeCommand(t, newRootCommand(noBrowser(t), provider), "report", "--run-id", uuid.NewString())
		assert.ErrorIs(t, err, store.ErrRunNotFound)
	})

	t.Run("InvalidRunID", func(t *testing.T) {
		isolate(t)
		provider := &fakeProvider{}
		_, err := executeCommand(t, newRootCommand(noBrowser(t), provider), "report", "--run-id", "not-a-uuid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid run id")
		assert.Zero(t, provider.created, "no connection for a malformed id")
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		isolate(t)
		provider := &fakeProvider{err: errors.New("database URL is not configured (ECALC_DATABASE_URL)")}
		_, err := executeCommand(t, newRootCommand(noBrowser(t), provider), "report", "--run-id", uuid.NewString())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize store")
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, reporting.FileSink{Format: "json", Path: reporting.LastRunPath(dir)}.Publish(context.Background(), sampleRun()))
		_, err := executeCommand(t, newRootCommand(noBrowser(t), &fakeProvider{}), "report", "--output-dir", dir, "-f", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format: xml")
	})
}

func TestDefaultStoreProviderRequiresURL(t *testing.T) {
	cfg := config.NewDefaultConfig()
	_, _, err := NewStoreProvider().Create(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ECALC_DATABASE_URL")
}

func TestMergeInputs(t *testing.T) {
	base := map[string]string{"weight": "18000", "battery_cells": "6"}
	got := mergeInputs(base, map[string]string{"weight": "12000", "temperature": "25"})

	assert.Equal(t, map[string]string{"weight": "12000", "battery_cells": "6", "temperature": "25"}, got)
	assert.Equal(t, "18000", base["weight"], "the configured inputs are not modified")
	assert.Equal(t, map[string]string{"speed": "1"}, mergeInputs(nil, map[string]string{"speed": "1"}))
}

func TestRunConfiguration(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Harvest.Limit = 4
	inputs := map[string]string{"weight": "9000"}

	got := runConfiguration(cfg, inputs)
	assert.Equal(t, 4, got.Limit)
	assert.Equal(t, inputs, got.Inputs)
	assert.Equal(t, 600.0, got.AnalyzedPower)
	assert.Equal(t, "cheia", got.ChargeState)
	require.NotEmpty(t, got.Speeds)
	assert.Equal(t, 0, got.Speeds[0])
	assert.Equal(t, 135, got.Speeds[len(got.Speeds)-1])
}

func TestProgressLine(t *testing.T) {
	res := sampleRun().Results[0]
	res.Attempts = []calc.Attempt{{Number: 1, Outcome: calc.OutcomeSuccess}}
	assert.Equal(t, "T-Motor MN5008 18x10.0: 612 W, 4000 g static", progressLine(res))

	res.Attempts = []calc.Attempt{{Number: 1, Outcome: calc.OutcomeFatal, Cause: "motor option is disabled"}}
	assert.Equal(t, "T-Motor MN5008 18x10.0: motor option is disabled", progressLine(res))
}

func TestServe(t *testing.T) {
	t.Run("AddrFlag", func(t *testing.T) {
		isolate(t)
		root := newRootCommand(noBrowser(t), &fakeProvider{})
		got := captureConfig(t, root, "serve")

		_, err := executeCommand(t, root, "serve", "--addr", "127.0.0.1:9001")
		require.NoError(t, err)
		cfg := *got
		assert.Equal(t, "127.0.0.1:9001", cfg.Serve.ListenAddr)
		assert.Equal(t, 10, cfg.Serve.Limit)
	})

	t.Run("PipelineReportsLaunchFailure", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.ECalc.Email = "pilot@example.com"
		cfg.ECalc.Password = "secret"

		launchErr := errors.New("chrome not found")
		launch := func(context.Context, config.BrowserConfig, *zap.Logger) (tab, error) {
			return nil, launchErr
		}
		results, err := servePipeline(cfg, zap.NewNop(), launch)(context.Background(), map[string]string{"weight": "9000"}, 3)
		assert.ErrorIs(t, err, launchErr)
		assert.Nil(t, results)
		assert.Equal(t, 1, cfg.Harvest.Limit, "the per-request limit does not leak into the shared config")
	})
}
