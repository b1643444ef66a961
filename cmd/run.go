package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

// newRunCmd creates the `run` command: harvest, filter, calculate each
// setup and publish the reports.
func newRunCmd(launch browserLauncher, stores storeProvider) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest setups, calculate each one and write the reports",
		Args:  cobra.NoArgs,
	}
	inputs := addHarvestFlags(runCmd)
	f := runCmd.Flags()
	f.Float64("power", 0, "electrical power in W at which efficiency and thrust are analysed")
	f.String("esc", "", "ESC model label")
	f.String("battery", "", "battery model label")
	f.String("prop-type", "", "propeller type label")
	f.String("charge-state", "", "battery charge state: cheia, normal or baixa")
	f.StringSlice("formats", nil, "report formats: csv, json, table")

	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.GetLogger()

		cfg, err := getConfigFromContext(ctx)
		if err != nil {
			return err
		}

		sess, cleanup, err := openSession(ctx, cfg, logger, launch)
		if err != nil {
			return err
		}
		defer cleanup()

		return runBatch(ctx, logger, cfg, sess, mergeInputs(cfg.Harvest.Inputs, *inputs), stores, cmd.OutOrStdout())
	}
	return runCmd
}

// runBatch is the body of the run command once a session is open.
// Interrupted batches still publish the results computed so far.
func runBatch(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	sess *session.Session,
	inputs map[string]string,
	stores storeProvider,
	out io.Writer,
) error {
	setups, err := harvestSetups(ctx, cfg, logger, sess, inputs)
	if err != nil {
		return err
	}
	if len(setups) == 0 {
		logger.Warn("No setups to analyze.")
		fmt.Fprintln(out, "No setups matched the filters; nothing to calculate.")
		return nil
	}

	run := reporting.NewRun(runConfiguration(cfg, inputs))
	run.Setups = setups
	logger.Info("Starting batch.", zap.Stringer("run_id", run.ID), zap.Int("setups", len(setups)))

	calculator := calc.New(cfg.Calc, snapshotter(cfg), logger)
	reqs := calc.NewRequests(setups, cfg.Calc, inputs)
	results, runErr := calculator.Run(ctx, sess, reqs, func(done, total int, res calc.CalculationResult) {
		fmt.Fprintf(out, "[%d/%d] %s\n", done, total, progressLine(res))
	})
	run.Results = results
	run.FinishedAt = time.Now().UTC()
	if runErr != nil {
		logger.Warn("Batch interrupted; saving partial results.", zap.Int("done", len(results)), zap.Error(runErr))
	}

	// Publishing must survive the cancellation that interrupted the batch.
	pubCtx := context.WithoutCancel(ctx)
	sinks := reporting.FileSinks(cfg.Report.OutputDir, cfg.Report.Formats, run)
	if cfg.Database.URL != "" {
		s, closeStore, err := stores.Create(pubCtx, cfg, logger)
		if err != nil {
			logger.Error("Run will not be saved to the database.", zap.Error(err))
		} else {
			defer closeStore()
			if err := s.EnsureSchema(pubCtx); err != nil {
				logger.Error("Run will not be saved to the database.", zap.Error(err))
			} else {
				sinks = append(sinks, s)
			}
		}
	}
	pubErr := reporting.PublishAll(pubCtx, logger, run, sinks...)

	if slices.Contains(cfg.Report.Formats, "table") {
		if t, err := reporting.NewWriter("table", out); err == nil {
			_ = t.Write(run)
		}
	}
	if slices.Contains(cfg.Report.Formats, "csv") {
		fmt.Fprintf(out, "Spreadsheet: %s\n", reporting.SpreadsheetPath(cfg.Report.OutputDir, run))
	}
	fmt.Fprintf(out, "Run ID: %s\n", run.ID)

	return errors.Join(runErr, pubErr)
}

func runConfiguration(cfg *config.Config, inputs map[string]string) reporting.Configuration {
	return reporting.Configuration{
		Inputs:        inputs,
		Limit:         cfg.Harvest.Limit,
		Manufacturers: cfg.Filter.Manufacturers,
		Diameter:      cfg.Filter.Diameter,
		ESC:           cfg.Calc.ESC,
		Battery:       cfg.Calc.Battery,
		PropType:      cfg.Calc.PropType,
		ChargeState:   cfg.Calc.ChargeState,
		AnalyzedPower: cfg.Calc.AnalyzedPower,
		Speeds:        cfg.Calc.Speeds(),
	}
}

func progressLine(res calc.CalculationResult) string {
	name := fmt.Sprintf("%s %s %sx%s", res.Manufacturer, res.MotorName, res.PropDiameter, res.PropPitch)
	if res.Succeeded() {
		return fmt.Sprintf("%s: %s W, %s g static", name, res.Power, res.Traction(0))
	}
	cause := "failed"
	if n := len(res.Attempts); n > 0 && res.Attempts[n-1].Cause != "" {
		cause = res.Attempts[n-1].Cause
	}
	return fmt.Sprintf("%s: %s", name, cause)
}
