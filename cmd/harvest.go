package cmd

import (
	"context"
	"fmt"
	"maps"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/harvest"
	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

// addHarvestFlags registers the search and filter flags shared by harvest
// and run. The returned map receives the --input overrides.
func addHarvestFlags(cmd *cobra.Command) *map[string]string {
	inputs := map[string]string{}
	f := cmd.Flags()
	f.Int("limit", 0, "number of setups to keep after filtering")
	f.StringSlice("manufacturers", nil, `manufacturer terms matched against brand and motor name ("all" disables the filter)`)
	f.Float64("diameter", 0, "keep only propellers of this diameter in inches (0 disables)")
	f.StringToStringVar(&inputs, "input", nil, "setup finder value as name=value, repeatable (e.g. --input weight=18000)")
	return &inputs
}

// mergeInputs overlays the flag values on the configured inputs.
func mergeInputs(base, overrides map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, overrides)
	return out
}

func criteriaFor(cfg *config.Config) records.Criteria {
	return records.Criteria{Manufacturers: cfg.Filter.Manufacturers, Diameter: cfg.Filter.Diameter}
}

// harvestSetups runs the setup finder, filters the rows and keeps the first
// harvest.limit matches.
func harvestSetups(ctx context.Context, cfg *config.Config, logger *zap.Logger, sess *session.Session, inputs map[string]string) ([]records.CandidateRecord, error) {
	criteria := criteriaFor(cfg)
	h := harvest.New(cfg.Harvest, snapshotter(cfg), logger)

	recs, err := h.Harvest(ctx, sess, inputs, harvest.EffectiveLimit(cfg.Harvest.Limit, criteria.Active()))
	if err != nil {
		return nil, fmt.Errorf("harvest failed: %w", err)
	}

	filtered := records.Filter(recs, criteria)
	logger.Info("Filtered setups.",
		zap.Int("harvested", len(recs)),
		zap.Int("matching", len(filtered)),
		zap.Strings("manufacturers", cfg.Filter.Manufacturers),
		zap.Float64("diameter", cfg.Filter.Diameter),
	)
	if len(filtered) > cfg.Harvest.Limit {
		filtered = filtered[:cfg.Harvest.Limit]
	}
	return filtered, nil
}

// newHarvestCmd creates the `harvest` command.
func newHarvestCmd(launch browserLauncher) *cobra.Command {
	harvestCmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run the setup finder and list the matching setups without calculating them",
		Args:  cobra.NoArgs,
	}
	inputs := addHarvestFlags(harvestCmd)

	harvestCmd.RunE = func(cmd *cobra.Command, args []string) error {
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

		setups, err := harvestSetups(ctx, cfg, logger, sess, mergeInputs(cfg.Harvest.Inputs, *inputs))
		if err != nil {
			return err
		}
		if len(setups) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No setups matched the filters.")
			return nil
		}
		reporting.PrintSetups(cmd.OutOrStdout(), setups)
		return nil
	}
	return harvestCmd
}
