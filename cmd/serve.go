package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/api"
	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
)

// newServeCmd creates the `serve` command exposing the pipeline over HTTP.
func newServeCmd(launch browserLauncher) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the setup finder and calculator as an HTTP API",
		Long: `Starts an HTTP server with two routes:

  GET  /               health status
  POST /api/calculate  setup finder inputs in, calculated setups out

Each request opens its own browser on the shared profile, so calculations
run one at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			srv := api.NewServer(cfg.Serve, servePipeline(cfg, logger, launch), logger)
			return srv.ListenAndServe(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	return serveCmd
}

// servePipeline runs login, harvest and calculation for one API request.
// The request inputs override the configured setup finder inputs.
func servePipeline(cfg *config.Config, logger *zap.Logger, launch browserLauncher) api.Pipeline {
	return func(ctx context.Context, inputs map[string]string, limit int) ([]calc.CalculationResult, error) {
		sess, cleanup, err := openSession(ctx, cfg, logger, launch)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		reqCfg := *cfg
		reqCfg.Harvest.Limit = limit
		merged := mergeInputs(cfg.Harvest.Inputs, inputs)

		setups, err := harvestSetups(ctx, &reqCfg, logger, sess, merged)
		if err != nil {
			return nil, err
		}
		if len(setups) == 0 {
			return []calc.CalculationResult{}, nil
		}

		calculator := calc.New(cfg.Calc, snapshotter(cfg), logger)
		return calculator.Run(ctx, sess, calc.NewRequests(setups, cfg.Calc, merged), nil)
	}
}
