package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
	"github.com/CodedDrexler/eCalc-Auto/internal/reporting"
	"github.com/CodedDrexler/eCalc-Auto/internal/store"
)

// runStore is the part of the store the commands use.
type runStore interface {
	reporting.Sink
	EnsureSchema(ctx context.Context) error
	LoadRun(ctx context.Context, id uuid.UUID) (*reporting.Run, error)
}

// storeProvider creates the run store. Tests inject a fake instead of a
// live database connection.
type storeProvider interface {
	// Create returns the store, a cleanup function releasing its resources,
	// and an error if the connection fails.
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (runStore, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (ECALC_DATABASE_URL)")
	}

	s, err := store.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cleanup := func() {
		s.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// newReportCmd creates the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var runID string
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Render a finished run again",
		Long: `Loads a run from the database when --run-id is given, otherwise from
last_run_data.json in the output directory, and renders it as a table,
a spreadsheet or JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			return runReport(ctx, logger, cfg, runID, outputPath, format, provider, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "ID of a stored run (requires a database)")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path; printed to stdout when unset")
	reportCmd.Flags().StringVarP(&format, "format", "f", "table", "report format: table, csv or json")

	return reportCmd
}

// runReport contains the core, testable logic of the report command.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	runID, outputPath, format string,
	provider storeProvider,
	out io.Writer,
) error {
	run, err := loadRun(ctx, logger, cfg, runID, provider)
	if err != nil {
		return err
	}

	var reporter reporting.Reporter
	if outputPath == "" {
		reporter, err = reporting.NewWriter(format, out)
	} else {
		reporter, err = reporting.New(format, outputPath)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(run); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if outputPath != "" {
		logger.Info("Report written.", zap.String("path", outputPath), zap.String("format", format))
	}
	return nil
}

func loadRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, runID string, provider storeProvider) (*reporting.Run, error) {
	if runID == "" {
		path := reporting.LastRunPath(cfg.Report.OutputDir)
		run, err := reporting.LoadRun(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load last run from %s: %w", path, err)
		}
		return run, nil
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	s, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	run, err := s.LoadRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return nil, fmt.Errorf("no stored run with id %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}
