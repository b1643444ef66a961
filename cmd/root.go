package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagBindings maps flag names to the viper keys they override. A flag
// only overrides the config file and the environment when it is set.
var flagBindings = map[string]string{
	"log-level":     "logger.level",
	"log-file":      "logger.log_file",
	"headless":      "browser.headless",
	"profile-dir":   "browser.profile_dir",
	"output-dir":    "report.output_dir",
	"debug-dir":     "report.debug_dir",
	"database-url":  "database.url",
	"limit":         "harvest.limit",
	"manufacturers": "filter.manufacturers",
	"diameter":      "filter.diameter",
	"power":         "calc.analyzed_power",
	"esc":           "calc.esc",
	"battery":       "calc.battery",
	"prop-type":     "calc.prop_type",
	"charge-state":  "calc.charge_state",
	"formats":       "report.formats",
	"addr":          "serve.listen_addr",
}

// NewRootCommand builds the command tree with the production browser and
// store.
func NewRootCommand() *cobra.Command {
	return newRootCommand(launchChrome, NewStoreProvider())
}

func newRootCommand(launch browserLauncher, stores storeProvider) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "ecalc",
		Short:         "Automates the eCalc setup finder and propeller calculator.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "ecalc"}, zapcore.Lock(os.Stderr))
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// Logs go to stderr; stdout carries tables and reports.
			observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Starting eCalc automation", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.SetVersionTemplate(`{{printf "ecalc version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "also write JSON logs to this rotated file")
	pf.Bool("headless", false, "run Chrome without a window")
	pf.String("profile-dir", "", "persistent Chrome profile directory")
	pf.String("output-dir", "", "directory for spreadsheets and last_run_data.json")
	pf.String("debug-dir", "", "directory for diagnostic page snapshots")
	pf.String("database-url", "", "PostgreSQL URL for run persistence (ECALC_DATABASE_URL)")

	rootCmd.AddCommand(newLoginCmd(launch))
	rootCmd.AddCommand(newHarvestCmd(launch))
	rootCmd.AddCommand(newRunCmd(launch, stores))
	rootCmd.AddCommand(newReportCmd(stores))
	rootCmd.AddCommand(newServeCmd(launch))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with ctx and reports a failure on stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, the ECALC_* environment and the
// flags set on cmd into v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ECALC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
