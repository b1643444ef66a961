// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the per-user data directories.
const AppName = "ecalc-auto"

// Config is the root configuration, unmarshaled by viper from defaults, the
// optional config file, ECALC_* environment variables and bound flags.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ECalc    ECalcConfig    `mapstructure:"ecalc" yaml:"ecalc"`
	Harvest  HarvestConfig  `mapstructure:"harvest" yaml:"harvest"`
	Calc     CalcConfig     `mapstructure:"calc" yaml:"calc"`
	Filter   FilterConfig   `mapstructure:"filter" yaml:"filter"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Serve    ServeConfig    `mapstructure:"serve" yaml:"serve"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance driven through chromedp.
type BrowserConfig struct {
	Headless  bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath  string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string       `mapstructure:"args" yaml:"args"`
	Viewport  ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// ProfileDir keeps cookies between runs so a saved login survives restarts.
	ProfileDir        string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
}

// ViewportConfig is the browser window size in CSS pixels.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ECalcConfig locates the calculator and carries the account used to log in.
type ECalcConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	CalcPath   string `mapstructure:"calc_path" yaml:"calc_path"`
	LoginPath  string `mapstructure:"login_path" yaml:"login_path"`
	SearchPath string `mapstructure:"search_path" yaml:"search_path"`
	Email      string `mapstructure:"email" yaml:"email"`
	Password   string `mapstructure:"password" yaml:"password"`
	// CredentialsFile overrides the credentials.json lookup.
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	LoginTimeout    time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	AmbiguousWait   time.Duration `mapstructure:"ambiguous_wait" yaml:"ambiguous_wait"`
}

// CalcURL is the address of the propeller calculation tool.
func (e ECalcConfig) CalcURL() string { return e.join(e.CalcPath) }

// LoginURL is the address of the member login form.
func (e ECalcConfig) LoginURL() string { return e.join(e.LoginPath) }

// SearchURL is the address of the setup finder.
func (e ECalcConfig) SearchURL() string { return e.join(e.SearchPath) }

func (e ECalcConfig) join(p string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(p, "/")
}

// HarvestConfig tunes the setup finder run and the grid scrolling loop.
type HarvestConfig struct {
	Inputs           map[string]string `mapstructure:"inputs" yaml:"inputs"`
	Limit            int               `mapstructure:"limit" yaml:"limit"`
	MaxPages         int               `mapstructure:"max_pages" yaml:"max_pages"`
	PageDownPresses  int               `mapstructure:"page_down_presses" yaml:"page_down_presses"`
	KeyInterval      time.Duration     `mapstructure:"key_interval" yaml:"key_interval"`
	SearchSettle     time.Duration     `mapstructure:"search_settle" yaml:"search_settle"`
	ScrollSettle     time.Duration     `mapstructure:"scroll_settle" yaml:"scroll_settle"`
	FlightPlanSettle time.Duration     `mapstructure:"flight_plan_settle" yaml:"flight_plan_settle"`
	FieldTimeout     time.Duration     `mapstructure:"field_timeout" yaml:"field_timeout"`
}

// CalcConfig holds the per-candidate overrides and the orchestrator timings.
type CalcConfig struct {
	ESC           string  `mapstructure:"esc" yaml:"esc"`
	Battery       string  `mapstructure:"battery" yaml:"battery"`
	PropType      string  `mapstructure:"prop_type" yaml:"prop_type"`
	ChargeState   string  `mapstructure:"charge_state" yaml:"charge_state"`
	AnalyzedPower float64 `mapstructure:"analyzed_power" yaml:"analyzed_power"`

	// BatteryCapacity (mAh) and BatteryContinuous (C) override the battery
	// preset when the page leaves those fields editable.
	BatteryCapacity   string `mapstructure:"battery_capacity" yaml:"battery_capacity"`
	BatteryContinuous string `mapstructure:"battery_continuous" yaml:"battery_continuous"`

	// The closest-row fallback is accepted within max(ToleranceMinWatts, ToleranceFraction*target).
	ToleranceMinWatts float64       `mapstructure:"tolerance_min_watts" yaml:"tolerance_min_watts"`
	ToleranceFraction float64       `mapstructure:"tolerance_fraction" yaml:"tolerance_fraction"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SpeedMax          int           `mapstructure:"speed_max" yaml:"speed_max"`
	SpeedStep         int           `mapstructure:"speed_step" yaml:"speed_step"`
	FormTimeout       time.Duration `mapstructure:"form_timeout" yaml:"form_timeout"`
	FormRetryTimeout  time.Duration `mapstructure:"form_retry_timeout" yaml:"form_retry_timeout"`
	MotorListTimeout  time.Duration `mapstructure:"motor_list_timeout" yaml:"motor_list_timeout"`
	ResultTimeout     time.Duration `mapstructure:"result_timeout" yaml:"result_timeout"`
	SweepTimeout      time.Duration `mapstructure:"sweep_timeout" yaml:"sweep_timeout"`
	TableTimeout      time.Duration `mapstructure:"table_timeout" yaml:"table_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// Pace is the minimum spacing between two candidate calculations.
	Pace time.Duration `mapstructure:"pace" yaml:"pace"`
}

// FilterConfig narrows the harvested candidates before calculation.
type FilterConfig struct {
	Manufacturers []string `mapstructure:"manufacturers" yaml:"manufacturers"`
	// Diameter in inches; zero disables the diameter predicate.
	Diameter float64 `mapstructure:"diameter" yaml:"diameter"`
}

// ReportConfig controls where results and diagnostics are written.
type ReportConfig struct {
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	DebugDir  string   `mapstructure:"debug_dir" yaml:"debug_dir"`
	Formats   []string `mapstructure:"formats" yaml:"formats"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// Limit caps the setups calculated per request.
	Limit           int           `mapstructure:"limit" yaml:"limit"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// DefaultProfileDir is the persistent browser profile under the XDG data home.
func DefaultProfileDir() string {
	return filepath.Join(xdg.DataHome, AppName, "ecalc_session")
}

// DefaultInputs are the setup finder values used when none are supplied.
func DefaultInputs() map[string]string {
	return map[string]string{
		"weight":            "18000",
		"wingspan":          "3900",
		"wing_area":         "190.3",
		"speed":             "1",
		"thrust":            "5000",
		"max_weight":        "6",
		"battery_cells":     "6",
		"wing_type":         "Monoplano",
		"flight_plan":       "3D - heavy",
		"flight_time":       "3",
		"elevation":         "650",
		"max_prop_diameter": "20",
		"prop_blades":       "2",
	}
}

// SetDefaults initializes default values for every configuration section.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ecalc")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport.width", 1366)
	v.SetDefault("browser.viewport.height", 768)
	v.SetDefault("browser.profile_dir", DefaultProfileDir())
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.settle", "1500ms")

	// -- eCalc --
	v.SetDefault("ecalc.base_url", "https://www.ecalc.ch")
	v.SetDefault("ecalc.calc_path", "motorcalc.php")
	v.SetDefault("ecalc.login_path", "calcmember/login.php")
	v.SetDefault("ecalc.search_path", "setupfinder.php")
	v.SetDefault("ecalc.login_timeout", "15s")
	v.SetDefault("ecalc.ambiguous_wait", "3s")

	// -- Harvest --
	v.SetDefault("harvest.inputs", DefaultInputs())
	v.SetDefault("harvest.limit", 1)
	v.SetDefault("harvest.max_pages", 100)
	v.SetDefault("harvest.page_down_presses", 5)
	v.SetDefault("harvest.key_interval", "100ms")
	v.SetDefault("harvest.search_settle", "20s")
	v.SetDefault("harvest.scroll_settle", "2s")
	v.SetDefault("harvest.flight_plan_settle", "1s")
	v.SetDefault("harvest.field_timeout", "5s")

	// -- Calc --
	v.SetDefault("calc.esc", "max 90A")
	v.SetDefault("calc.battery", "LiPo 3300mAh - 45/60C")
	v.SetDefault("calc.prop_type", "APC Electric E")
	v.SetDefault("calc.charge_state", "cheia")
	v.SetDefault("calc.analyzed_power", 600.0)
	v.SetDefault("calc.battery_capacity", "")
	v.SetDefault("calc.battery_continuous", "")
	v.SetDefault("calc.tolerance_min_watts", 50.0)
	v.SetDefault("calc.tolerance_fraction", 0.15)
	v.SetDefault("calc.max_attempts", 2)
	v.SetDefault("calc.speed_max", 135)
	v.SetDefault("calc.speed_step", 9)
	v.SetDefault("calc.form_timeout", "10s")
	v.SetDefault("calc.form_retry_timeout", "15s")
	v.SetDefault("calc.motor_list_timeout", "8s")
	v.SetDefault("calc.result_timeout", "15s")
	v.SetDefault("calc.sweep_timeout", "4s")
	v.SetDefault("calc.table_timeout", "5s")
	v.SetDefault("calc.poll_interval", "500ms")
	v.SetDefault("calc.pace", "1s")

	// -- Filter --
	v.SetDefault("filter.manufacturers", []string{"T-Motor", "SunnySky", "Scorpion"})
	v.SetDefault("filter.diameter", 0.0)

	// -- Report --
	v.SetDefault("report.output_dir", "~/eCalc Auto")
	v.SetDefault("report.debug_dir", ".")
	v.SetDefault("report.formats", []string{"csv", "json", "table"})

	// -- Serve --
	v.SetDefault("serve.listen_addr", ":8000")
	v.SetDefault("serve.limit", 10)
	v.SetDefault("serve.request_timeout", "30m")
	v.SetDefault("serve.shutdown_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets keep their historical names rather than the ECALC_ECALC_ prefix.
	_ = v.BindEnv("ecalc.email", "ECALC_EMAIL")
	_ = v.BindEnv("ecalc.password", "ECALC_PASSWORD")
	_ = v.BindEnv("database.url", "ECALC_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.ECalc.BaseURL); err != nil {
		return fmt.Errorf("ecalc.base_url is not a valid URL: %w", err)
	}
	if c.Harvest.Limit <= 0 {
		return fmt.Errorf("harvest.limit must be a positive integer")
	}
	if c.Harvest.MaxPages <= 0 {
		return fmt.Errorf("harvest.max_pages must be a positive integer")
	}
	if c.Calc.MaxAttempts <= 0 {
		return fmt.Errorf("calc.max_attempts must be a positive integer")
	}
	if c.Calc.SpeedStep <= 0 || c.Calc.SpeedMax < 0 {
		return fmt.Errorf("calc.speed_step must be positive and calc.speed_max non-negative")
	}
	if c.Calc.ToleranceMinWatts < 0 || c.Calc.ToleranceFraction < 0 {
		return fmt.Errorf("calc tolerances must not be negative")
	}
	if c.Calc.AnalyzedPower <= 0 {
		return fmt.Errorf("calc.analyzed_power must be positive")
	}
	if c.Filter.Diameter < 0 {
		return fmt.Errorf("filter.diameter must not be negative")
	}
	if c.Serve.Limit <= 0 {
		return fmt.Errorf("serve.limit must be a positive integer")
	}
	return nil
}

// Speeds lists the flight speeds of the sweep, 0 through SpeedMax inclusive.
func (c CalcConfig) Speeds() []int {
	if c.SpeedStep <= 0 {
		return []int{0}
	}
	speeds := make([]int, 0, c.SpeedMax/c.SpeedStep+1)
	for v := 0; v <= c.SpeedMax; v += c.SpeedStep {
		speeds = append(speeds, v)
	}
	return speeds
}
