// Package config assembles per-component configurations from CLI flags,
// environment variables and the optional config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"edgar-reconciliation-service/internal/fetcher"
	"edgar-reconciliation-service/internal/gate"
	"edgar-reconciliation-service/internal/reconciler"
	"edgar-reconciliation-service/internal/reporter"
	"edgar-reconciliation-service/pkg/logger"
)

// Viper keys. Flags bind to these; the RECONCILER_ env prefix and config
// files reach the same settings.
const (
	KeyUserAgent        = "user-agent"
	KeyRequestsPerSec   = "requests-per-second"
	KeyMaxQuarterly     = "max-quarterly-filings"
	KeyMaxAnnual        = "max-annual-filings"
	KeyFuzzyAcceptScore = "fuzzy-accept-score"
	KeyDisableRescue    = "disable-fallback"
	KeyOutputFormat     = "output-format"
	KeyListenAddr       = "listen-addr"
	KeyStandardWait     = "standard-wait"
	KeyPremiumWait      = "premium-wait"
	KeyVerbose          = "verbose"
	KeyLogFormat        = "log-format"
)

// CreateFetcherConfig builds the EDGAR client configuration
func CreateFetcherConfig() (*fetcher.Config, error) {
	config := fetcher.DefaultConfig()

	if ua := viper.GetString(KeyUserAgent); ua != "" {
		config.UserAgent = ua
	}
	if rps := viper.GetFloat64(KeyRequestsPerSec); rps > 0 {
		config.RequestsPerSecond = rps
	}
	if n := viper.GetInt(KeyMaxQuarterly); n > 0 {
		config.MaxQuarterlyFilings = n
	}
	if n := viper.GetInt(KeyMaxAnnual); n > 0 {
		config.MaxAnnualFilings = n
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReconcilerConfig builds the orchestrator configuration
func CreateReconcilerConfig() (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	if score := viper.GetInt(KeyFuzzyAcceptScore); score > 0 {
		config.Matcher.FuzzyAcceptScore = score
		config.SynthesizerAcceptScore = score
	}
	config.EnableRescue = !viper.GetBool(KeyDisableRescue)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateGateConfig builds the admission gate configuration
func CreateGateConfig() (*gate.Config, error) {
	config := gate.DefaultConfig()

	if d := viper.GetDuration(KeyStandardWait); d > 0 {
		config.StandardWait = d
	}
	if d := viper.GetDuration(KeyPremiumWait); d > 0 {
		config.PremiumWait = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig builds a report configuration for the requested format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		// Pair rows only; audits and metrics do not fit a flat table.
		config.IncludeAudits = false
		config.IncludeMetrics = false
	case "xlsx":
		config.Format = reporter.FormatXLSX
	default:
		return nil, fmt.Errorf("invalid output format %q, valid formats: console, json, csv, xlsx", format)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateLoggerConfig builds the logging configuration from global flags
func CreateLoggerConfig() *logger.Config {
	config := logger.DefaultConfig()
	if viper.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
	}
	if viper.GetString(KeyLogFormat) == "json" {
		config.Format = logger.JSONFormat
	}
	return config
}

// ListenAddr returns the serve command's bind address
func ListenAddr() string {
	if addr := viper.GetString(KeyListenAddr); addr != "" {
		return addr
	}
	return ":8080"
}

// RequestTimeout bounds one HTTP-triggered reconciliation run
func RequestTimeout() time.Duration {
	return 10 * time.Minute
}
