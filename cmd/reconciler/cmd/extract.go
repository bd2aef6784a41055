package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"edgar-reconciliation-service/cmd/reconciler/config"
	"edgar-reconciliation-service/internal/fetcher"
	"edgar-reconciliation-service/internal/reconciler"
	"edgar-reconciliation-service/internal/reporter"
	"edgar-reconciliation-service/pkg/logger"
)

// Flags for the extract command
var (
	ticker       string
	fiscalYear   int
	quarter      int
	fullYear     bool
	outputFormat string
	outputFile   string
	metricsFile  string
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Reconcile one company period against the prior year",
	Long: `Extract pulls the filings needed for one fiscal period, matches each
fact against its prior-period counterpart and writes the paired rows.

Quarters 1-3 compare a 10-Q against the year-ago 10-Q. Quarter 4 derives the
implied fourth quarter from the 10-K and the third-quarter 10-Q; pass
--full-year to compare full fiscal years from the 10-K instead.

Examples:
  # Second quarter of fiscal 2024
  reconciler extract --ticker AAPL --year 2024 --quarter 2

  # Implied fourth quarter, spreadsheet output
  reconciler extract --ticker MSFT --year 2024 --quarter 4 \
    --output-format xlsx --output-file msft-4q24.xlsx

  # Full-year comparison with a run metrics document
  reconciler extract --ticker COST --year 2024 --quarter 4 --full-year \
    --output-format json --metrics-file metrics.json`,

	PreRunE: validateExtractFlags,
	RunE:    runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&ticker, "ticker", "t", "", "company ticker symbol (required)")
	extractCmd.Flags().IntVarP(&fiscalYear, "year", "y", 0, "fiscal year (required)")
	extractCmd.Flags().IntVarP(&quarter, "quarter", "q", 0, "fiscal quarter 1-4 (required)")
	extractCmd.Flags().BoolVar(&fullYear, "full-year", false, "compare full fiscal years instead of deriving Q4")

	extractCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	extractCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	extractCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write the run metrics summary to this path")

	extractCmd.Flags().Float64(config.KeyRequestsPerSec, 0, "EDGAR request rate cap")
	extractCmd.Flags().Int(config.KeyMaxQuarterly, 0, "quarterly filings to index")
	extractCmd.Flags().Int(config.KeyMaxAnnual, 0, "annual filings to index")
	extractCmd.Flags().Int(config.KeyFuzzyAcceptScore, 0, "fuzzy axis-similarity accept score (0-100)")
	extractCmd.Flags().Bool(config.KeyDisableRescue, false, "skip the targeted re-match of missed tags")

	extractCmd.MarkFlagRequired("ticker")
	extractCmd.MarkFlagRequired("year")
	extractCmd.MarkFlagRequired("quarter")

	viper.BindPFlag(config.KeyOutputFormat, extractCmd.Flags().Lookup("output-format"))
	viper.BindPFlag(config.KeyRequestsPerSec, extractCmd.Flags().Lookup(config.KeyRequestsPerSec))
	viper.BindPFlag(config.KeyMaxQuarterly, extractCmd.Flags().Lookup(config.KeyMaxQuarterly))
	viper.BindPFlag(config.KeyMaxAnnual, extractCmd.Flags().Lookup(config.KeyMaxAnnual))
	viper.BindPFlag(config.KeyFuzzyAcceptScore, extractCmd.Flags().Lookup(config.KeyFuzzyAcceptScore))
	viper.BindPFlag(config.KeyDisableRescue, extractCmd.Flags().Lookup(config.KeyDisableRescue))
}

func validateExtractFlags(cmd *cobra.Command, args []string) error {
	request := reconciler.Request{
		Ticker:   ticker,
		Year:     fiscalYear,
		Quarter:  quarter,
		FullYear: fullYear,
	}
	if err := request.Validate(); err != nil {
		return err
	}

	if _, err := config.CreateReportConfig(outputFormat); err != nil {
		return err
	}

	for _, path := range []string{outputFile, metricsFile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()
	started := time.Now()

	orchestrator, err := buildOrchestrator(log)
	if err != nil {
		return err
	}

	request := &reconciler.Request{
		Ticker:   ticker,
		Year:     fiscalYear,
		Quarter:  quarter,
		FullYear: fullYear,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout())
	defer cancel()

	result, err := orchestrator.Run(ctx, request)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := generator.GenerateReport(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if metricsFile != "" {
		metricsOut, err := os.Create(metricsFile)
		if err != nil {
			return fmt.Errorf("failed to create metrics file: %w", err)
		}
		defer metricsOut.Close()
		if err := generator.GenerateMetricsSummary(result, metricsOut); err != nil {
			return fmt.Errorf("failed to write metrics summary: %w", err)
		}
	}

	if viper.GetBool(config.KeyVerbose) {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed in %v.\n", time.Since(started).Round(time.Millisecond))
		fmt.Fprintf(os.Stderr, "Period %s: %d pairs, %d fallback pairs, %d collisions.\n",
			result.Label, len(result.Pairs), len(result.FallbackPairs), result.Collisions)
		if result.Status == reconciler.StatusSuccessWithCaveats {
			fmt.Fprintf(os.Stderr, "Result carries caveats; review the audit sections.\n")
		}
	}

	return nil
}

// buildOrchestrator wires the EDGAR-backed pipeline from configuration
func buildOrchestrator(log logger.Logger) (*reconciler.Orchestrator, error) {
	fetcherConfig, err := config.CreateFetcherConfig()
	if err != nil {
		return nil, err
	}
	client, err := fetcher.NewClientFromConfig(fetcherConfig, log)
	if err != nil {
		return nil, err
	}
	provider, err := fetcher.NewProvider(client, fetcherConfig, log)
	if err != nil {
		return nil, err
	}

	reconcilerConfig, err := config.CreateReconcilerConfig()
	if err != nil {
		return nil, err
	}
	return reconciler.NewOrchestrator(provider, reconcilerConfig, log)
}
