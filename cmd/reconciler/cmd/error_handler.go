package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"edgar-reconciliation-service/cmd/reconciler/config"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool(config.KeyVerbose),
	}
}

// HandleError prints a user-facing description of the error and returns the
// process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if pipelineErr, ok := apperrors.AsPipelineError(err); ok {
		return h.handlePipelineError(pipelineErr)
	}
	return h.handleGenericError(err)
}

// handlePipelineError handles PipelineError with detailed context
func (h *CLIErrorHandler) handlePipelineError(err *apperrors.PipelineError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-PipelineError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory") {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}
	if os.IsPermission(err) || strings.Contains(err.Error(), "permission denied") {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have write access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nRun with --verbose for more detail\n")
	}
	return 1
}

// categoryHelp returns category-specific help text
func categoryHelp(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.CategoryFetch:
		return `Fetch error help:
• EDGAR throttles aggressive clients; keep the request rate at or below 10/s
• Set a User-Agent with a contact address (--user-agent "name email@example.com")
• Check that the ticker is listed on a US exchange
• EDGAR has occasional outages; retry in a few minutes`

	case apperrors.CategoryCalendar:
		return `Fiscal calendar help:
• The company needs at least one 10-K on file to label its quarters
• Check the requested year and quarter against the company's filing history
• Companies that changed their fiscal year end may have unlabelable periods
• Inline XBRL coverage is unreliable before 2019`

	case apperrors.CategoryParse:
		return `Parse error help:
• The filing's primary document may be an exhibit rather than the report body
• Amended filings (10-K/A, 10-Q/A) sometimes carry partial fact sets
• Re-run with --verbose to see which document was rejected`

	case apperrors.CategoryMatch:
		return `Match error help:
• A period with no classified facts usually means the anchors are off
• Try the adjacent quarter to check whether the company labels periods unusually
• Lower --fuzzy-accept-score to pair dimensioned facts more aggressively`

	case apperrors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify config file syntax if using --config
• Use 'reconciler extract --help' to see all available options`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler extract --help' for command-specific help`
	}
}
