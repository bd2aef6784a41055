// Package reporter renders reconciliation results for people and machines.
//
// Four output formats are supported:
//   - Console: human-readable tabular output for terminal display
//   - JSON: the full result document for programmatic consumption
//   - CSV: one row per matched pair for spreadsheet applications
//   - XLSX: a workbook with the pairs and a run metrics sheet
//
// A separate metrics summary document exposes the run diagnostics as a flat
// key-to-value JSON object.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeFallbackPairs bool `json:"include_fallback_pairs"`
	IncludeAudits        bool `json:"include_audits"`
	IncludeMetrics       bool `json:"include_metrics"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// XLSX options
	SheetName string `json:"sheet_name"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeFallbackPairs: true,
		IncludeAudits:        true,
		IncludeMetrics:       true,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
		SheetName:            "Reconciliation",
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.Format == FormatXLSX && strings.TrimSpace(c.SheetName) == "" {
		return fmt.Errorf("xlsx output requires a sheet name")
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders a result to the writer in the configured format
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateMetricsSummary writes the run diagnostics as a flat JSON object
func (rg *ReportGenerator) GenerateMetricsSummary(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Metrics == nil {
		return fmt.Errorf("result carries no metrics")
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result.Metrics.Flatten())
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "FACT RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Company: %s (CIK %s)\n", result.Ticker, result.CIK)
	fmt.Fprintf(writer, "Period: %s (%s)\n", result.Label, result.Form)
	fmt.Fprintf(writer, "Status: %s\n", result.Status)
	fmt.Fprintf(writer, "Generated: %s\n\n", result.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== MATCHED PAIRS ===\n")
	rg.printPairTable(result.Pairs, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeFallbackPairs && len(result.FallbackPairs) > 0 {
		fmt.Fprintf(writer, "=== FALLBACK PAIRS ===\n")
		rg.printPairTable(result.FallbackPairs, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeAudits {
		rg.printAudits(result, writer)
	}

	if result.Caveats != nil && result.Caveats.Total > 0 {
		fmt.Fprintf(writer, "=== CAVEATS ===\n")
		for category, count := range result.Caveats.ByCategory {
			fmt.Fprintf(writer, "  %-12s %d\n", category, count)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMetrics && result.Metrics != nil {
		fmt.Fprintf(writer, "=== RUN METRICS ===\n")
		rg.printMetrics(result.Metrics, writer)
	}

	return nil
}

func (rg *ReportGenerator) printPairTable(pairs []models.MatchedPair, writer io.Writer) {
	if len(pairs) == 0 {
		fmt.Fprintf(writer, "  (no rows)\n")
		return
	}

	fmt.Fprintf(writer, "%-50s %-4s %18s %18s  %s\n", "Tag", "Type", "Current", "Prior", "Flags")
	fmt.Fprintf(writer, "%s\n", strings.Repeat("-", 100))
	for i := range pairs {
		p := &pairs[i]
		flags := ""
		if p.CollisionFlag {
			flags = "COLLISION"
		}
		fmt.Fprintf(writer, "%-50s %-4s %18s %18s  %s\n",
			truncate(p.Tag, 50), p.DateType,
			nullDecimalString(p.VisualCurrentValue), nullDecimalString(p.VisualPriorValue), flags)
	}
}

func (rg *ReportGenerator) printAudits(result *reconciler.Result, writer io.Writer) {
	fmt.Fprintf(writer, "=== AUDITS ===\n")
	fmt.Fprintf(writer, "  Collisions:      %d\n", result.Collisions)
	fmt.Fprintf(writer, "  Near misses:     %d\n", len(result.NearMisses))
	fmt.Fprintf(writer, "  Missing tags:    %d\n", len(result.MissingTags))
	fmt.Fprintf(writer, "  New disclosures: %d\n", len(result.NewDisclosures))
	for _, tag := range result.MissingTags {
		fmt.Fprintf(writer, "    missing: %s\n", tag)
	}
	for _, tag := range result.NewDisclosures {
		fmt.Fprintf(writer, "    new:     %s\n", tag)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printMetrics(metrics *reconciler.RunMetrics, writer io.Writer) {
	flat := metrics.Flatten()
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(writer, "  %-32s %v\n", key, flat[key])
	}
}

// generateJSONReport writes the full result document
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

// filterResultForOutput applies the detail-level configuration to a copy of
// the result so the JSON document only carries the requested sections.
func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) *reconciler.Result {
	filtered := *result
	if !rg.config.IncludeFallbackPairs {
		filtered.FallbackPairs = nil
	}
	if !rg.config.IncludeAudits {
		filtered.NearMisses = nil
		filtered.MissingTags = nil
		filtered.NewDisclosures = nil
	}
	if !rg.config.IncludeMetrics {
		filtered.Metrics = nil
	}
	return &filtered
}

var pairColumns = []string{
	"tag", "date_type", "current_end", "prior_end",
	"current_value", "prior_value", "presentation_role", "collision", "source",
}

// generateCSVReport writes one row per matched pair
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(pairColumns); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for i := range result.Pairs {
		if err := csvWriter.Write(pairRecord(&result.Pairs[i], "main")); err != nil {
			return fmt.Errorf("failed to write pair record: %w", err)
		}
	}
	if rg.config.IncludeFallbackPairs {
		for i := range result.FallbackPairs {
			if err := csvWriter.Write(pairRecord(&result.FallbackPairs[i], "fallback")); err != nil {
				return fmt.Errorf("failed to write fallback record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func pairRecord(p *models.MatchedPair, source string) []string {
	return []string{
		p.Tag,
		string(p.DateType),
		dateString(p.CurrentEnd),
		dateString(p.PriorEnd),
		nullDecimalString(p.VisualCurrentValue),
		nullDecimalString(p.VisualPriorValue),
		p.PresentationRole,
		strconv.FormatBool(p.CollisionFlag),
		source,
	}
}

// generateXLSXReport writes a workbook with the pairs and, when configured,
// a second sheet carrying the flattened run metrics.
func (rg *ReportGenerator) generateXLSXReport(result *reconciler.Result, writer io.Writer) error {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet(rg.config.SheetName)
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, col := range pairColumns {
		header.AddCell().SetString(col)
	}
	for i := range result.Pairs {
		addPairRow(sheet, &result.Pairs[i], "main")
	}
	if rg.config.IncludeFallbackPairs {
		for i := range result.FallbackPairs {
			addPairRow(sheet, &result.FallbackPairs[i], "fallback")
		}
	}

	if rg.config.IncludeMetrics && result.Metrics != nil {
		metricsSheet, err := file.AddSheet("Metrics")
		if err != nil {
			return fmt.Errorf("failed to add metrics sheet: %w", err)
		}
		flat := result.Metrics.Flatten()
		keys := make([]string, 0, len(flat))
		for key := range flat {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			row := metricsSheet.AddRow()
			row.AddCell().SetString(key)
			row.AddCell().SetString(fmt.Sprintf("%v", flat[key]))
		}
	}

	return file.Write(writer)
}

func addPairRow(sheet *xlsx.Sheet, p *models.MatchedPair, source string) {
	row := sheet.AddRow()
	for _, value := range pairRecord(p, source) {
		row.AddCell().SetString(value)
	}
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
