package cmd

import (
	"path/filepath"
	"testing"
)

func TestValidateExtractFlags(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		setupFlags  func()
		expectError bool
	}{
		{
			name: "valid quarterly request",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2024, 2, false
				outputFormat, outputFile, metricsFile = "console", "", ""
			},
			expectError: false,
		},
		{
			name: "valid full year request",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "MSFT", 2023, 4, true
				outputFormat, outputFile, metricsFile = "xlsx", filepath.Join(tmpDir, "out.xlsx"), ""
			},
			expectError: false,
		},
		{
			name: "missing ticker",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "", 2024, 2, false
				outputFormat, outputFile, metricsFile = "console", "", ""
			},
			expectError: true,
		},
		{
			name: "quarter out of range",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2024, 5, false
				outputFormat, outputFile, metricsFile = "console", "", ""
			},
			expectError: true,
		},
		{
			name: "full year outside fourth quarter",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2024, 2, true
				outputFormat, outputFile, metricsFile = "console", "", ""
			},
			expectError: true,
		},
		{
			name: "year before inline coverage",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2016, 2, false
				outputFormat, outputFile, metricsFile = "console", "", ""
			},
			expectError: true,
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2024, 2, false
				outputFormat, outputFile, metricsFile = "yaml", "", ""
			},
			expectError: true,
		},
		{
			name: "output directory missing",
			setupFlags: func() {
				ticker, fiscalYear, quarter, fullYear = "AAPL", 2024, 2, false
				outputFormat, outputFile, metricsFile = "csv", "/no/such/dir/out.csv", ""
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupFlags()
			err := validateExtractFlags(extractCmd, nil)

			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
