package fetcher

import (
	"fmt"
	"time"
)

// Config holds the EDGAR client and filing selection settings
type Config struct {
	// UserAgent identifies the caller to the SEC, which requires a contact
	// address in the header.
	UserAgent string `json:"user_agent"`

	// RequestsPerSecond caps the request rate per SEC fair-access guidance
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
	Timeout           time.Duration `json:"timeout"`

	// MaxQuarterlyFilings and MaxAnnualFilings bound how much history is
	// pulled; falling short of either from the recent feed triggers the
	// master index fallback.
	MaxQuarterlyFilings int `json:"max_quarterly_filings"`
	MaxAnnualFilings    int `json:"max_annual_filings"`

	// MinFactCount is the fact floor below which an .htm file is treated as
	// an exhibit rather than the filing body.
	MinFactCount int `json:"min_fact_count"`

	// MinFilingYear rejects filings too old to carry inline XBRL
	MinFilingYear int `json:"min_filing_year"`
}

// DefaultConfig returns the fetcher defaults
func DefaultConfig() *Config {
	return &Config{
		UserAgent:           "edgar-reconciliation-service contact@example.com",
		RequestsPerSecond:   8,
		Burst:               8,
		Timeout:             60 * time.Second,
		MaxQuarterlyFilings: 12,
		MaxAnnualFilings:    4,
		MinFactCount:        50,
		MinFilingYear:       2019,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent is required by SEC access policy")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got %f", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive, got %d", c.Burst)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxQuarterlyFilings <= 0 || c.MaxAnnualFilings <= 0 {
		return fmt.Errorf("filing limits must be positive, got %d quarterly and %d annual",
			c.MaxQuarterlyFilings, c.MaxAnnualFilings)
	}
	if c.MinFactCount < 0 {
		return fmt.Errorf("minimum fact count cannot be negative, got %d", c.MinFactCount)
	}
	return nil
}
