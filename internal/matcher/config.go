package matcher

import (
	"fmt"
)

// Config holds the tunable parameters of the cross-period matcher. The score
// thresholds were tuned empirically against real filings; they are exposed
// here rather than fixed so callers can tighten or loosen them per run.
type Config struct {
	// MinOverlapRatio is the shared-key ratio below which the adaptive key
	// reduction drops another key field.
	MinOverlapRatio float64 `json:"min_overlap_ratio"`

	// FuzzyAcceptScore is the per-axis partial-similarity score (0-100) every
	// compared axis must reach for a fuzzy pairing to be accepted.
	FuzzyAcceptScore int `json:"fuzzy_accept_score"`

	// NearMissLow and NearMissHigh bound the audit band: candidate pairings
	// whose weakest axis scores inside the band are logged for manual review
	// without entering the output.
	NearMissLow  int `json:"near_miss_low"`
	NearMissHigh int `json:"near_miss_high"`

	// EnableFuzzyFallback turns the similarity fallback pass on or off
	EnableFuzzyFallback bool `json:"enable_fuzzy_fallback"`
}

// DefaultConfig returns the standard matcher configuration
func DefaultConfig() *Config {
	return &Config{
		MinOverlapRatio:     0.05,
		FuzzyAcceptScore:    80,
		NearMissLow:         70,
		NearMissHigh:        79,
		EnableFuzzyFallback: true,
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.MinOverlapRatio < 0 || c.MinOverlapRatio > 1 {
		return fmt.Errorf("min overlap ratio must be between 0 and 1, got %f", c.MinOverlapRatio)
	}
	if c.FuzzyAcceptScore < 0 || c.FuzzyAcceptScore > 100 {
		return fmt.Errorf("fuzzy accept score must be between 0 and 100, got %d", c.FuzzyAcceptScore)
	}
	if c.NearMissLow < 0 || c.NearMissHigh > 100 || c.NearMissLow > c.NearMissHigh {
		return fmt.Errorf("near-miss band [%d, %d] is not a valid score range", c.NearMissLow, c.NearMissHigh)
	}
	if c.NearMissHigh >= c.FuzzyAcceptScore {
		return fmt.Errorf("near-miss band must end below the accept score %d, got %d",
			c.FuzzyAcceptScore, c.NearMissHigh)
	}
	return nil
}
