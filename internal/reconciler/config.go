package reconciler

import (
	"edgar-reconciliation-service/internal/matcher"
	apperrors "edgar-reconciliation-service/pkg/errors"
)

// Config holds the orchestrator settings
type Config struct {
	// Matcher configures the cross-period matching passes
	Matcher *matcher.Config `json:"matcher"`

	// SynthesizerAcceptScore is the axis similarity floor for the fuzzy join
	// during implied fourth quarter synthesis. Zero disables the fuzzy join.
	SynthesizerAcceptScore int `json:"synthesizer_accept_score"`

	// EnableRescue turns the targeted re-match of missed tags on or off
	EnableRescue bool `json:"enable_rescue"`
}

// DefaultConfig returns the orchestrator defaults
func DefaultConfig() *Config {
	return &Config{
		Matcher:                matcher.DefaultConfig(),
		SynthesizerAcceptScore: matcher.DefaultConfig().FuzzyAcceptScore,
		EnableRescue:           true,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Matcher == nil {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "matcher", nil, nil)
	}
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	if c.SynthesizerAcceptScore < 0 || c.SynthesizerAcceptScore > 100 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig,
			"synthesizer_accept_score", c.SynthesizerAcceptScore, nil)
	}
	return nil
}
