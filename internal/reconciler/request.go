package reconciler

import (
	"fmt"
	"strings"
	"time"

	"edgar-reconciliation-service/internal/matcher"
	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
)

// Request identifies one reconciliation run: a company and a fiscal period.
// Quarter 4 runs the implied fourth quarter synthesis unless FullYear asks
// for the annual comparison instead.
type Request struct {
	Ticker   string `json:"ticker"`
	Year     int    `json:"year"`
	Quarter  int    `json:"quarter"`
	FullYear bool   `json:"full_year,omitempty"`
}

// Validate checks the request
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "ticker", r.Ticker, nil)
	}
	if r.Year < 2019 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "year",
			fmt.Sprintf("%d predates reliable inline XBRL coverage", r.Year), nil)
	}
	if r.Quarter < 1 || r.Quarter > 4 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "quarter",
			fmt.Sprintf("%d is outside 1-4", r.Quarter), nil)
	}
	if r.FullYear && r.Quarter != 4 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "full_year",
			"full-year comparison requires quarter 4", nil)
	}
	return nil
}

// Status is the typed outcome of a run
type Status string

const (
	StatusSuccess            Status = "success"
	StatusSuccessWithCaveats Status = "success_with_caveats"
	StatusFailed             Status = "failed"
)

// Result is the complete output of one reconciliation run
type Result struct {
	Request Request         `json:"request"`
	Status  Status          `json:"status"`
	Ticker  string          `json:"ticker"`
	CIK     string          `json:"cik"`
	Label   string          `json:"label"`
	Form    models.FormType `json:"form"`

	// Pairs is the main matched output, sorted by presentation role.
	// FallbackPairs holds the targeted re-match rows, kept apart so a reader
	// can weigh them separately.
	Pairs         []models.MatchedPair `json:"pairs"`
	FallbackPairs []models.MatchedPair `json:"fallback_pairs,omitempty"`

	// Advisory findings, always reported and never blocking.
	Collisions     int                `json:"collisions"`
	NearMisses     []matcher.NearMiss `json:"near_misses,omitempty"`
	MissingTags    []string           `json:"missing_tags,omitempty"`
	NewDisclosures []string           `json:"new_disclosures,omitempty"`

	// Caveats collects the degraded and advisory errors raised along the way
	Caveats *apperrors.ErrorSummary `json:"caveats,omitempty"`

	Metrics     *RunMetrics `json:"metrics"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// HasCaveats reports whether the run succeeded with reservations
func (r *Result) HasCaveats() bool {
	if r.Collisions > 0 || len(r.NearMisses) > 0 {
		return true
	}
	return r.Caveats != nil && r.Caveats.Total > 0
}
