// Package fiscal infers a company's fiscal calendar from its filing history.
// The filing index gives only a form type and a period end date, never "this
// is Q2 FY24"; the quarter and fiscal year are derived by measuring how far a
// quarterly period end sits from the nearest annual period end.
package fiscal

import (
	"fmt"
	"sort"
	"time"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Day-difference windows between a quarterly period end and its fiscal year
// end. The windows are disjoint; a gap outside all three is labeled
// non-standard rather than guessed.
const (
	q3GapMin = 70
	q3GapMax = 120
	q2GapMin = 160
	q2GapMax = 200
	q1GapMin = 250
	q1GapMax = 300
)

// Calendar holds the candidate fiscal year ends collected from a company's
// annual filings, newest first.
type Calendar struct {
	yearEnds []time.Time
	logger   logger.Logger
}

// Annotation is the calendar's labeling of a single filing
type Annotation struct {
	FiscalYear    int       `json:"fiscalYear"`
	Quarter       int       `json:"quarter,omitempty"` // 1-3 for quarterly filings, 0 for annual
	FiscalYearEnd time.Time `json:"fiscalYearEnd"`
	Label         string    `json:"label"`
	NonStandard   bool      `json:"nonStandard,omitempty"`
	// Estimated is set when no annual period end at or after the quarterly
	// period end existed and the year end had to be projected forward.
	Estimated bool `json:"estimated,omitempty"`
}

// NewCalendar builds a Calendar from a company's filing index. At least one
// annual filing with a period end is required; without one no fiscal year
// boundary is derivable and the whole run is pointless.
func NewCalendar(refs []models.FilingRef, log logger.Logger) (*Calendar, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	seen := make(map[time.Time]bool)
	var ends []time.Time
	for _, ref := range refs {
		if ref.Form != models.Form10K || ref.PeriodEnd.IsZero() {
			continue
		}
		if !seen[ref.PeriodEnd] {
			seen[ref.PeriodEnd] = true
			ends = append(ends, ref.PeriodEnd)
		}
	}

	if len(ends) == 0 {
		return nil, apperrors.CalendarError(apperrors.CodeNoAnnualFilings,
			fmt.Sprintf("%d filings scanned", len(refs)), nil)
	}

	sort.Slice(ends, func(i, j int) bool { return ends[i].After(ends[j]) })

	log.WithComponent("fiscal").WithFields(logger.Fields{
		"year_ends": len(ends),
		"latest":    ends[0].Format("2006-01-02"),
	}).Debug("Fiscal calendar built")

	return &Calendar{yearEnds: ends, logger: log.WithComponent("fiscal")}, nil
}

// YearEnds returns the known fiscal year end dates, newest first
func (c *Calendar) YearEnds() []time.Time {
	out := make([]time.Time, len(c.yearEnds))
	copy(out, c.yearEnds)
	return out
}

// MatchYearEnd finds the fiscal year end governing a quarterly period end:
// the earliest known year end on or after it. When the quarterly period end
// is newer than every known year end (the next 10-K has not been filed yet),
// the latest year end is projected forward one year and the result is marked
// estimated.
func (c *Calendar) MatchYearEnd(periodEnd time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, fye := range c.yearEnds {
		if !fye.Before(periodEnd) {
			best = fye
			found = true
		}
	}
	if found {
		return best, false
	}

	// yearEnds is non-empty by construction, so the newest one exists.
	return c.yearEnds[0].AddDate(1, 0, 0), true
}

// QuarterForGap buckets a day gap between a quarterly period end and its
// fiscal year end into a quarter. The second return is false when the gap
// fits no window.
func QuarterForGap(days int) (int, bool) {
	switch {
	case days >= q3GapMin && days <= q3GapMax:
		return 3, true
	case days >= q2GapMin && days <= q2GapMax:
		return 2, true
	case days >= q1GapMin && days <= q1GapMax:
		return 1, true
	default:
		return 0, false
	}
}

// Annotate labels a single filing with its fiscal year, quarter and label.
// Annual filings take their period end's calendar year as the fiscal year;
// quarterly filings are matched to a year end and bucketed by day gap.
func (c *Calendar) Annotate(ref models.FilingRef) (Annotation, error) {
	if ref.PeriodEnd.IsZero() {
		return Annotation{}, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("filing %s has no period end", ref.Accession), nil)
	}

	if ref.Form == models.Form10K {
		fy := ref.PeriodEnd.Year()
		return Annotation{
			FiscalYear:    fy,
			FiscalYearEnd: ref.PeriodEnd,
			Label:         fmt.Sprintf("FY%02d", fy%100),
		}, nil
	}

	fye, estimated := c.MatchYearEnd(ref.PeriodEnd)
	gap := dayGap(ref.PeriodEnd, fye)
	quarter, ok := QuarterForGap(gap)
	fy := fye.Year()

	ann := Annotation{
		FiscalYear:    fy,
		Quarter:       quarter,
		FiscalYearEnd: fye,
		Estimated:     estimated,
	}

	if !ok {
		ann.NonStandard = true
		c.logger.WithFields(logger.Fields{
			"accession":  ref.Accession,
			"period_end": ref.PeriodEnd.Format("2006-01-02"),
			"gap_days":   gap,
		}).Warn("Quarterly period fits no standard quarter window")
		return ann, nil
	}

	ann.Label = fmt.Sprintf("%dQ%02d", quarter, fy%100)
	return ann, nil
}

// Apply runs Annotate over a filing list and writes the labels onto copies of
// the matching Filing metadata. Non-standard and unlabelable filings are kept
// in the output but carry the NonStandardPeriod flag or zero labels; the
// caller decides whether to exclude them.
func (c *Calendar) Apply(refs []models.FilingRef) []AnnotatedRef {
	out := make([]AnnotatedRef, 0, len(refs))
	for _, ref := range refs {
		ann, err := c.Annotate(ref)
		if err != nil {
			c.logger.WithError(err).WithField("accession", ref.Accession).
				Debug("Skipping unlabelable filing")
			continue
		}
		out = append(out, AnnotatedRef{FilingRef: ref, Annotation: ann})
	}
	return out
}

// AnnotatedRef pairs a filing reference with its calendar labels
type AnnotatedRef struct {
	models.FilingRef
	Annotation
}

func dayGap(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
