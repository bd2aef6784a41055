package fiscal

import (
	"testing"
	"time"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// decemberHistory builds a filing history for a company with a consistent
// Dec-31 fiscal year end.
func decemberHistory() []models.FilingRef {
	return []models.FilingRef{
		{Form: models.Form10K, Accession: "k-2021", PeriodEnd: date(2021, 12, 31)},
		{Form: models.Form10K, Accession: "k-2022", PeriodEnd: date(2022, 12, 31)},
		{Form: models.Form10K, Accession: "k-2023", PeriodEnd: date(2023, 12, 31)},
		{Form: models.Form10Q, Accession: "q1-2023", PeriodEnd: date(2023, 3, 31)},
		{Form: models.Form10Q, Accession: "q2-2023", PeriodEnd: date(2023, 6, 30)},
		{Form: models.Form10Q, Accession: "q3-2023", PeriodEnd: date(2023, 9, 30)},
		{Form: models.Form10Q, Accession: "q1-2024", PeriodEnd: date(2024, 3, 31)},
		{Form: models.Form10Q, Accession: "q2-2024", PeriodEnd: date(2024, 6, 30)},
	}
}

func TestNewCalendarRequiresAnnualFiling(t *testing.T) {
	refs := []models.FilingRef{
		{Form: models.Form10Q, Accession: "q1", PeriodEnd: date(2024, 3, 31)},
	}

	_, err := NewCalendar(refs, nil)
	if err == nil {
		t.Fatal("expected error when no annual filing exists")
	}

	pipelineErr, ok := apperrors.AsPipelineError(err)
	if !ok {
		t.Fatalf("expected a typed pipeline error, got %T", err)
	}
	if pipelineErr.Code != apperrors.CodeNoAnnualFilings {
		t.Errorf("expected code %s, got %s", apperrors.CodeNoAnnualFilings, pipelineErr.Code)
	}
	if !pipelineErr.IsFatal() {
		t.Error("missing fiscal calendar should be fatal")
	}
}

func TestQuarterForGap(t *testing.T) {
	tests := []struct {
		days     int
		expected int
		ok       bool
	}{
		{70, 3, true},
		{92, 3, true},
		{120, 3, true},
		{160, 2, true},
		{184, 2, true},
		{200, 2, true},
		{250, 1, true},
		{275, 1, true},
		{300, 1, true},
		// outside every window
		{69, 0, false},
		{121, 0, false},
		{159, 0, false},
		{201, 0, false},
		{249, 0, false},
		{301, 0, false},
		{0, 0, false},
		{-30, 0, false},
	}

	for _, tt := range tests {
		quarter, ok := QuarterForGap(tt.days)
		if quarter != tt.expected || ok != tt.ok {
			t.Errorf("gap %d days: expected (%d, %v), got (%d, %v)",
				tt.days, tt.expected, tt.ok, quarter, ok)
		}
	}
}

func TestMatchYearEnd(t *testing.T) {
	cal, err := NewCalendar(decemberHistory(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Normal case: earliest year end at or after the period end.
	fye, estimated := cal.MatchYearEnd(date(2023, 6, 30))
	if !fye.Equal(date(2023, 12, 31)) {
		t.Errorf("expected 2023-12-31, got %s", fye.Format("2006-01-02"))
	}
	if estimated {
		t.Error("expected exact year end, got estimated")
	}

	// Period end newer than every known year end: project forward one year.
	fye, estimated = cal.MatchYearEnd(date(2024, 6, 30))
	if !fye.Equal(date(2024, 12, 31)) {
		t.Errorf("expected projected 2024-12-31, got %s", fye.Format("2006-01-02"))
	}
	if !estimated {
		t.Error("expected projected year end to be marked estimated")
	}

	// A period end equal to a known year end matches it exactly.
	fye, estimated = cal.MatchYearEnd(date(2023, 12, 31))
	if !fye.Equal(date(2023, 12, 31)) || estimated {
		t.Errorf("expected exact match on year end date, got %s estimated=%v",
			fye.Format("2006-01-02"), estimated)
	}
}

func TestAnnotateQuarterly(t *testing.T) {
	cal, err := NewCalendar(decemberHistory(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		periodEnd time.Time
		quarter   int
		year      int
		label     string
	}{
		{"first quarter", date(2023, 3, 31), 1, 2023, "1Q23"},
		{"second quarter", date(2023, 6, 30), 2, 2023, "2Q23"},
		{"third quarter", date(2023, 9, 30), 3, 2023, "3Q23"},
		{"projected year end", date(2024, 6, 30), 2, 2024, "2Q24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann, err := cal.Annotate(models.FilingRef{
				Form: models.Form10Q, Accession: "q", PeriodEnd: tt.periodEnd,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ann.Quarter != tt.quarter {
				t.Errorf("expected quarter %d, got %d", tt.quarter, ann.Quarter)
			}
			if ann.FiscalYear != tt.year {
				t.Errorf("expected fiscal year %d, got %d", tt.year, ann.FiscalYear)
			}
			if ann.Label != tt.label {
				t.Errorf("expected label %s, got %s", tt.label, ann.Label)
			}
			if ann.NonStandard {
				t.Error("standard quarter should not be flagged non-standard")
			}
		})
	}
}

func TestAnnotateNonStandardPeriod(t *testing.T) {
	cal, err := NewCalendar(decemberHistory(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2023-11-15 is 46 days before the 2023-12-31 year end, inside no window.
	ann, err := cal.Annotate(models.FilingRef{
		Form: models.Form10Q, Accession: "odd", PeriodEnd: date(2023, 11, 15),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ann.NonStandard {
		t.Error("expected non-standard flag for a period fitting no window")
	}
	if ann.Quarter != 0 {
		t.Errorf("non-standard period should carry no quarter, got %d", ann.Quarter)
	}
	if ann.Label != "" {
		t.Errorf("non-standard period should carry no label, got %q", ann.Label)
	}
}

func TestAnnotateAnnual(t *testing.T) {
	cal, err := NewCalendar(decemberHistory(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ann, err := cal.Annotate(models.FilingRef{
		Form: models.Form10K, Accession: "k-2023", PeriodEnd: date(2023, 12, 31),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ann.FiscalYear != 2023 {
		t.Errorf("expected fiscal year 2023, got %d", ann.FiscalYear)
	}
	if ann.Label != "FY23" {
		t.Errorf("expected label FY23, got %q", ann.Label)
	}
	if ann.Quarter != 0 {
		t.Errorf("annual filing should carry no quarter, got %d", ann.Quarter)
	}
}

func TestAnnotateIdempotent(t *testing.T) {
	cal, err := NewCalendar(decemberHistory(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ref := models.FilingRef{Form: models.Form10Q, Accession: "q2-2024", PeriodEnd: date(2024, 6, 30)}
	first, err := cal.Annotate(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cal.Annotate(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("repeated annotation diverged: %+v vs %+v", first, second)
	}
}

func TestApplySkipsUnlabelable(t *testing.T) {
	refs := decemberHistory()
	refs = append(refs, models.FilingRef{Form: models.Form10Q, Accession: "no-date"})

	cal, err := NewCalendar(refs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	annotated := cal.Apply(refs)
	if len(annotated) != len(refs)-1 {
		t.Errorf("expected %d annotated refs, got %d", len(refs)-1, len(annotated))
	}
	for _, ref := range annotated {
		if ref.Accession == "no-date" {
			t.Error("filing without a period end should have been skipped")
		}
	}
}
