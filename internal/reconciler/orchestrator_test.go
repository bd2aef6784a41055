package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/internal/parsers"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

func testLogger() logger.Logger {
	config := logger.DefaultConfig()
	config.Level = "error"
	log, _ := logger.NewLogger(config)
	return log
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// stubProvider serves a fixed filing history from memory
type stubProvider struct {
	cik       string
	refs      []models.FilingRef
	filings   map[string]*models.Filing
	linkbases map[string]*parsers.Linkbase
}

func (s *stubProvider) CompanyFilings(ctx context.Context, ticker string, maxYear int) (string, []models.FilingRef, error) {
	return s.cik, s.refs, nil
}

func (s *stubProvider) LoadFiling(ctx context.Context, cik string, ref models.FilingRef) (*models.Filing, *parsers.Linkbase, error) {
	filing, ok := s.filings[ref.Accession]
	if !ok {
		return nil, nil, fmt.Errorf("no fixture for accession %s", ref.Accession)
	}
	return filing, s.linkbases[ref.Accession], nil
}

func annualRef(periodEnd time.Time) models.FilingRef {
	return models.FilingRef{
		Form:       models.Form10K,
		Accession:  fmt.Sprintf("k-%d", periodEnd.Year()),
		PeriodEnd:  periodEnd,
		FilingDate: periodEnd.AddDate(0, 2, 0),
	}
}

func quarterRef(periodEnd time.Time) models.FilingRef {
	return models.FilingRef{
		Form:       models.Form10Q,
		Accession:  fmt.Sprintf("q-%s", periodEnd.Format("2006-01")),
		PeriodEnd:  periodEnd,
		FilingDate: periodEnd.AddDate(0, 1, 0),
	}
}

// calendarHistory is a December fiscal year end company with enough filings
// on record to resolve every anchor for a 2024 second-quarter run.
func calendarHistory() []models.FilingRef {
	return []models.FilingRef{
		annualRef(date(2024, 12, 31)),
		annualRef(date(2023, 12, 31)),
		annualRef(date(2022, 12, 31)),
		annualRef(date(2021, 12, 31)),
		quarterRef(date(2024, 6, 30)),
		quarterRef(date(2024, 3, 31)),
		quarterRef(date(2023, 6, 30)),
		quarterRef(date(2023, 3, 31)),
		quarterRef(date(2022, 6, 30)),
		quarterRef(date(2022, 3, 31)),
	}
}

func durationContext(id string, start, end time.Time) *models.Context {
	return &models.Context{ID: id, Kind: models.PeriodDuration, Start: start, End: end}
}

func instantContext(id string, instant time.Time) *models.Context {
	return &models.Context{ID: id, Kind: models.PeriodInstant, Instant: instant}
}

func rawFact(tag, contextRef string, value int64, seq int) models.RawFact {
	return models.RawFact{Tag: tag, ContextRef: contextRef, Value: decimal.NewFromInt(value), Seq: seq}
}

// secondQuarterFilings returns the two 10-Qs a 2Q24 run loads. The target
// carries revenue for all four comparison periods plus a period-end
// inventory instant; the prior filing carries the year-to-date revenue and
// inventory rows the cross-filing passes look for.
func secondQuarterFilings() map[string]*models.Filing {
	target := &models.Filing{
		Form:      models.Form10Q,
		Accession: "q-2024-06",
		PeriodEnd: date(2024, 6, 30),
		Contexts: map[string]*models.Context{
			"d-q":    durationContext("d-q", date(2024, 4, 1), date(2024, 6, 30)),
			"d-ytd":  durationContext("d-ytd", date(2024, 1, 1), date(2024, 6, 30)),
			"d-pq":   durationContext("d-pq", date(2023, 4, 1), date(2023, 6, 30)),
			"d-pytd": durationContext("d-pytd", date(2023, 1, 1), date(2023, 6, 30)),
			"i-cur":  instantContext("i-cur", date(2024, 6, 30)),
		},
		Facts: []models.RawFact{
			rawFact("us-gaap:Revenues", "d-q", 500, 1),
			rawFact("us-gaap:Revenues", "d-pq", 450, 2),
			rawFact("us-gaap:Revenues", "d-ytd", 900, 3),
			rawFact("us-gaap:Revenues", "d-pytd", 800, 4),
			rawFact("us-gaap:InventoryNet", "i-cur", 345, 5),
		},
	}

	prior := &models.Filing{
		Form:      models.Form10Q,
		Accession: "q-2023-06",
		PeriodEnd: date(2023, 6, 30),
		Contexts: map[string]*models.Context{
			"d-ytd": durationContext("d-ytd", date(2023, 1, 1), date(2023, 6, 30)),
			"i-cur": instantContext("i-cur", date(2023, 6, 30)),
		},
		Facts: []models.RawFact{
			rawFact("us-gaap:Revenues", "d-ytd", 800, 1),
			rawFact("us-gaap:InventoryNet", "i-cur", 300, 2),
		},
	}

	return map[string]*models.Filing{
		target.Accession: target,
		prior.Accession:  prior,
	}
}

func newTestOrchestrator(t *testing.T, provider FilingProvider) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(provider, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func findPair(pairs []models.MatchedPair, tag string, dateType models.DateType) (models.MatchedPair, bool) {
	for _, p := range pairs {
		if p.Tag == tag && p.DateType == dateType {
			return p, true
		}
	}
	return models.MatchedPair{}, false
}

func TestRunSecondQuarter(t *testing.T) {
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    calendarHistory(),
		filings: secondQuarterFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("status = %s, want %s (caveats: %+v)", result.Status, StatusSuccess, result.Caveats)
	}
	if result.Label != "2Q24" {
		t.Errorf("label = %q, want 2Q24", result.Label)
	}
	if result.CIK != "0000320193" {
		t.Errorf("cik = %q", result.CIK)
	}
	if len(result.Pairs) != 3 {
		t.Fatalf("pairs = %d, want 3: %+v", len(result.Pairs), result.Pairs)
	}

	q, ok := findPair(result.Pairs, "us-gaap:Revenues", models.DateTypeQ)
	if !ok {
		t.Fatal("no quarterly revenue pair")
	}
	if q.CurrentValue.Decimal.IntPart() != 500 || q.PriorValue.Decimal.IntPart() != 450 {
		t.Errorf("quarterly revenue = %s/%s, want 500/450",
			q.CurrentValue.Decimal, q.PriorValue.Decimal)
	}
	if q.VisualCurrentValue.Decimal.IntPart() != 500 {
		t.Errorf("visual value = %s, want raw value for non-negated tag", q.VisualCurrentValue.Decimal)
	}

	ytd, ok := findPair(result.Pairs, "us-gaap:Revenues", models.DateTypeYTD)
	if !ok {
		t.Fatal("no year-to-date revenue pair")
	}
	if ytd.CurrentValue.Decimal.IntPart() != 900 || ytd.PriorValue.Decimal.IntPart() != 800 {
		t.Errorf("ytd revenue = %s/%s, want 900/800",
			ytd.CurrentValue.Decimal, ytd.PriorValue.Decimal)
	}

	// The cross-filing instant pass shifts the prior balance date onto the
	// target's calendar, so the inventory rows pair despite different dates.
	inv, ok := findPair(result.Pairs, "us-gaap:InventoryNet", models.DateTypeQ)
	if !ok {
		t.Fatal("no inventory pair")
	}
	if inv.CurrentValue.Decimal.IntPart() != 345 || inv.PriorValue.Decimal.IntPart() != 300 {
		t.Errorf("inventory = %s/%s, want 345/300",
			inv.CurrentValue.Decimal, inv.PriorValue.Decimal)
	}

	if result.Collisions != 0 {
		t.Errorf("collisions = %d, want 0", result.Collisions)
	}
	if len(result.MissingTags) != 0 || len(result.NewDisclosures) != 0 {
		t.Errorf("audits = %v / %v, want empty", result.MissingTags, result.NewDisclosures)
	}
	if len(result.FallbackPairs) != 0 {
		t.Errorf("fallback pairs = %d, want 0 when everything matched", len(result.FallbackPairs))
	}
	if result.Metrics == nil || result.Metrics.OutputRows != 3 {
		t.Errorf("metrics output rows = %+v, want 3", result.Metrics)
	}
}

func TestRunNegatedConceptGetsVisualSign(t *testing.T) {
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    calendarHistory(),
		filings: secondQuarterFilings(),
		linkbases: map[string]*parsers.Linkbase{
			"q-2024-06": {Negated: models.NewNegatedConceptSet("us-gaap:Revenues")},
		},
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	q, ok := findPair(result.Pairs, "us-gaap:Revenues", models.DateTypeQ)
	if !ok {
		t.Fatal("no quarterly revenue pair")
	}
	if q.VisualCurrentValue.Decimal.IntPart() != -500 || q.VisualPriorValue.Decimal.IntPart() != -450 {
		t.Errorf("visual = %s/%s, want -500/-450",
			q.VisualCurrentValue.Decimal, q.VisualPriorValue.Decimal)
	}
	if q.CurrentValue.Decimal.IntPart() != 500 {
		t.Errorf("raw value changed by sign normalization: %s", q.CurrentValue.Decimal)
	}
}

func TestRunEstimatedAnchorsDegradeStatus(t *testing.T) {
	// Without 2022 quarterly filings the prior filing's year-ago anchors
	// have to be estimated. The run still completes, with caveats.
	var refs []models.FilingRef
	for _, ref := range calendarHistory() {
		if ref.Form == models.Form10Q && ref.PeriodEnd.Year() == 2022 {
			continue
		}
		refs = append(refs, ref)
	}
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    refs,
		filings: secondQuarterFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != StatusSuccessWithCaveats {
		t.Errorf("status = %s, want %s", result.Status, StatusSuccessWithCaveats)
	}
	if result.Caveats == nil || result.Caveats.Total == 0 {
		t.Error("expected anchor estimation caveats")
	}
	if result.Metrics.EstimatedAnchors == 0 {
		t.Error("expected estimated anchor count in metrics")
	}
}

func TestRunMissingPriorFilingFails(t *testing.T) {
	var refs []models.FilingRef
	for _, ref := range calendarHistory() {
		if ref.Accession == "q-2023-06" {
			continue
		}
		refs = append(refs, ref)
	}
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    refs,
		filings: secondQuarterFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 2})
	if err == nil {
		t.Fatal("expected error for missing prior filing")
	}
	perr, ok := apperrors.AsPipelineError(err)
	if !ok || perr.Code != apperrors.CodeNoCandidateFound {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeNoCandidateFound)
	}
	if result == nil || result.Status != StatusFailed {
		t.Errorf("result = %+v, want failed status", result)
	}
}

// annualFilings returns the 10-K and third-quarter 10-Q an implied-Q4 run
// loads for fiscal 2024.
func annualFilings() map[string]*models.Filing {
	annual := &models.Filing{
		Form:      models.Form10K,
		Accession: "k-2024",
		PeriodEnd: date(2024, 12, 31),
		Contexts: map[string]*models.Context{
			"d-fy":  durationContext("d-fy", date(2024, 1, 1), date(2024, 12, 31)),
			"d-pfy": durationContext("d-pfy", date(2023, 1, 1), date(2023, 12, 31)),
			"i-cur": instantContext("i-cur", date(2024, 12, 31)),
			"i-pri": instantContext("i-pri", date(2023, 12, 31)),
		},
		Facts: []models.RawFact{
			rawFact("us-gaap:Revenues", "d-fy", 2000, 1),
			rawFact("us-gaap:Revenues", "d-pfy", 1700, 2),
			rawFact("us-gaap:InventoryNet", "i-cur", 400, 3),
			rawFact("us-gaap:InventoryNet", "i-pri", 345, 4),
		},
	}

	third := &models.Filing{
		Form:      models.Form10Q,
		Accession: "q-2024-09",
		PeriodEnd: date(2024, 9, 30),
		Contexts: map[string]*models.Context{
			"d-ytd":  durationContext("d-ytd", date(2024, 1, 1), date(2024, 9, 30)),
			"d-pytd": durationContext("d-pytd", date(2023, 1, 1), date(2023, 9, 30)),
		},
		Facts: []models.RawFact{
			rawFact("us-gaap:Revenues", "d-ytd", 1500, 1),
			rawFact("us-gaap:Revenues", "d-pytd", 1300, 2),
		},
	}

	return map[string]*models.Filing{
		annual.Accession: annual,
		third.Accession:  third,
	}
}

func annualHistory() []models.FilingRef {
	return append(calendarHistory(),
		quarterRef(date(2024, 9, 30)),
		quarterRef(date(2023, 9, 30)),
	)
}

func TestRunImpliedFourthQuarter(t *testing.T) {
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    annualHistory(),
		filings: annualFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Label != "4Q24" {
		t.Errorf("label = %q, want 4Q24", result.Label)
	}
	if len(result.Pairs) != 2 {
		t.Fatalf("pairs = %d, want 2: %+v", len(result.Pairs), result.Pairs)
	}

	// The derived quarter is the full year minus the nine-month figures,
	// independently on each year side.
	q, ok := findPair(result.Pairs, "us-gaap:Revenues", models.DateTypeQ)
	if !ok {
		t.Fatal("no derived revenue pair")
	}
	if q.CurrentValue.Decimal.IntPart() != 500 || q.PriorValue.Decimal.IntPart() != 400 {
		t.Errorf("derived revenue = %s/%s, want 500/400",
			q.CurrentValue.Decimal, q.PriorValue.Decimal)
	}

	inv, ok := findPair(result.Pairs, "us-gaap:InventoryNet", models.DateTypeQ)
	if !ok {
		t.Fatal("no inventory pair")
	}
	if inv.CurrentValue.Decimal.IntPart() != 400 || inv.PriorValue.Decimal.IntPart() != 345 {
		t.Errorf("inventory = %s/%s, want 400/345",
			inv.CurrentValue.Decimal, inv.PriorValue.Decimal)
	}

	if result.Metrics.Synthesis == nil || result.Metrics.Synthesis.Derived != 1 {
		t.Errorf("synthesis stats = %+v, want 1 derived row", result.Metrics.Synthesis)
	}
}

func TestRunFullYear(t *testing.T) {
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    annualHistory(),
		filings: annualFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	result, err := orch.Run(context.Background(),
		&Request{Ticker: "EXMP", Year: 2024, Quarter: 4, FullYear: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Label != "FY24" {
		t.Errorf("label = %q, want FY24", result.Label)
	}
	fy, ok := findPair(result.Pairs, "us-gaap:Revenues", models.DateTypeFY)
	if !ok {
		t.Fatal("no full-year revenue pair")
	}
	if fy.CurrentValue.Decimal.IntPart() != 2000 || fy.PriorValue.Decimal.IntPart() != 1700 {
		t.Errorf("full-year revenue = %s/%s, want 2000/1700",
			fy.CurrentValue.Decimal, fy.PriorValue.Decimal)
	}
	if _, ok := findPair(result.Pairs, "us-gaap:InventoryNet", models.DateTypeQ); !ok {
		t.Error("no year-end inventory pair")
	}
}

func TestRunImpliedFourthQuarterNeedsThirdQuarter(t *testing.T) {
	var refs []models.FilingRef
	for _, ref := range annualHistory() {
		if ref.Accession == "q-2024-09" {
			continue
		}
		refs = append(refs, ref)
	}
	provider := &stubProvider{
		cik:     "0000320193",
		refs:    refs,
		filings: annualFilings(),
	}
	orch := newTestOrchestrator(t, provider)

	_, err := orch.Run(context.Background(), &Request{Ticker: "EXMP", Year: 2024, Quarter: 4})
	if err == nil {
		t.Fatal("expected error without a third-quarter filing")
	}
	perr, ok := apperrors.AsPipelineError(err)
	if !ok || perr.Code != apperrors.CodeNoCandidateFound {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeNoCandidateFound)
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	orch := newTestOrchestrator(t, &stubProvider{})

	cases := []Request{
		{Ticker: "", Year: 2024, Quarter: 2},
		{Ticker: "EXMP", Year: 2018, Quarter: 2},
		{Ticker: "EXMP", Year: 2024, Quarter: 5},
		{Ticker: "EXMP", Year: 2024, Quarter: 2, FullYear: true},
	}
	for _, req := range cases {
		req := req
		if _, err := orch.Run(context.Background(), &req); err == nil {
			t.Errorf("request %+v: expected validation error", req)
		}
	}
}
