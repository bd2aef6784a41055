package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"edgar-reconciliation-service/internal/auditor"
	"edgar-reconciliation-service/internal/classifier"
	"edgar-reconciliation-service/internal/fiscal"
	"edgar-reconciliation-service/internal/matcher"
	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/internal/parsers"
	"edgar-reconciliation-service/internal/signs"
	"edgar-reconciliation-service/internal/synthesizer"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// FilingProvider supplies a company's filing index and the parsed contents
// of individual filings. internal/fetcher provides the SEC-backed
// implementation; tests substitute fixtures.
type FilingProvider interface {
	CompanyFilings(ctx context.Context, ticker string, maxYear int) (string, []models.FilingRef, error)
	LoadFiling(ctx context.Context, cik string, ref models.FilingRef) (*models.Filing, *parsers.Linkbase, error)
}

// Orchestrator drives a reconciliation run end to end: filing selection,
// fiscal calendar inference, fact classification, the matching passes, the
// audits, and sign normalization.
type Orchestrator struct {
	provider   FilingProvider
	config     *Config
	engine     *matcher.Engine
	classifier *classifier.Classifier
	auditor    *auditor.Auditor
	synth      *synthesizer.Synthesizer
	logger     logger.Logger
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(provider FilingProvider, config *Config, log logger.Logger) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("filing provider cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	engine, err := matcher.NewEngine(config.Matcher, log)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		provider:   provider,
		config:     config,
		engine:     engine,
		classifier: classifier.New(models.DefaultAxisRules(), log),
		auditor:    auditor.New(log),
		synth:      synthesizer.New(config.SynthesizerAcceptScore, log),
		logger:     log.WithComponent("reconciler"),
	}, nil
}

// loadedFiling bundles one filing with everything derived from it
type loadedFiling struct {
	ref      fiscal.AnnotatedRef
	filing   *models.Filing
	linkbase *parsers.Linkbase
	anchors  fiscal.Anchors
	facts    []models.EnrichedFact
}

// Run executes one reconciliation request
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	metrics := NewRunMetrics(req.Ticker)
	collector := apperrors.NewCollector(50)

	stage := logger.NewStageLogger("fetch_index", o.logger)
	cik, refs, err := o.provider.CompanyFilings(ctx, req.Ticker, req.Year)
	if err != nil {
		stage.Failure(err, "Filing index fetch failed")
		return o.failed(req, metrics, collector, err), err
	}
	metrics.FilingsFetched = len(refs)
	metrics.RecordStage("fetch_index", stage.Success("Filing index fetched"))

	stage = logger.NewStageLogger("fiscal_calendar", o.logger)
	calendar, err := fiscal.NewCalendar(refs, o.logger)
	if err != nil {
		stage.Failure(err, "Fiscal calendar construction failed")
		return o.failed(req, metrics, collector, err), err
	}
	annotated := calendar.Apply(refs)
	resolver := fiscal.NewResolver(annotated, o.logger)
	metrics.RecordStage("fiscal_calendar", stage.Success("Fiscal calendar built"))

	run := &runState{
		req:       req,
		cik:       cik,
		annotated: annotated,
		resolver:  resolver,
		metrics:   metrics,
		collector: collector,
	}

	var result *Result
	switch {
	case req.Quarter == 4 && req.FullYear:
		result, err = o.runFullYear(ctx, run)
	case req.Quarter == 4:
		result, err = o.runImpliedQ4(ctx, run)
	default:
		result, err = o.runQuarterly(ctx, run)
	}
	if err != nil {
		return o.failed(req, metrics, collector, err), err
	}
	return result, nil
}

// runState carries the per-run context between pipeline phases
type runState struct {
	req       *Request
	cik       string
	annotated []fiscal.AnnotatedRef
	resolver  *fiscal.Resolver
	metrics   *RunMetrics
	collector *apperrors.Collector
}

// runQuarterly reconciles a first, second or third quarter against the
// year-ago quarter. Three passes feed the output: current against prior
// periods inside the target filing, year-to-date rows across the two
// filings, and balance-sheet instants across the two filings with the prior
// dates shifted onto the target's calendar.
func (o *Orchestrator) runQuarterly(ctx context.Context, run *runState) (*Result, error) {
	req := run.req

	targetRef, ok := findQuarter(run.annotated, req.Year, req.Quarter)
	if !ok {
		return nil, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("%s has no 10-Q for Q%d fiscal %d", req.Ticker, req.Quarter, req.Year), nil)
	}
	priorRef, ok := findQuarter(run.annotated, req.Year-1, req.Quarter)
	if !ok {
		return nil, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("%s has no 10-Q for Q%d fiscal %d", req.Ticker, req.Quarter, req.Year-1), nil)
	}

	target, err := o.load(ctx, run, targetRef)
	if err != nil {
		return nil, err
	}
	prior, err := o.load(ctx, run, priorRef)
	if err != nil {
		return nil, err
	}

	stage := logger.NewStageLogger("match", o.logger)
	quarterFields := axisKeyFields(matcher.KeyTag, matcher.KeyDateType)

	// Pass 1: current periods against prior periods within the target
	// filing. Durations only; instants have their own pass.
	currentSide := selectDurations(classifier.Select(target.facts, models.CategoryCurrentQ, models.CategoryCurrentYTD))
	priorSide := selectDurations(classifier.Select(target.facts, models.CategoryPriorQ, models.CategoryPriorYTD))
	if len(currentSide) == 0 || len(priorSide) == 0 {
		err := apperrors.MatchError(apperrors.CodeEmptyPeriod,
			fmt.Sprintf("%s carries no comparable periods", targetRef.Label), nil)
		stage.Failure(err, "Within-filing match failed")
		return nil, err
	}
	within, err := o.engine.Match(currentSide, priorSide, quarterFields, matcher.MinKeyFields())
	if err != nil {
		stage.Failure(err, "Within-filing match failed")
		return nil, err
	}
	run.metrics.RecordPass("within_filing", within.Stats)

	pairs := within.Pairs
	nearMisses := within.NearMisses

	// Pass 2: year-to-date rows across the two filings. A first-quarter
	// filing has no distinct year-to-date period, so the pass may be empty.
	currentYTD := classifier.Select(target.facts, models.CategoryCurrentYTD)
	priorYTD := classifier.Select(prior.facts, models.CategoryCurrentYTD)
	if len(currentYTD) > 0 && len(priorYTD) > 0 {
		ytd, err := o.engine.Match(currentYTD, priorYTD, quarterFields, matcher.MinKeyFields())
		if err != nil {
			stage.Failure(err, "Year-to-date match failed")
			return nil, err
		}
		run.metrics.RecordPass("ytd", ytd.Stats)
		pairs = append(pairs, ytd.Pairs...)
		nearMisses = append(nearMisses, ytd.NearMisses...)
	}

	// Pass 3: balance-sheet instants across the two filings. The prior
	// filing's instant dates are shifted by the exact day gap between the two
	// document period ends, so a 52/53-week calendar still lines up.
	shiftDays := dayDelta(prior.filing.PeriodEnd, target.filing.PeriodEnd)
	currentInstants := selectInstants(target.facts, models.CategoryCurrentQ)
	priorInstants := shiftEnds(selectInstants(prior.facts, models.CategoryCurrentQ), shiftDays)
	if len(currentInstants) > 0 && len(priorInstants) > 0 {
		instantFields := axisKeyFields(matcher.KeyTag, matcher.KeyEnd, matcher.KeyDateType, matcher.KeyRole)
		instantMin := []string{matcher.KeyTag, matcher.KeyEnd, matcher.KeyDateType}
		instants, err := o.engine.Match(currentInstants, priorInstants, instantFields, instantMin)
		if err != nil {
			stage.Failure(err, "Instant match failed")
			return nil, err
		}
		run.metrics.RecordPass("instants", instants.Stats)
		pairs = append(pairs, instants.Pairs...)
		nearMisses = append(nearMisses, instants.NearMisses...)
	}
	run.metrics.RecordStage("match", stage.Success("Matching passes complete"))

	pairs = dropPartialPairs(pairs)
	pairs, _ = matcher.Deduplicate(pairs)

	result := o.finish(run, target, pairs, nearMisses, within.UnmatchedCurrent, within.UnmatchedPrior)

	if o.config.EnableRescue {
		fallback, stats := o.engine.Rescue(target.facts, prior.facts, pairs, shiftDays)
		run.metrics.Rescue = &stats
		run.metrics.FallbackTriggered = len(fallback) > 0
		o.normalizeSigns(target, fallback)
		result.FallbackPairs = fallback
	}

	return result, nil
}

// runImpliedQ4 derives fourth-quarter rows by subtracting the third
// quarter's year-to-date figures from the annual report's full-year figures.
func (o *Orchestrator) runImpliedQ4(ctx context.Context, run *runState) (*Result, error) {
	req := run.req

	annualRef, ok := findAnnual(run.annotated, req.Year)
	if !ok {
		return nil, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("%s has no 10-K for fiscal %d", req.Ticker, req.Year), nil)
	}
	thirdRef, ok := findQuarter(run.annotated, req.Year, 3)
	if !ok {
		return nil, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("%s has no third-quarter 10-Q for fiscal %d, cannot derive Q4", req.Ticker, req.Year), nil)
	}

	annual, err := o.load(ctx, run, annualRef)
	if err != nil {
		return nil, err
	}
	third, err := o.load(ctx, run, thirdRef)
	if err != nil {
		return nil, err
	}

	stage := logger.NewStageLogger("match", o.logger)
	fields := axisKeyFields(matcher.KeyTag, matcher.KeyDateType)

	fyPairs, err := o.matchFullYear(run, annual, fields)
	if err != nil {
		stage.Failure(err, "Full-year match failed")
		return nil, err
	}

	ytdCurrent := classifier.Select(third.facts, models.CategoryCurrentYTD)
	ytdPrior := classifier.Select(third.facts, models.CategoryPriorYTD)
	ytd, err := o.engine.Match(ytdCurrent, ytdPrior, fields, matcher.MinKeyFields())
	if err != nil {
		stage.Failure(err, "Nine-month match failed")
		return nil, err
	}
	run.metrics.RecordPass("nine_month", ytd.Stats)
	ytdPairs := dropPartialPairs(ytd.Pairs)

	derived, stats := o.synth.ImpliedQ4(fyPairs.Pairs, ytdPairs)

	instantPairs, nearMisses, err := o.matchInstants(run, annual)
	if err != nil {
		stage.Failure(err, "Instant match failed")
		return nil, err
	}
	pairs := o.synth.Combine(derived, instantPairs, &stats)
	run.metrics.Synthesis = &stats
	run.metrics.RecordStage("match", stage.Success("Fourth-quarter synthesis complete"))

	pairs, _ = matcher.Deduplicate(pairs)

	result := o.finish(run, annual, pairs, nearMisses, fyPairs.UnmatchedCurrent, fyPairs.UnmatchedPrior)
	result.Label = fmt.Sprintf("4Q%02d", req.Year%100)
	run.metrics.Label = result.Label
	return result, nil
}

// runFullYear reconciles an annual report's full-year figures against the
// prior year's, all from within the single 10-K.
func (o *Orchestrator) runFullYear(ctx context.Context, run *runState) (*Result, error) {
	req := run.req

	annualRef, ok := findAnnual(run.annotated, req.Year)
	if !ok {
		return nil, apperrors.CalendarError(apperrors.CodeNoCandidateFound,
			fmt.Sprintf("%s has no 10-K for fiscal %d", req.Ticker, req.Year), nil)
	}

	annual, err := o.load(ctx, run, annualRef)
	if err != nil {
		return nil, err
	}

	stage := logger.NewStageLogger("match", o.logger)
	fields := axisKeyFields(matcher.KeyTag, matcher.KeyDateType)

	fy, err := o.matchFullYear(run, annual, fields)
	if err != nil {
		stage.Failure(err, "Full-year match failed")
		return nil, err
	}
	pairs := dropPartialPairs(fy.Pairs)
	nearMisses := fy.NearMisses

	instantPairs, instantMisses, err := o.matchInstants(run, annual)
	if err != nil {
		stage.Failure(err, "Instant match failed")
		return nil, err
	}
	pairs = append(pairs, instantPairs...)
	nearMisses = append(nearMisses, instantMisses...)
	run.metrics.RecordStage("match", stage.Success("Full-year match complete"))

	pairs, _ = matcher.Deduplicate(pairs)

	return o.finish(run, annual, pairs, nearMisses, fy.UnmatchedCurrent, fy.UnmatchedPrior), nil
}

// matchFullYear runs the within-filing full-year pass over a 10-K
func (o *Orchestrator) matchFullYear(run *runState, annual *loadedFiling, fields []string) (*matcher.Result, error) {
	current := classifier.Select(annual.facts, models.CategoryCurrentFullYear)
	prior := classifier.Select(annual.facts, models.CategoryPriorFullYear)
	result, err := o.engine.Match(current, prior, fields, matcher.MinKeyFields())
	if err != nil {
		return nil, err
	}
	run.metrics.RecordPass("full_year", result.Stats)
	return result, nil
}

// matchInstants pairs a 10-K's year-end instants against its prior year-end
// instants, discarding one-sided rows.
func (o *Orchestrator) matchInstants(run *runState, annual *loadedFiling) ([]models.MatchedPair, []matcher.NearMiss, error) {
	current := selectInstants(annual.facts, models.CategoryCurrentQ)
	prior := selectInstants(annual.facts, models.CategoryPriorQ)
	if len(current) == 0 || len(prior) == 0 {
		return nil, nil, nil
	}

	fields := axisKeyFields(matcher.KeyTag, matcher.KeyDateType, matcher.KeyRole)
	result, err := o.engine.Match(current, prior, fields, matcher.MinKeyFields())
	if err != nil {
		return nil, nil, err
	}
	run.metrics.RecordPass("instants", result.Stats)
	return dropPartialPairs(result.Pairs), result.NearMisses, nil
}

// load fetches one filing, resolves its anchors and classifies its facts
func (o *Orchestrator) load(ctx context.Context, run *runState, ref fiscal.AnnotatedRef) (*loadedFiling, error) {
	stage := logger.NewStageLogger("load_filing", o.logger).WithField("accession", ref.Accession)

	filing, linkbase, err := o.provider.LoadFiling(ctx, run.cik, ref.FilingRef)
	if err != nil {
		stage.Failure(err, "Filing load failed")
		return nil, err
	}

	filing.FiscalYear = ref.FiscalYear
	filing.Quarter = ref.Quarter
	filing.FiscalYearEnd = ref.FiscalYearEnd
	filing.Label = ref.Label
	filing.NonStandardPeriod = ref.NonStandard

	anchors := run.resolver.Resolve(ref)
	if anchors.IsEstimated() {
		run.metrics.EstimatedAnchors += len(anchors.Estimated)
		run.collector.Add(apperrors.CalendarError(apperrors.CodeAnchorEstimated,
			fmt.Sprintf("%s %s: %v", ref.Form, ref.Label, anchors.Estimated), nil))
	}

	facts := o.classifier.Enrich(filing, anchors)
	run.metrics.RecordStage(fmt.Sprintf("load_%s", ref.Label), stage.Success("Filing loaded"))

	return &loadedFiling{
		ref:      ref,
		filing:   filing,
		linkbase: linkbase,
		anchors:  anchors,
		facts:    facts,
	}, nil
}

// finish runs the audits and sign normalization and assembles the Result
func (o *Orchestrator) finish(run *runState, target *loadedFiling, pairs []models.MatchedPair,
	nearMisses []matcher.NearMiss, unmatchedCurrent, unmatchedPrior []models.EnrichedFact) *Result {

	collisions := o.auditor.FlagCollisions(pairs)
	run.metrics.Collisions = collisions

	o.normalizeSigns(target, pairs)
	sortPairs(pairs)

	run.metrics.OutputRows = len(pairs)
	run.metrics.Label = target.ref.Label

	result := &Result{
		Request:        *run.req,
		Ticker:         run.req.Ticker,
		CIK:            run.cik,
		Label:          target.ref.Label,
		Form:           target.ref.Form,
		Pairs:          pairs,
		Collisions:     collisions,
		NearMisses:     nearMisses,
		MissingTags:    o.auditor.MissingTags(unmatchedPrior),
		NewDisclosures: o.auditor.NewDisclosures(unmatchedCurrent),
		Metrics:        run.metrics,
		GeneratedAt:    time.Now().UTC(),
	}
	if run.collector.HasErrors() {
		result.Caveats = run.collector.Summary()
	}

	switch {
	case result.HasCaveats():
		result.Status = StatusSuccessWithCaveats
	default:
		result.Status = StatusSuccess
	}
	return result
}

// normalizeSigns applies the filer's display sign convention to a pair set
func (o *Orchestrator) normalizeSigns(target *loadedFiling, pairs []models.MatchedPair) {
	var negated models.NegatedConceptSet
	if target.linkbase != nil {
		negated = target.linkbase.Negated
	}
	signs.New(negated, o.logger).Apply(pairs)
}

// failed assembles a terminal Result for a run that could not produce output
func (o *Orchestrator) failed(req *Request, metrics *RunMetrics, collector *apperrors.Collector, err error) *Result {
	if perr, ok := apperrors.AsPipelineError(err); ok {
		collector.Add(perr)
	}
	return &Result{
		Request:     *req,
		Status:      StatusFailed,
		Ticker:      req.Ticker,
		Caveats:     collector.Summary(),
		Metrics:     metrics,
		GeneratedAt: time.Now().UTC(),
	}
}

// findQuarter locates the 10-Q labeled with the given fiscal year and quarter
func findQuarter(refs []fiscal.AnnotatedRef, year, quarter int) (fiscal.AnnotatedRef, bool) {
	for _, ref := range refs {
		if ref.Form == models.Form10Q && ref.FiscalYear == year && ref.Quarter == quarter {
			return ref, true
		}
	}
	return fiscal.AnnotatedRef{}, false
}

// findAnnual locates the 10-K covering the given fiscal year
func findAnnual(refs []fiscal.AnnotatedRef, year int) (fiscal.AnnotatedRef, bool) {
	for _, ref := range refs {
		if ref.Form == models.Form10K && ref.FiscalYear == year {
			return ref, true
		}
	}
	return fiscal.AnnotatedRef{}, false
}

// axisKeyFields appends the axis bucket names to a fixed key prefix
func axisKeyFields(prefix ...string) []string {
	fields := append([]string{}, prefix...)
	for _, cat := range models.AxisCategories {
		fields = append(fields, string(cat))
	}
	return fields
}

// selectDurations returns the duration-kind facts of a slice
func selectDurations(facts []models.EnrichedFact) []models.EnrichedFact {
	var out []models.EnrichedFact
	for _, fact := range facts {
		if fact.PeriodKind == models.PeriodDuration {
			out = append(out, fact)
		}
	}
	return out
}

// selectInstants returns the instant-kind facts of one category
func selectInstants(facts []models.EnrichedFact, category models.MatchedCategory) []models.EnrichedFact {
	var out []models.EnrichedFact
	for _, fact := range facts {
		if fact.PeriodKind == models.PeriodInstant && fact.Category == category {
			out = append(out, fact)
		}
	}
	return out
}

// shiftEnds returns a copy of facts with every end date moved by days
func shiftEnds(facts []models.EnrichedFact, days int) []models.EnrichedFact {
	if days == 0 {
		return facts
	}
	out := make([]models.EnrichedFact, len(facts))
	for i, fact := range facts {
		fact.End = fact.End.AddDate(0, 0, days)
		out[i] = fact
	}
	return out
}

// dropPartialPairs removes rows missing a value on either side
func dropPartialPairs(pairs []models.MatchedPair) []models.MatchedPair {
	out := pairs[:0]
	for _, p := range pairs {
		if p.CurrentValue.Valid && p.PriorValue.Valid {
			out = append(out, p)
		}
	}
	return out
}

// dayDelta returns the whole-day gap from one date to another
func dayDelta(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// sortPairs orders output rows by presentation role then tag, the order the
// filing presents its statements in.
func sortPairs(pairs []models.MatchedPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].PresentationRole != pairs[j].PresentationRole {
			return pairs[i].PresentationRole < pairs[j].PresentationRole
		}
		return pairs[i].Tag < pairs[j].Tag
	})
}
