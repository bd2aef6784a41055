package fiscal

import (
	"time"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// Anchors are the period boundary dates a filing's facts are classified
// against. All durations reported in a filing are expected to start or end on
// one of these dates; anything else stays unclassified.
type Anchors struct {
	DocStart time.Time `json:"docStart"`
	DocEnd   time.Time `json:"docEnd"`

	// FYStart is the first day of the fiscal year the filing belongs to,
	// derived from the preceding annual filing's period end.
	FYStart      time.Time `json:"fyStart"`
	PriorFYStart time.Time `json:"priorFYStart"`
	PriorFYEnd   time.Time `json:"priorFYEnd"`

	// PriorStart and PriorEnd bound the prior-year equivalent of the filing's
	// own quarter.
	PriorStart time.Time `json:"priorStart"`
	PriorEnd   time.Time `json:"priorEnd"`

	// Estimated names the anchors that were derived from heuristics instead
	// of actual filing history. A non-empty list degrades the run.
	Estimated []string `json:"estimated,omitempty"`
}

// IsEstimated reports whether any anchor was heuristically derived
func (a *Anchors) IsEstimated() bool {
	return len(a.Estimated) > 0
}

// Resolver derives Anchors for a target filing from the company's annotated
// filing history.
type Resolver struct {
	refs   []AnnotatedRef
	logger logger.Logger
}

// NewResolver creates a Resolver over an annotated filing history
func NewResolver(refs []AnnotatedRef, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Resolver{refs: refs, logger: log.WithComponent("fiscal")}
}

// Resolve computes the anchor dates for a target filing. Every anchor has a
// fallback so resolution itself never fails; estimated anchors are named in
// the result and the caller downgrades the run accordingly.
func (r *Resolver) Resolve(target AnnotatedRef) Anchors {
	anchors := Anchors{DocEnd: target.PeriodEnd}

	// Fiscal year boundary from the preceding annual filing.
	priorAnnualEnd, ok := r.latestEndBefore(target.PeriodEnd, models.Form10K)
	if !ok {
		priorAnnualEnd = target.PeriodEnd.AddDate(-1, 0, 0)
		anchors.Estimated = append(anchors.Estimated, "fiscal_year_start")
	}
	anchors.FYStart = priorAnnualEnd.AddDate(0, 0, 1)
	anchors.PriorFYEnd = priorAnnualEnd

	priorPriorAnnualEnd, ok := r.latestEndBefore(priorAnnualEnd, models.Form10K)
	if ok {
		anchors.PriorFYStart = priorPriorAnnualEnd.AddDate(0, 0, 1)
	} else {
		anchors.PriorFYStart = anchors.FYStart.AddDate(-1, 0, 0)
		anchors.Estimated = append(anchors.Estimated, "prior_fiscal_year_start")
	}

	if target.Form == models.Form10K {
		// An annual filing's own period is the fiscal year; its prior period
		// is the prior fiscal year.
		anchors.DocStart = anchors.FYStart
		anchors.PriorStart = anchors.PriorFYStart
		anchors.PriorEnd = anchors.PriorFYEnd
		r.logResolved(target, &anchors)
		return anchors
	}

	// Quarterly: the document period starts the day after the previous
	// filing of any form ended.
	prevEnd, ok := r.latestEndBefore(target.PeriodEnd, "")
	if ok {
		anchors.DocStart = prevEnd.AddDate(0, 0, 1)
	} else {
		approx := target.PeriodEnd.AddDate(0, 0, -90)
		anchors.DocStart = time.Date(approx.Year(), approx.Month(), 1, 0, 0, 0, 0, approx.Location())
		anchors.Estimated = append(anchors.Estimated, "doc_start")
	}

	// Prior-year equivalent quarter from the same-quarter filing one fiscal
	// year back.
	priorQEnd, ok := r.sameQuarterEnd(target.Quarter, target.FiscalYear-1)
	if !ok {
		priorQEnd = target.PeriodEnd.AddDate(-1, 0, 0)
		anchors.Estimated = append(anchors.Estimated, "prior_end")
	}
	anchors.PriorEnd = priorQEnd

	prevPriorEnd, ok := r.latestEndBefore(priorQEnd, "")
	if ok {
		anchors.PriorStart = prevPriorEnd.AddDate(0, 0, 1)
	} else {
		anchors.PriorStart = anchors.DocStart.AddDate(-1, 0, 0)
		anchors.Estimated = append(anchors.Estimated, "prior_start")
	}

	r.logResolved(target, &anchors)
	return anchors
}

// latestEndBefore finds the latest period end strictly before the cutoff,
// optionally restricted to one form type. An empty form matches any form.
func (r *Resolver) latestEndBefore(cutoff time.Time, form models.FormType) (time.Time, bool) {
	var best time.Time
	found := false
	for _, ref := range r.refs {
		if form != "" && ref.Form != form {
			continue
		}
		if ref.PeriodEnd.IsZero() || !ref.PeriodEnd.Before(cutoff) {
			continue
		}
		if !found || ref.PeriodEnd.After(best) {
			best = ref.PeriodEnd
			found = true
		}
	}
	return best, found
}

// sameQuarterEnd finds the period end of the quarterly filing labeled with
// the given quarter and fiscal year.
func (r *Resolver) sameQuarterEnd(quarter, fiscalYear int) (time.Time, bool) {
	for _, ref := range r.refs {
		if ref.Form != models.Form10Q || ref.NonStandard {
			continue
		}
		if ref.Quarter == quarter && ref.FiscalYear == fiscalYear {
			return ref.PeriodEnd, true
		}
	}
	return time.Time{}, false
}

func (r *Resolver) logResolved(target AnnotatedRef, anchors *Anchors) {
	fields := logger.Fields{
		"accession": target.Accession,
		"doc_start": anchors.DocStart.Format("2006-01-02"),
		"doc_end":   anchors.DocEnd.Format("2006-01-02"),
		"fy_start":  anchors.FYStart.Format("2006-01-02"),
	}
	if anchors.IsEstimated() {
		fields["estimated"] = anchors.Estimated
		r.logger.WithFields(fields).Warn("Anchor dates partially estimated")
		return
	}
	r.logger.WithFields(fields).Debug("Anchor dates resolved")
}
