// Package classifier assigns each extracted fact to a reporting period
// category by comparing its context dates against a filing's anchor dates.
package classifier

import (
	"time"

	"edgar-reconciliation-service/internal/fiscal"
	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// Classifier enriches raw facts with period categories and axis assignments
type Classifier struct {
	rules  []models.AxisRule
	logger logger.Logger
}

// New creates a Classifier. A nil rule list uses the default axis rules.
func New(rules []models.AxisRule, log logger.Logger) *Classifier {
	if rules == nil {
		rules = models.DefaultAxisRules()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Classifier{rules: rules, logger: log.WithComponent("classifier")}
}

// Enrich joins every fact of a filing with its context and classifies it
// against the anchor dates. Facts referencing unknown contexts are dropped;
// facts matching no anchor keep an empty category and stay available for
// missing-tag audits. The classification is a pure function of the inputs:
// re-running it with identical anchors yields identical categories.
func (c *Classifier) Enrich(filing *models.Filing, anchors fiscal.Anchors) []models.EnrichedFact {
	enriched := make([]models.EnrichedFact, 0, len(filing.Facts))
	unclassified := 0

	for _, fact := range filing.Facts {
		ctx, ok := filing.Contexts[fact.ContextRef]
		if !ok {
			continue
		}

		ef := models.EnrichedFact{
			Tag:              fact.Tag,
			Value:            fact.Value,
			ContextRef:       fact.ContextRef,
			Seq:              fact.Seq,
			PeriodKind:       ctx.Kind,
			PresentationRole: filing.RoleString(fact.Tag),
			Axes:             models.AssignAxes(c.rules, ctx.Dimensions),
		}

		switch ctx.Kind {
		case models.PeriodDuration:
			ef.Start = ctx.Start
			ef.End = ctx.End
			ef.Category = c.classifyDuration(filing.Form, ctx.Start, ctx.End, anchors)
		case models.PeriodInstant:
			ef.End = ctx.Instant
			ef.Category = classifyInstant(ctx.Instant, anchors)
		}
		ef.DateType = ef.Category.DateType()

		if ef.Category == models.CategoryNone {
			unclassified++
		}
		enriched = append(enriched, ef)
	}

	c.logger.WithFields(logger.Fields{
		"accession":    filing.Accession,
		"facts":        len(enriched),
		"unclassified": unclassified,
	}).Debug("Facts classified")

	return enriched
}

// classifyDuration matches a duration against the anchor periods. The checks
// run most-specific first so a first-quarter filing, where the document
// period and the year-to-date period coincide, lands in current_q.
func (c *Classifier) classifyDuration(form models.FormType, start, end time.Time, a fiscal.Anchors) models.MatchedCategory {
	if form == models.Form10K {
		switch {
		case start.Equal(a.FYStart) && end.Equal(a.DocEnd):
			return models.CategoryCurrentFullYear
		case start.Equal(a.PriorFYStart) && end.Equal(a.PriorFYEnd):
			return models.CategoryPriorFullYear
		}
		return models.CategoryNone
	}

	switch {
	case start.Equal(a.DocStart) && end.Equal(a.DocEnd):
		return models.CategoryCurrentQ
	case start.Equal(a.FYStart) && end.Equal(a.DocEnd):
		return models.CategoryCurrentYTD
	case start.Equal(a.PriorStart) && end.Equal(a.PriorEnd):
		return models.CategoryPriorQ
	case start.Equal(a.PriorFYStart) && end.Equal(a.PriorEnd):
		return models.CategoryPriorYTD
	}
	return models.CategoryNone
}

func classifyInstant(instant time.Time, a fiscal.Anchors) models.MatchedCategory {
	switch {
	case instant.Equal(a.DocEnd):
		return models.CategoryCurrentQ
	case instant.Equal(a.PriorEnd):
		return models.CategoryPriorQ
	}
	return models.CategoryNone
}

// Select returns the enriched facts carrying one of the given categories, in
// their original emission order.
func Select(facts []models.EnrichedFact, categories ...models.MatchedCategory) []models.EnrichedFact {
	want := make(map[models.MatchedCategory]bool, len(categories))
	for _, cat := range categories {
		want[cat] = true
	}

	var out []models.EnrichedFact
	for _, fact := range facts {
		if want[fact.Category] {
			out = append(out, fact)
		}
	}
	return out
}
