// Package auditor post-processes matched output: it flags ambiguous value
// mappings and reports tags that appear on only one side of the comparison.
package auditor

import (
	"sort"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// Auditor inspects matched pairs for ambiguity
type Auditor struct {
	logger logger.Logger
}

// New creates an Auditor
func New(log logger.Logger) *Auditor {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Auditor{logger: log.WithComponent("auditor")}
}

// FlagCollisions marks every pair touching an ambiguously mapped value. A
// value is ambiguous when it appears with more than one distinct counterpart
// across the set, which happens legitimately with sparse, zero or duplicated
// figures. Rows are flagged in place and never removed; the flag is an
// advisory signal for the report sink. Returns the number of flagged rows.
func (a *Auditor) FlagCollisions(pairs []models.MatchedPair) int {
	priorToCurrent := make(map[string]map[string]bool)
	currentToPrior := make(map[string]map[string]bool)

	record := func(m map[string]map[string]bool, key, counterpart string) {
		if m[key] == nil {
			m[key] = make(map[string]bool)
		}
		m[key][counterpart] = true
	}

	for i := range pairs {
		cur, pri, ok := valueStrings(&pairs[i])
		if !ok {
			continue
		}
		record(priorToCurrent, pri, cur)
		record(currentToPrior, cur, pri)
	}

	flagged := 0
	for i := range pairs {
		cur, pri, ok := valueStrings(&pairs[i])
		if !ok {
			continue
		}
		if len(priorToCurrent[pri]) > 1 || len(currentToPrior[cur]) > 1 {
			pairs[i].CollisionFlag = true
			flagged++
		}
	}

	if flagged > 0 {
		a.logger.WithFields(logger.Fields{
			"flagged": flagged,
			"total":   len(pairs),
		}).Info("Ambiguous value mappings flagged")
	}
	return flagged
}

// valueStrings renders both sides of a pair for map keying; pairs missing
// either value cannot collide and are skipped.
func valueStrings(p *models.MatchedPair) (current, prior string, ok bool) {
	if !p.CurrentValue.Valid || !p.PriorValue.Valid {
		return "", "", false
	}
	return p.CurrentValue.Decimal.String(), p.PriorValue.Decimal.String(), true
}

// MissingTags returns the distinct tags reported in the prior period that
// found no current counterpart, sorted for stable output. These are
// diagnostics, never fatal.
func (a *Auditor) MissingTags(unmatchedPrior []models.EnrichedFact) []string {
	return distinctTags(unmatchedPrior)
}

// NewDisclosures returns the distinct tags reported in the current period
// with no prior counterpart: line items disclosed for the first time.
func (a *Auditor) NewDisclosures(unmatchedCurrent []models.EnrichedFact) []string {
	return distinctTags(unmatchedCurrent)
}

func distinctTags(facts []models.EnrichedFact) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, f := range facts {
		if !seen[f.Tag] {
			seen[f.Tag] = true
			tags = append(tags, f.Tag)
		}
	}
	sort.Strings(tags)
	return tags
}
