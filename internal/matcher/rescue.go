package matcher

import (
	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// RescueStats summarizes the targeted re-match pass
type RescueStats struct {
	MissingTags     int     `json:"missing_tags"`
	CandidateFacts  int     `json:"candidate_facts"`
	Matched         int     `json:"matched"`
	OverlapsDropped int     `json:"overlaps_dropped"`
	MatchRate       float64 `json:"match_rate"`
}

// Rescue re-matches current facts whose tags never reached the main output.
// It zips them against the prior filing's own current-period facts on a
// looser key that swaps the presentation role for the period end, shifting
// instant prior end dates by the day delta between the two fiscal year ends
// so balance-sheet dates line up across calendars. Rows whose prior value
// already appears in the main output are dropped: a prior value serving two
// different current rows is more likely a mis-pair than a real disclosure.
func (e *Engine) Rescue(current, prior []models.EnrichedFact, mainPairs []models.MatchedPair, yearEndDelta int) ([]models.MatchedPair, RescueStats) {
	stats := RescueStats{}

	matchedTags := make(map[string]bool, len(mainPairs))
	for _, pair := range mainPairs {
		matchedTags[pair.Tag] = true
	}

	missing := make(map[string]bool)
	for _, fact := range current {
		if !matchedTags[fact.Tag] {
			missing[fact.Tag] = true
		}
	}
	stats.MissingTags = len(missing)
	if len(missing) == 0 {
		return nil, stats
	}

	curSide := rescueCandidates(current, missing, 0)
	priSide := rescueCandidates(prior, missing, yearEndDelta)
	stats.CandidateFacts = len(curSide)
	if len(curSide) == 0 || len(priSide) == 0 {
		return nil, stats
	}

	zipPairs, _, _ := e.zipMatch(curSide, priSide, RescueKeyFields())

	pairs := make([]models.MatchedPair, 0, len(zipPairs))
	for _, mf := range zipPairs {
		pair := buildPair(mf)
		if !pair.HasAnyValue() {
			continue
		}
		pairs = append(pairs, pair)
	}
	pairs, _ = Deduplicate(pairs)

	mainPriorValues := make(map[string]bool, len(mainPairs))
	for _, pair := range mainPairs {
		if pair.PriorValue.Valid {
			mainPriorValues[pair.PriorValue.Decimal.String()] = true
		}
	}
	unique := pairs[:0]
	for _, pair := range pairs {
		if pair.PriorValue.Valid && mainPriorValues[pair.PriorValue.Decimal.String()] {
			stats.OverlapsDropped++
			continue
		}
		unique = append(unique, pair)
	}
	pairs = unique

	stats.Matched = len(pairs)
	stats.MatchRate = float64(len(pairs)) / float64(len(curSide))

	e.logger.WithFields(logger.Fields{
		"missing_tags":     stats.MissingTags,
		"matched":          stats.Matched,
		"overlaps_dropped": stats.OverlapsDropped,
	}).Info("Targeted re-match completed")

	return pairs, stats
}

// rescueCandidates filters to the filing's own current-period facts for the
// given tags, shifting instant end dates forward by shiftDays.
func rescueCandidates(facts []models.EnrichedFact, tags map[string]bool, shiftDays int) []models.EnrichedFact {
	out := make([]models.EnrichedFact, 0)
	for _, fact := range facts {
		if !tags[fact.Tag] {
			continue
		}
		if fact.Category != models.CategoryCurrentQ && fact.Category != models.CategoryCurrentYTD {
			continue
		}
		if shiftDays != 0 && fact.PeriodKind == models.PeriodInstant && !fact.End.IsZero() {
			fact.End = fact.End.AddDate(0, 0, shiftDays)
		}
		out = append(out, fact)
	}
	return out
}
