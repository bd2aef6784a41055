// Package matcher pairs current-period facts with their prior-year
// counterparts. It runs three passes in order: adaptive key reduction picks
// the most specific key tuple that still overlaps between the two sets,
// positional matching zips groups that share a key, and a string-similarity
// fallback re-pairs the leftovers.
package matcher

import (
	"fmt"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Engine performs cross-period matching
type Engine struct {
	config *Config
	logger logger.Logger
}

// NewEngine creates a matching engine with the given configuration
func NewEngine(config *Config, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "matcher", err.Error(), err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{config: config, logger: log.WithComponent("matcher")}, nil
}

// Stats summarizes one matching run for the run metrics
type Stats struct {
	CurrentFacts   int     `json:"current_facts"`
	PriorFacts     int     `json:"prior_facts"`
	ZipMatched     int     `json:"zip_matched"`
	FuzzyMatched   int     `json:"fuzzy_matched"`
	KeysUsed       int     `json:"keys_used"`
	KeysDropped    int     `json:"keys_dropped"`
	OverlapRatio   float64 `json:"overlap_ratio"`
	FuzzyTriggered bool    `json:"fuzzy_triggered"`
	NearMisses     int     `json:"near_misses"`
	Deduplicated   int     `json:"deduplicated"`
}

// Result is the output of one matching run
type Result struct {
	Pairs            []models.MatchedPair
	UnmatchedCurrent []models.EnrichedFact
	UnmatchedPrior   []models.EnrichedFact
	KeyFields        []string
	NearMisses       []NearMiss
	Stats            Stats
}

// matchedFacts is an internal pairing before conversion to a MatchedPair
type matchedFacts struct {
	current models.EnrichedFact
	prior   models.EnrichedFact
}

// Match runs the full pass sequence over a current and a prior fact set.
// Both sides must be non-empty; a one-sided comparison has no meaningful
// year-over-year output.
func (e *Engine) Match(current, prior []models.EnrichedFact, fields, minFields []string) (*Result, error) {
	if len(fields) == 0 {
		fields = DefaultKeyFields()
	}
	if len(minFields) == 0 {
		minFields = MinKeyFields()
	}
	if len(minFields) > len(fields) {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "key_fields",
			fmt.Sprintf("minimum key set (%d) longer than candidate set (%d)", len(minFields), len(fields)), nil)
	}
	if len(current) == 0 || len(prior) == 0 {
		return nil, apperrors.MatchError(apperrors.CodeEmptyPeriod,
			fmt.Sprintf("current=%d prior=%d facts", len(current), len(prior)), nil)
	}

	result := &Result{
		Stats: Stats{CurrentFacts: len(current), PriorFacts: len(prior)},
	}

	usedFields, ratio := e.ReduceKeys(current, prior, fields, minFields)
	result.KeyFields = usedFields
	result.Stats.KeysUsed = len(usedFields)
	result.Stats.KeysDropped = len(fields) - len(usedFields)
	result.Stats.OverlapRatio = ratio

	zipPairs, leftCurrent, leftPrior := e.zipMatch(current, prior, usedFields)
	result.Stats.ZipMatched = len(zipPairs)

	allPairs := zipPairs
	if e.config.EnableFuzzyFallback && len(leftCurrent) > 0 && len(leftPrior) > 0 {
		result.Stats.FuzzyTriggered = true
		fuzzyPairs, stillCurrent, stillPrior := e.fuzzyMatch(leftCurrent, leftPrior)
		result.Stats.FuzzyMatched = len(fuzzyPairs)
		allPairs = append(allPairs, fuzzyPairs...)
		leftCurrent, leftPrior = stillCurrent, stillPrior

		nearMisses := e.nearMissAudit(leftCurrent, leftPrior)
		result.NearMisses = nearMisses
		result.Stats.NearMisses = len(nearMisses)

		for _, nm := range nearMisses {
			e.logger.WithFields(logger.Fields{
				"tag":   nm.Tag,
				"score": nm.Score,
			}).Info("Near-miss fuzzy pairing logged for review")
		}
	}

	result.UnmatchedCurrent = leftCurrent
	result.UnmatchedPrior = leftPrior

	pairs := make([]models.MatchedPair, 0, len(allPairs))
	for _, mf := range allPairs {
		pairs = append(pairs, buildPair(mf))
	}
	result.Pairs, result.Stats.Deduplicated = Deduplicate(pairs)

	e.logger.WithFields(logger.Fields{
		"zip_matched":       result.Stats.ZipMatched,
		"fuzzy_matched":     result.Stats.FuzzyMatched,
		"unmatched_current": len(result.UnmatchedCurrent),
		"unmatched_prior":   len(result.UnmatchedPrior),
		"keys_used":         result.Stats.KeysUsed,
		"overlap_ratio":     fmt.Sprintf("%.3f", ratio),
	}).Info("Cross-period matching completed")

	return result, nil
}

// ReduceKeys finds the most specific key tuple whose shared-group ratio
// reaches the configured minimum. Fields are dropped from the right, one at a
// time, never below the minimum set. Dropping a field can only merge groups,
// so the ratio is monotonically non-decreasing along the way.
func (e *Engine) ReduceKeys(current, prior []models.EnrichedFact, fields, minFields []string) ([]string, float64) {
	active := make([]string, len(fields))
	copy(active, fields)

	ratio := sharedRatio(groupBy(current, active), groupBy(prior, active))
	for ratio < e.config.MinOverlapRatio && len(active) > len(minFields) {
		dropped := active[len(active)-1]
		active = active[:len(active)-1]
		ratio = sharedRatio(groupBy(current, active), groupBy(prior, active))

		e.logger.WithFields(logger.Fields{
			"dropped":       dropped,
			"fields_left":   len(active),
			"overlap_ratio": fmt.Sprintf("%.3f", ratio),
		}).Debug("Key field dropped")
	}
	return active, ratio
}

// zipMatch pairs the i-th current fact with the i-th prior fact inside every
// group both sides share, in emission order. The ordering assumption is a
// heuristic: mis-pairings surface later as collision flags.
func (e *Engine) zipMatch(current, prior []models.EnrichedFact, fields []string) (pairs []matchedFacts, leftCurrent, leftPrior []models.EnrichedFact) {
	currentGroups := groupBy(current, fields)
	priorGroups := groupBy(prior, fields)

	for _, key := range currentGroups.order {
		curGroup := currentGroups.groups[key]
		priGroup, shared := priorGroups.groups[key]
		if !shared {
			leftCurrent = append(leftCurrent, curGroup...)
			continue
		}

		n := len(curGroup)
		if len(priGroup) < n {
			n = len(priGroup)
		}
		for i := 0; i < n; i++ {
			pairs = append(pairs, matchedFacts{current: curGroup[i], prior: priGroup[i]})
		}
		leftCurrent = append(leftCurrent, curGroup[n:]...)
		leftPrior = append(leftPrior, priGroup[n:]...)
	}

	for _, key := range priorGroups.order {
		if _, shared := currentGroups.groups[key]; !shared {
			leftPrior = append(leftPrior, priorGroups.groups[key]...)
		}
	}
	return pairs, leftCurrent, leftPrior
}

func buildPair(mf matchedFacts) models.MatchedPair {
	return models.MatchedPair{
		Tag:               mf.current.Tag,
		DateType:          mf.current.DateType,
		Axes:              mf.current.Axes,
		CurrentStart:      mf.current.Start,
		CurrentEnd:        mf.current.End,
		CurrentValue:      models.NewNullDecimal(mf.current.Value),
		CurrentContextRef: mf.current.ContextRef,
		PriorStart:        mf.prior.Start,
		PriorEnd:          mf.prior.End,
		PriorValue:        models.NewNullDecimal(mf.prior.Value),
		PriorContextRef:   mf.prior.ContextRef,
		PresentationRole:  mf.current.PresentationRole,
	}
}

// Deduplicate drops rows that repeat an earlier row's tag and value pair,
// keeping the first occurrence. It returns the survivors and the drop count.
func Deduplicate(pairs []models.MatchedPair) ([]models.MatchedPair, int) {
	seen := make(map[string]bool, len(pairs))
	out := make([]models.MatchedPair, 0, len(pairs))
	for _, pair := range pairs {
		key := pair.ValueKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, pair)
	}
	return out, len(pairs) - len(out)
}
