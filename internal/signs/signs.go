// Package signs applies the filer's display sign convention to matched
// output. XBRL tags many outflows as positive numbers while the filing
// displays them negative; the presentation linkbase records which concepts
// get this treatment.
package signs

import (
	"github.com/shopspring/decimal"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// Normalizer fills the visual value fields of matched pairs
type Normalizer struct {
	negated models.NegatedConceptSet
	logger  logger.Logger
}

// New creates a Normalizer over a negated concept set. A nil set means no
// concept is flipped.
func New(negated models.NegatedConceptSet, log logger.Logger) *Normalizer {
	if negated == nil {
		negated = models.NewNegatedConceptSet()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Normalizer{negated: negated, logger: log.WithComponent("signs")}
}

// Apply sets the visual values of every pair in place: negated tags flip
// sign, everything else passes through, null values stay null. The current
// and prior sides are handled independently. Returns the number of pairs
// whose sign was flipped.
func (n *Normalizer) Apply(pairs []models.MatchedPair) int {
	flipped := 0
	for i := range pairs {
		pair := &pairs[i]
		negate := n.negated.Contains(pair.Tag)

		pair.VisualCurrentValue = visual(pair.CurrentValue, negate)
		pair.VisualPriorValue = visual(pair.PriorValue, negate)
		if negate && pair.HasAnyValue() {
			flipped++
		}
	}

	if flipped > 0 {
		n.logger.WithFields(logger.Fields{
			"flipped": flipped,
			"total":   len(pairs),
		}).Debug("Display signs normalized")
	}
	return flipped
}

func visual(value decimal.NullDecimal, negate bool) decimal.NullDecimal {
	if !value.Valid || !negate {
		return value
	}
	return models.NewNullDecimal(value.Decimal.Neg())
}
