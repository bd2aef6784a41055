package matcher

import (
	"math"

	"github.com/agext/levenshtein"

	"edgar-reconciliation-service/internal/models"
)

// PartialSimilarity scores two strings 0-100 by sliding the shorter string
// over the longer one and keeping the best Levenshtein similarity among the
// windows. Identical strings score 100; a short string contained verbatim in
// a longer one also scores 100.
func PartialSimilarity(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	short := string(shorter)
	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := string(longer[i : i+len(shorter)])
		if score := levenshtein.Similarity(short, window, nil); score > best {
			best = score
			if best == 1.0 {
				break
			}
		}
	}
	return int(math.Round(best * 100))
}

// NearMiss records a candidate fuzzy pairing that scored inside the audit
// band on its weakest axis and was therefore logged but not matched.
type NearMiss struct {
	Tag               string `json:"tag"`
	CurrentContextRef string `json:"currentContextRef"`
	PriorContextRef   string `json:"priorContextRef"`
	// Score is the weakest axis score of the candidate pairing
	Score int `json:"score"`
}

// AxisSimilarity compares two axis sets slot by slot and returns the weakest
// per-slot partial similarity.
func AxisSimilarity(current, prior models.AxisSet) int {
	min := 100
	currentValues := current.Values()
	priorValues := prior.Values()
	for i := range currentValues {
		if score := PartialSimilarity(currentValues[i], priorValues[i]); score < min {
			min = score
		}
	}
	return min
}

// fuzzyMatch re-pairs leftover facts that share an identical tag. Candidates
// are scanned in emission order and the first acceptable prior fact wins; the
// scan does not look for a better match further on.
func (e *Engine) fuzzyMatch(current, prior []models.EnrichedFact) (pairs []matchedFacts, leftCurrent, leftPrior []models.EnrichedFact) {
	priorUsed := make([]bool, len(prior))

	for _, cur := range current {
		matched := false
		for j := range prior {
			if priorUsed[j] || prior[j].Tag != cur.Tag {
				continue
			}

			if AxisSimilarity(cur.Axes, prior[j].Axes) >= e.config.FuzzyAcceptScore {
				pairs = append(pairs, matchedFacts{current: cur, prior: prior[j]})
				priorUsed[j] = true
				matched = true
				break
			}
		}
		if !matched {
			leftCurrent = append(leftCurrent, cur)
		}
	}

	for j := range prior {
		if !priorUsed[j] {
			leftPrior = append(leftPrior, prior[j])
		}
	}
	return pairs, leftCurrent, leftPrior
}

// nearMissAudit sweeps every same-tag combination of the facts left unmatched
// after all passes and records the pairings whose weakest axis lands inside
// the audit band. Running over the final unmatched sets keeps the log
// complete and independent of fuzzy scan order.
func (e *Engine) nearMissAudit(current, prior []models.EnrichedFact) []NearMiss {
	var misses []NearMiss
	for _, cur := range current {
		for _, p := range prior {
			if p.Tag != cur.Tag {
				continue
			}
			score := AxisSimilarity(cur.Axes, p.Axes)
			if score >= e.config.NearMissLow && score <= e.config.NearMissHigh {
				misses = append(misses, NearMiss{
					Tag:               cur.Tag,
					CurrentContextRef: cur.ContextRef,
					PriorContextRef:   p.ContextRef,
					Score:             score,
				})
			}
		}
	}
	return misses
}
