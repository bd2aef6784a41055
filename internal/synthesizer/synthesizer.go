// Package synthesizer derives the implied fourth quarter that most filers
// never disclose standalone: full-year flows minus nine-month cumulative
// flows, computed independently for the current and prior year. Balances need
// no arithmetic and are passed through from the annual filing's matched
// instants.
package synthesizer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"edgar-reconciliation-service/internal/matcher"
	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/pkg/logger"
)

// Synthesizer computes implied fourth-quarter pairs
type Synthesizer struct {
	// acceptScore is the axis similarity floor for the fuzzy key join used
	// when a full-year row has no exact nine-month counterpart.
	acceptScore int
	logger      logger.Logger
}

// New creates a Synthesizer. A non-positive accept score disables the fuzzy
// key join.
func New(acceptScore int, log logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Synthesizer{acceptScore: acceptScore, logger: log.WithComponent("synthesizer")}
}

// Stats summarizes one synthesis run
type Stats struct {
	FullYearRows int `json:"full_year_rows"`
	Derived      int `json:"derived"`
	FuzzyJoined  int `json:"fuzzy_joined"`
	Unjoined     int `json:"unjoined"`
	Instants     int `json:"instants"`
	Dropped      int `json:"dropped"`
}

// ImpliedQ4 subtracts each nine-month row from its full-year counterpart.
// Rows join on tag plus the exact axis tuple; full-year rows without an exact
// counterpart fall back to a fuzzy axis join; rows that still find no
// counterpart are skipped. The two year sides subtract independently, so a
// row can carry a current value with a null prior or vice versa.
func (s *Synthesizer) ImpliedQ4(fullYear, nineMonth []models.MatchedPair) ([]models.MatchedPair, Stats) {
	stats := Stats{FullYearRows: len(fullYear)}

	ytdByKey := make(map[string][]int)
	for i := range nineMonth {
		key := joinKey(&nineMonth[i])
		ytdByKey[key] = append(ytdByKey[key], i)
	}
	used := make([]bool, len(nineMonth))

	var derived []models.MatchedPair
	for i := range fullYear {
		fy := &fullYear[i]

		ytdIdx := -1
		for _, idx := range ytdByKey[joinKey(fy)] {
			if !used[idx] {
				ytdIdx = idx
				break
			}
		}
		if ytdIdx < 0 && s.acceptScore > 0 {
			ytdIdx = s.fuzzyJoin(fy, nineMonth, used)
			if ytdIdx >= 0 {
				stats.FuzzyJoined++
			}
		}
		if ytdIdx < 0 {
			stats.Unjoined++
			continue
		}
		used[ytdIdx] = true

		derived = append(derived, derive(fy, &nineMonth[ytdIdx]))
		stats.Derived++
	}

	s.logger.WithFields(logger.Fields{
		"derived":      stats.Derived,
		"fuzzy_joined": stats.FuzzyJoined,
		"unjoined":     stats.Unjoined,
	}).Info("Implied fourth quarter derived")

	return derived, stats
}

// Combine concatenates derived flow rows with directly matched instant rows,
// collapses exact duplicates, and drops rows carrying no value on either
// side. The drop matters because independent subtraction can leave a row
// fully empty when both years were missing one operand.
func (s *Synthesizer) Combine(derived, instants []models.MatchedPair, stats *Stats) []models.MatchedPair {
	stats.Instants = len(instants)

	combined := make([]models.MatchedPair, 0, len(derived)+len(instants))
	combined = append(combined, derived...)
	combined = append(combined, instants...)

	deduped, dropped := matcher.Deduplicate(combined)

	out := make([]models.MatchedPair, 0, len(deduped))
	for _, pair := range deduped {
		if pair.HasAnyValue() {
			out = append(out, pair)
		} else {
			dropped++
		}
	}
	stats.Dropped = dropped
	return out
}

// fuzzyJoin scans the nine-month rows for the first unused row sharing the
// tag whose axis tuple clears the accept score.
func (s *Synthesizer) fuzzyJoin(fy *models.MatchedPair, nineMonth []models.MatchedPair, used []bool) int {
	for i := range nineMonth {
		if used[i] || nineMonth[i].Tag != fy.Tag {
			continue
		}
		if matcher.AxisSimilarity(fy.Axes, nineMonth[i].Axes) >= s.acceptScore {
			return i
		}
	}
	return -1
}

func derive(fy, ytd *models.MatchedPair) models.MatchedPair {
	out := models.MatchedPair{
		Tag:              fy.Tag,
		DateType:         models.DateTypeQ,
		Axes:             fy.Axes,
		PresentationRole: fy.PresentationRole,
		CurrentStart:     dayAfter(ytd.CurrentEnd),
		CurrentEnd:       fy.CurrentEnd,
		PriorStart:       dayAfter(ytd.PriorEnd),
		PriorEnd:         fy.PriorEnd,
	}
	out.CurrentValue = subtract(fy.CurrentValue, ytd.CurrentValue)
	out.PriorValue = subtract(fy.PriorValue, ytd.PriorValue)
	return out
}

func subtract(full, partial decimal.NullDecimal) decimal.NullDecimal {
	if !full.Valid || !partial.Valid {
		return decimal.NullDecimal{}
	}
	return models.NewNullDecimal(full.Decimal.Sub(partial.Decimal))
}

func dayAfter(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.AddDate(0, 0, 1)
}

func joinKey(p *models.MatchedPair) string {
	parts := append([]string{p.Tag}, p.Axes.Values()...)
	return strings.Join(parts, "\x1f")
}
