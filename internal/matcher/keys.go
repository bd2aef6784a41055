package matcher

import (
	"strings"

	"edgar-reconciliation-service/internal/models"
)

// Key field names, ordered most-specific-last. Adaptive reduction drops
// fields from the right, so the order doubles as a priority: the tag is
// never dropped, the loosest axis bucket goes first.
const (
	KeyTag           = "tag"
	KeyEnd           = "end"
	KeyDateType      = "date_type"
	KeyRole          = "presentation_role"
	KeyConsolidation = "consolidation"
	KeySegment       = "segment"
	KeyProduct       = "product"
	KeyGeo           = "geo"
	KeyLegalEntity   = "legal_entity"
	KeyUnassigned    = "unassigned"
)

// DefaultKeyFields returns the full candidate key tuple
func DefaultKeyFields() []string {
	return []string{
		KeyTag, KeyDateType, KeyRole,
		KeyConsolidation, KeySegment, KeyProduct, KeyGeo, KeyLegalEntity, KeyUnassigned,
	}
}

// MinKeyFields returns the floor the adaptive reduction never drops below
func MinKeyFields() []string {
	return []string{KeyTag, KeyDateType}
}

// RescueKeyFields returns the looser tuple used by the targeted re-match of
// tags the main passes missed. The period end replaces the presentation role.
func RescueKeyFields() []string {
	return []string{
		KeyTag, KeyEnd, KeyDateType,
		KeyConsolidation, KeySegment, KeyProduct, KeyGeo, KeyLegalEntity, KeyUnassigned,
	}
}

// fieldValue extracts one key field from a fact
func fieldValue(fact *models.EnrichedFact, field string) string {
	switch field {
	case KeyTag:
		return fact.Tag
	case KeyEnd:
		if fact.End.IsZero() {
			return ""
		}
		return fact.End.Format("2006-01-02")
	case KeyDateType:
		return string(fact.DateType)
	case KeyRole:
		return fact.PresentationRole
	case KeyConsolidation:
		return fact.Axes.Consolidation
	case KeySegment:
		return fact.Axes.Segment
	case KeyProduct:
		return fact.Axes.Product
	case KeyGeo:
		return fact.Axes.Geo
	case KeyLegalEntity:
		return fact.Axes.LegalEntity
	case KeyUnassigned:
		return fact.Axes.Unassigned
	default:
		return ""
	}
}

// groupKey builds the composite key for a fact over the given fields
func groupKey(fact *models.EnrichedFact, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fieldValue(fact, f)
	}
	return strings.Join(parts, "\x1f")
}

// grouping holds facts bucketed by composite key, remembering first-seen key
// order so downstream passes emit stable output.
type grouping struct {
	groups map[string][]models.EnrichedFact
	order  []string
}

func groupBy(facts []models.EnrichedFact, fields []string) *grouping {
	g := &grouping{groups: make(map[string][]models.EnrichedFact)}
	for _, fact := range facts {
		key := groupKey(&fact, fields)
		if _, seen := g.groups[key]; !seen {
			g.order = append(g.order, key)
		}
		g.groups[key] = append(g.groups[key], fact)
	}
	return g
}

// sharedRatio computes |shared keys| / |current keys|. An empty current side
// yields zero.
func sharedRatio(current, prior *grouping) float64 {
	if len(current.order) == 0 {
		return 0
	}
	shared := 0
	for key := range current.groups {
		if _, ok := prior.groups[key]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(current.order))
}
