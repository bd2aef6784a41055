package models

import "strings"

// NoMember is the placeholder stored in an axis slot that carries no
// dimensional member. Keeping a non-empty sentinel makes key construction and
// fuzzy comparison uniform across dimensioned and undimensioned facts.
const NoMember = "__NONE__"

// AxisCategory names one of the fixed dimensional buckets facts are grouped
// into for matching.
type AxisCategory string

const (
	AxisConsolidation AxisCategory = "consolidation"
	AxisSegment       AxisCategory = "segment"
	AxisProduct       AxisCategory = "product"
	AxisGeo           AxisCategory = "geo"
	AxisLegalEntity   AxisCategory = "legal_entity"
	AxisUnassigned    AxisCategory = "unassigned"
)

// AxisCategories lists the buckets in their canonical order. Key construction
// and fuzzy comparison walk this order.
var AxisCategories = []AxisCategory{
	AxisConsolidation,
	AxisSegment,
	AxisProduct,
	AxisGeo,
	AxisLegalEntity,
	AxisUnassigned,
}

// AxisRule maps axis-name substrings to a bucket. Rules are evaluated in
// order and the first hit wins, so more specific patterns must come before
// broader ones.
type AxisRule struct {
	Category AxisCategory
	Patterns []string
}

// DefaultAxisRules returns the standard classification rule list. Rules run
// in order and the first matching keyword wins, so the broad "entity"
// keyword sits in the last rule where earlier buckets cannot lose axes
// to it.
func DefaultAxisRules() []AxisRule {
	return []AxisRule{
		{Category: AxisConsolidation, Patterns: []string{"consolidation"}},
		{Category: AxisSegment, Patterns: []string{"segment", "business"}},
		{Category: AxisProduct, Patterns: []string{"product", "service"}},
		{Category: AxisGeo, Patterns: []string{"geo", "region", "country"}},
		{Category: AxisLegalEntity, Patterns: []string{"legal", "entity"}},
	}
}

// ClassifyAxis buckets an axis name using the given rule list. Unmatched
// names fall through to AxisUnassigned.
func ClassifyAxis(rules []AxisRule, axis string) AxisCategory {
	lowered := strings.ToLower(axis)
	for _, rule := range rules {
		for _, p := range rule.Patterns {
			if strings.Contains(lowered, p) {
				return rule.Category
			}
		}
	}
	return AxisUnassigned
}

// AxisSet holds the member assigned to each dimensional bucket. Slots without
// a member hold NoMember.
type AxisSet struct {
	Consolidation string `json:"consolidation"`
	Segment       string `json:"segment"`
	Product       string `json:"product"`
	Geo           string `json:"geo"`
	LegalEntity   string `json:"legalEntity"`
	Unassigned    string `json:"unassigned"`
}

// EmptyAxisSet returns an AxisSet with every slot set to NoMember
func EmptyAxisSet() AxisSet {
	return AxisSet{
		Consolidation: NoMember,
		Segment:       NoMember,
		Product:       NoMember,
		Geo:           NoMember,
		LegalEntity:   NoMember,
		Unassigned:    NoMember,
	}
}

// AssignAxes classifies each dimension of a context into its bucket. When two
// dimensions land in the same bucket their members are joined with "|" in
// dimension order so no member is silently dropped. A dimension matching no
// rule keeps its axis name in the unassigned slot as "axis=member" text, so
// audits can see what the classifier missed.
func AssignAxes(rules []AxisRule, dims []Dimension) AxisSet {
	set := EmptyAxisSet()
	for _, d := range dims {
		cat := ClassifyAxis(rules, d.Axis)
		member := d.Member
		if cat == AxisUnassigned {
			member = strings.ToLower(d.Axis) + "=" + d.Member
		}
		slot := set.get(cat)
		if slot == NoMember {
			set.set(cat, member)
		} else {
			set.set(cat, slot+"|"+member)
		}
	}
	return set
}

// Values returns the slot members in canonical bucket order
func (s AxisSet) Values() []string {
	return []string{s.Consolidation, s.Segment, s.Product, s.Geo, s.LegalEntity, s.Unassigned}
}

// IsEmpty reports whether no bucket carries a member
func (s AxisSet) IsEmpty() bool {
	for _, v := range s.Values() {
		if v != NoMember {
			return false
		}
	}
	return true
}

func (s AxisSet) get(cat AxisCategory) string {
	switch cat {
	case AxisConsolidation:
		return s.Consolidation
	case AxisSegment:
		return s.Segment
	case AxisProduct:
		return s.Product
	case AxisGeo:
		return s.Geo
	case AxisLegalEntity:
		return s.LegalEntity
	default:
		return s.Unassigned
	}
}

func (s *AxisSet) set(cat AxisCategory, member string) {
	switch cat {
	case AxisConsolidation:
		s.Consolidation = member
	case AxisSegment:
		s.Segment = member
	case AxisProduct:
		s.Product = member
	case AxisGeo:
		s.Geo = member
	case AxisLegalEntity:
		s.LegalEntity = member
	default:
		s.Unassigned = member
	}
}
