package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormType represents the SEC form a filing was submitted on
type FormType string

const (
	// Form10Q is a quarterly report
	Form10Q FormType = "10-Q"
	// Form10K is an annual report
	Form10K FormType = "10-K"
)

// String returns the string representation of FormType
func (f FormType) String() string {
	return string(f)
}

// IsValid checks if the form type is one the engine can process
func (f FormType) IsValid() bool {
	return f == Form10Q || f == Form10K
}

// PeriodKind distinguishes duration contexts (flows) from instant contexts
// (balances)
type PeriodKind string

const (
	// PeriodDuration is a context with a start and end date
	PeriodDuration PeriodKind = "duration"
	// PeriodInstant is a context with a single point-in-time date
	PeriodInstant PeriodKind = "instant"
)

// MatchedCategory is the reporting-period bucket a fact was classified into
// relative to its filing's anchor dates.
type MatchedCategory string

const (
	CategoryCurrentQ        MatchedCategory = "current_q"
	CategoryPriorQ          MatchedCategory = "prior_q"
	CategoryCurrentYTD      MatchedCategory = "current_ytd"
	CategoryPriorYTD        MatchedCategory = "prior_ytd"
	CategoryCurrentFullYear MatchedCategory = "current_full_year"
	CategoryPriorFullYear   MatchedCategory = "prior_full_year"
	// CategoryNone marks a fact whose period matched no anchor; it is excluded
	// from matching but retained for missing-tag audits.
	CategoryNone MatchedCategory = ""
)

// DateType is the simplified period label derived from MatchedCategory
type DateType string

const (
	DateTypeQ    DateType = "Q"
	DateTypeYTD  DateType = "YTD"
	DateTypeFY   DateType = "FY"
	DateTypeNone DateType = ""
)

// DateType returns the DateType a category maps to. The mapping is total and
// deterministic: every category has exactly one date type.
func (c MatchedCategory) DateType() DateType {
	switch c {
	case CategoryCurrentQ, CategoryPriorQ:
		return DateTypeQ
	case CategoryCurrentYTD, CategoryPriorYTD:
		return DateTypeYTD
	case CategoryCurrentFullYear, CategoryPriorFullYear:
		return DateTypeFY
	default:
		return DateTypeNone
	}
}

// IsCurrent reports whether the category belongs to the current period side
func (c MatchedCategory) IsCurrent() bool {
	switch c {
	case CategoryCurrentQ, CategoryCurrentYTD, CategoryCurrentFullYear:
		return true
	}
	return false
}

// Dimension is a single axis/member pair from a context's segment block
type Dimension struct {
	Axis   string `json:"axis"`
	Member string `json:"member"`
}

// Context describes the reporting period and dimensional breakdown shared by
// one or more facts in a filing.
type Context struct {
	ID         string      `json:"id"`
	Kind       PeriodKind  `json:"kind"`
	Start      time.Time   `json:"start,omitempty"`
	End        time.Time   `json:"end,omitempty"`
	Instant    time.Time   `json:"instant,omitempty"`
	Dimensions []Dimension `json:"dimensions,omitempty"`
}

// Validate performs basic validation on the Context
func (c *Context) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("context id cannot be empty")
	}

	switch c.Kind {
	case PeriodDuration:
		if c.Start.IsZero() || c.End.IsZero() {
			return fmt.Errorf("duration context %s is missing start or end date", c.ID)
		}
		if c.End.Before(c.Start) {
			return fmt.Errorf("duration context %s ends before it starts", c.ID)
		}
	case PeriodInstant:
		if c.Instant.IsZero() {
			return fmt.Errorf("instant context %s is missing its date", c.ID)
		}
	default:
		return fmt.Errorf("context %s has unknown period kind %q", c.ID, c.Kind)
	}

	return nil
}

// RawFact is a single tagged data point as extracted from an inline XBRL
// document, before enrichment.
type RawFact struct {
	Tag        string          `json:"tag"`
	ContextRef string          `json:"contextRef"`
	Value      decimal.Decimal `json:"value"`
	Text       string          `json:"text,omitempty"`
	// Seq is the emission index within the source document. Grouping and
	// positional matching preserve this order.
	Seq int `json:"seq"`
}

// Filing represents a single retrieved 10-Q or 10-K with its extracted facts
// and contexts. A Filing is labeled once by the fiscal calendar resolver and
// immutable afterwards.
type Filing struct {
	Form      FormType `json:"form"`
	Accession string   `json:"accession"`
	// PeriodEnd is the document period end date (dei:DocumentPeriodEndDate).
	PeriodEnd time.Time `json:"periodEnd"`

	// Calendar labels, populated by the fiscal calendar resolver.
	FiscalYear        int       `json:"fiscalYear,omitempty"`
	Quarter           int       `json:"quarter,omitempty"` // 1-3 for 10-Qs, 0 when unlabeled
	FiscalYearEnd     time.Time `json:"fiscalYearEnd,omitempty"`
	Label             string    `json:"label,omitempty"` // e.g. "2Q24" or "FY24"
	NonStandardPeriod bool      `json:"nonStandardPeriod,omitempty"`

	Facts    []RawFact           `json:"facts"`
	Contexts map[string]*Context `json:"contexts"`
	// ConceptRoles maps a concept tag to the presentation roles it appears
	// under in the filing's presentation linkbase.
	ConceptRoles map[string][]string `json:"conceptRoles,omitempty"`
}

// Validate performs basic validation on the Filing
func (f *Filing) Validate() error {
	if !f.Form.IsValid() {
		return fmt.Errorf("invalid form type: %s", f.Form)
	}

	if strings.TrimSpace(f.Accession) == "" {
		return fmt.Errorf("filing accession cannot be empty")
	}

	if f.PeriodEnd.IsZero() {
		return fmt.Errorf("filing %s has no document period end date", f.Accession)
	}

	return nil
}

// String returns a short human-readable description of the Filing
func (f *Filing) String() string {
	label := f.Label
	if label == "" {
		label = "unlabeled"
	}
	return fmt.Sprintf("Filing{%s %s, period end %s, %d facts}",
		f.Form, label, f.PeriodEnd.Format("2006-01-02"), len(f.Facts))
}

// RoleString flattens the presentation roles recorded for a tag into the
// stable sorted pipe-joined form used as a match key component.
func (f *Filing) RoleString(tag string) string {
	roles := f.ConceptRoles[tag]
	if len(roles) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(roles))
	unique := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		unique = append(unique, r)
	}
	sort.Strings(unique)
	return strings.Join(unique, "|")
}

// FilingRef is one entry from a company's filing index: form type, accession
// and dates only. The facts behind a reference are fetched separately.
type FilingRef struct {
	Form       FormType  `json:"form"`
	Accession  string    `json:"accession"`
	PeriodEnd  time.Time `json:"periodEnd"`
	FilingDate time.Time `json:"filingDate"`
	PrimaryDoc string    `json:"primaryDoc,omitempty"`
}

// EnrichedFact is a RawFact joined with its context's period, its axis
// category assignments, presentation role, and period classification.
type EnrichedFact struct {
	Tag        string          `json:"tag"`
	Value      decimal.Decimal `json:"value"`
	ContextRef string          `json:"contextRef"`
	Seq        int             `json:"seq"`

	PeriodKind PeriodKind `json:"periodKind"`
	Start      time.Time  `json:"start,omitempty"`
	// End holds the end date for durations and the instant date for instants.
	End time.Time `json:"end,omitempty"`

	Category MatchedCategory `json:"matchedCategory,omitempty"`
	DateType DateType        `json:"dateType,omitempty"`

	PresentationRole string  `json:"presentationRole,omitempty"`
	Axes             AxisSet `json:"axes"`
}

// MatchedPair is one current-vs-prior correspondence produced by the matcher
// (or the 4Q synthesizer). One pair should describe one real-world
// comparison; CollisionFlag marks rows where the collision audit found the
// pairing ambiguous.
type MatchedPair struct {
	Tag      string   `json:"tag"`
	DateType DateType `json:"dateType"`
	Axes     AxisSet  `json:"axes"`

	CurrentStart      time.Time           `json:"currentStart,omitempty"`
	CurrentEnd        time.Time           `json:"currentEnd,omitempty"`
	CurrentValue      decimal.NullDecimal `json:"currentValue"`
	CurrentContextRef string              `json:"currentContextRef,omitempty"`

	PriorStart      time.Time           `json:"priorStart,omitempty"`
	PriorEnd        time.Time           `json:"priorEnd,omitempty"`
	PriorValue      decimal.NullDecimal `json:"priorValue"`
	PriorContextRef string              `json:"priorContextRef,omitempty"`

	PresentationRole string `json:"presentationRole,omitempty"`
	CollisionFlag    bool   `json:"collisionFlag"`

	// Visual values carry the filer's display sign convention; populated by
	// the sign normalizer, equal to the raw values for non-negated tags.
	VisualCurrentValue decimal.NullDecimal `json:"visualCurrentValue"`
	VisualPriorValue   decimal.NullDecimal `json:"visualPriorValue"`
}

// HasAnyValue reports whether at least one side of the pair carries a value
func (p *MatchedPair) HasAnyValue() bool {
	return p.CurrentValue.Valid || p.PriorValue.Valid
}

// ValueKey identifies a pair by tag and both values; exact-duplicate rows
// share a ValueKey and are collapsed before output.
func (p *MatchedPair) ValueKey() string {
	return strings.Join([]string{p.Tag, nullDecimalString(p.CurrentValue), nullDecimalString(p.PriorValue)}, "\x1f")
}

// NegatedConceptSet is the set of tags the filer's presentation linkbase
// marks with a negated preferred label.
type NegatedConceptSet map[string]struct{}

// NewNegatedConceptSet builds a NegatedConceptSet from a list of tags
func NewNegatedConceptSet(tags ...string) NegatedConceptSet {
	s := make(NegatedConceptSet, len(tags))
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// Add inserts a tag into the set
func (s NegatedConceptSet) Add(tag string) {
	s[tag] = struct{}{}
}

// Contains reports whether a tag is in the set
func (s NegatedConceptSet) Contains(tag string) bool {
	_, ok := s[tag]
	return ok
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// NewNullDecimal wraps a decimal in a valid NullDecimal
func NewNullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
