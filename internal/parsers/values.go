package parsers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are the date renderings seen across inline documents: the ISO
// form used in context blocks and the prose forms used for transformed
// cover-page facts.
var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan. 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2006-01-02T15:04:05",
}

// ParseDate parses a date in any of the renderings inline documents use
func ParseDate(raw string) (time.Time, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", cleaned)
}

// ParseNumericFact converts the displayed text of an inline numeric fact into
// its tagged value, applying the element's scale and sign attributes. A dash
// rendering means zero. Parenthesized text is treated as already-negative
// display formatting.
func ParseNumericFact(text, scale, sign string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(text)

	negative := sign == "-"
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
		negative = true
	}

	cleaned = strings.TrimSpace(cleaned)
	switch cleaned {
	case "", "-", "—", "–":
		return decimal.Zero, nil
	}

	replacer := strings.NewReplacer(",", "", "$", "", "%", "", " ", "")
	cleaned = replacer.Replace(cleaned)

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("non-numeric fact text %q: %w", text, err)
	}

	if scale != "" {
		exp, err := decimal.NewFromString(scale)
		if err != nil || !exp.IsInteger() {
			return decimal.Decimal{}, fmt.Errorf("invalid scale %q", scale)
		}
		value = value.Shift(int32(exp.IntPart()))
	}

	if negative {
		value = value.Neg()
	}
	return value, nil
}

// localName strips the namespace prefix from a node or attribute name
func localName(name string) string {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
