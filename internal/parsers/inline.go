// Package parsers lowers EDGAR documents into typed records: inline XBRL
// filings into facts and contexts, presentation linkbases into role maps and
// negated-label sets.
package parsers

import (
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Document is the typed result of lowering one inline XBRL filing
type Document struct {
	Name      string
	Facts     []models.RawFact
	Contexts  map[string]*models.Context
	PeriodEnd time.Time
	// Issues holds the advisory errors raised for skipped facts and contexts
	Issues []*apperrors.PipelineError
}

// FactCount returns the number of usable numeric facts
func (d *Document) FactCount() int {
	return len(d.Facts)
}

// InlineParser lowers inline XBRL documents
type InlineParser struct {
	logger logger.Logger
}

// NewInlineParser creates an InlineParser
func NewInlineParser(log logger.Logger) *InlineParser {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &InlineParser{logger: log.WithComponent("parser")}
}

// Parse walks an inline XBRL document once, collecting context blocks,
// numeric facts in emission order, and the document period end date. Facts
// with unparseable values or dangling context references are skipped with an
// advisory issue; only a document that cannot be read at all is an error.
func (p *InlineParser) Parse(r io.Reader, name string) (*Document, error) {
	root, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidDocument, name, err.Error(), err)
	}

	doc := &Document{
		Name:     name,
		Contexts: make(map[string]*models.Context),
	}

	var rawFacts []rawInlineFact
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch localName(goquery.NodeName(s)) {
		case "context":
			p.collectContext(doc, s)
		case "nonfraction":
			rawFacts = append(rawFacts, rawInlineFact{
				tag:        s.AttrOr("name", ""),
				contextRef: s.AttrOr("contextref", ""),
				scale:      s.AttrOr("scale", ""),
				sign:       s.AttrOr("sign", ""),
				text:       s.Text(),
			})
		case "nonnumeric":
			p.collectNonNumeric(doc, s)
		}
	})

	// Facts are lowered after all contexts are known because inline documents
	// commonly place the context header after the first tagged values.
	for _, raw := range rawFacts {
		p.lowerFact(doc, raw)
	}

	p.logger.WithFields(logger.Fields{
		"document": name,
		"facts":    len(doc.Facts),
		"contexts": len(doc.Contexts),
		"issues":   len(doc.Issues),
	}).Debug("Inline document parsed")

	return doc, nil
}

type rawInlineFact struct {
	tag        string
	contextRef string
	scale      string
	sign       string
	text       string
}

func (p *InlineParser) collectContext(doc *Document, s *goquery.Selection) {
	id := s.AttrOr("id", "")
	if id == "" {
		return
	}

	ctx := &models.Context{ID: id}
	var start, end, instant string

	s.Find("*").Each(func(_ int, child *goquery.Selection) {
		switch localName(goquery.NodeName(child)) {
		case "startdate":
			start = child.Text()
		case "enddate":
			end = child.Text()
		case "instant":
			instant = child.Text()
		case "explicitmember":
			axis := child.AttrOr("dimension", "")
			member := strings.TrimSpace(child.Text())
			if axis != "" {
				ctx.Dimensions = append(ctx.Dimensions, models.Dimension{Axis: axis, Member: member})
			}
		}
	})

	switch {
	case instant != "":
		t, err := ParseDate(instant)
		if err != nil {
			doc.Issues = append(doc.Issues,
				apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, instant, err))
			return
		}
		ctx.Kind = models.PeriodInstant
		ctx.Instant = t
	case start != "" && end != "":
		startDate, err := ParseDate(start)
		if err != nil {
			doc.Issues = append(doc.Issues,
				apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, start, err))
			return
		}
		endDate, err := ParseDate(end)
		if err != nil {
			doc.Issues = append(doc.Issues,
				apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, end, err))
			return
		}
		ctx.Kind = models.PeriodDuration
		ctx.Start = startDate
		ctx.End = endDate
	default:
		// A context without parseable bounds makes its facts unusable.
		doc.Issues = append(doc.Issues,
			apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, id, nil))
		return
	}

	if err := ctx.Validate(); err != nil {
		doc.Issues = append(doc.Issues,
			apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, id, err))
		return
	}
	doc.Contexts[id] = ctx
}

func (p *InlineParser) collectNonNumeric(doc *Document, s *goquery.Selection) {
	name := s.AttrOr("name", "")
	if !strings.EqualFold(localName(name), "documentperiodenddate") {
		return
	}

	t, err := ParseDate(s.Text())
	if err != nil {
		doc.Issues = append(doc.Issues,
			apperrors.ParseError(apperrors.CodeInvalidDate, doc.Name, s.Text(), err))
		return
	}
	doc.PeriodEnd = t
}

func (p *InlineParser) lowerFact(doc *Document, raw rawInlineFact) {
	if raw.tag == "" || raw.contextRef == "" {
		return
	}

	if _, ok := doc.Contexts[raw.contextRef]; !ok {
		doc.Issues = append(doc.Issues,
			apperrors.ParseError(apperrors.CodeMissingContext, doc.Name, raw.contextRef, nil))
		return
	}

	value, err := ParseNumericFact(raw.text, raw.scale, raw.sign)
	if err != nil {
		doc.Issues = append(doc.Issues,
			apperrors.ParseError(apperrors.CodeInvalidValue, doc.Name, raw.text, err))
		return
	}

	doc.Facts = append(doc.Facts, models.RawFact{
		Tag:        raw.tag,
		ContextRef: raw.contextRef,
		Value:      value,
		Text:       strings.TrimSpace(raw.text),
		Seq:        len(doc.Facts),
	})
}
