package parsers

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Linkbase is the typed result of lowering a presentation linkbase: which
// presentation roles each concept appears under, and which concepts the filer
// displays with a reversed sign.
type Linkbase struct {
	ConceptRoles map[string][]string
	Negated      models.NegatedConceptSet
}

// LinkbaseParser lowers presentation linkbase documents
type LinkbaseParser struct {
	logger logger.Logger
}

// NewLinkbaseParser creates a LinkbaseParser
func NewLinkbaseParser(log logger.Logger) *LinkbaseParser {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LinkbaseParser{logger: log.WithComponent("parser")}
}

// Parse walks the presentation links of a linkbase. Each locator maps an
// internal label to a concept; each arc whose preferred label contains
// "negated" marks its target concept as visually sign-flipped.
func (p *LinkbaseParser) Parse(r io.Reader, name string) (*Linkbase, error) {
	root, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidDocument, name, err.Error(), err)
	}

	lb := &Linkbase{
		ConceptRoles: make(map[string][]string),
		Negated:      models.NewNegatedConceptSet(),
	}

	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		if localName(goquery.NodeName(s)) != "presentationlink" {
			return
		}
		p.collectLink(lb, s)
	})

	p.logger.WithFields(logger.Fields{
		"document": name,
		"concepts": len(lb.ConceptRoles),
		"negated":  len(lb.Negated),
	}).Debug("Presentation linkbase parsed")

	return lb, nil
}

func (p *LinkbaseParser) collectLink(lb *Linkbase, link *goquery.Selection) {
	role := shortRole(link.AttrOr("xlink:role", ""))

	labelToConcept := make(map[string]string)
	type arc struct {
		to             string
		preferredLabel string
	}
	var arcs []arc

	link.Find("*").Each(func(_ int, child *goquery.Selection) {
		switch localName(goquery.NodeName(child)) {
		case "loc":
			label := child.AttrOr("xlink:label", "")
			concept := conceptFromHref(child.AttrOr("xlink:href", ""))
			if label != "" && concept != "" {
				labelToConcept[label] = concept
			}
		case "presentationarc":
			arcs = append(arcs, arc{
				to:             child.AttrOr("xlink:to", ""),
				preferredLabel: child.AttrOr("preferredlabel", ""),
			})
		}
	})

	if role != "" {
		for _, concept := range labelToConcept {
			if !containsRole(lb.ConceptRoles[concept], role) {
				lb.ConceptRoles[concept] = append(lb.ConceptRoles[concept], role)
			}
		}
	}

	for _, a := range arcs {
		if !strings.Contains(strings.ToLower(a.preferredLabel), "negated") {
			continue
		}
		if concept, ok := labelToConcept[a.to]; ok {
			lb.Negated.Add(concept)
		}
	}
}

// conceptFromHref extracts the concept from a locator href fragment, turning
// the schema form "us-gaap_Revenues" back into the tag form
// "us-gaap:Revenues".
func conceptFromHref(href string) string {
	idx := strings.LastIndex(href, "#")
	if idx < 0 || idx == len(href)-1 {
		return ""
	}
	fragment := href[idx+1:]
	if us := strings.Index(fragment, "_"); us > 0 {
		return fragment[:us] + ":" + fragment[us+1:]
	}
	return fragment
}

// shortRole reduces a role URI to its final path segment
func shortRole(uri string) string {
	uri = strings.TrimRight(strings.TrimSpace(uri), "/")
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
