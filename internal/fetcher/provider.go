package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"edgar-reconciliation-service/internal/models"
	"edgar-reconciliation-service/internal/parsers"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Provider turns EDGAR's raw feeds and documents into typed filings. Filing
// history resolution runs an ordered list of sources: the recent submissions
// feed first, then the slower full master index scan when the feed comes up
// short of the configured history depth.
type Provider struct {
	client   *Client
	config   *Config
	inline   *parsers.InlineParser
	linkbase *parsers.LinkbaseParser
	logger   logger.Logger
}

// NewProvider creates a Provider over an EDGAR client
func NewProvider(client *Client, config *Config, log logger.Logger) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "fetcher", err.Error(), err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("fetcher")
	return &Provider{
		client:   client,
		config:   config,
		inline:   parsers.NewInlineParser(log),
		linkbase: parsers.NewLinkbaseParser(log),
		logger:   log,
	}, nil
}

// filingSource is one strategy for resolving a company's filing history
type filingSource struct {
	name  string
	fetch func(ctx context.Context) ([]models.FilingRef, error)
}

// CompanyFilings resolves a ticker and returns its 10-Q and 10-K history up
// to maxYear, newest first, capped at the configured history depth. Sources
// are tried in order until one yields enough filings; the last source's
// result is used even when still short, since a shallow history may simply
// be a young company.
func (p *Provider) CompanyFilings(ctx context.Context, ticker string, maxYear int) (string, []models.FilingRef, error) {
	cik, err := p.client.LookupCIK(ctx, ticker)
	if err != nil {
		return "", nil, err
	}

	sources := []filingSource{
		{name: "recent_submissions", fetch: func(ctx context.Context) ([]models.FilingRef, error) {
			return p.client.RecentFilings(ctx, cik)
		}},
		{name: "master_index", fetch: func(ctx context.Context) ([]models.FilingRef, error) {
			return p.client.MasterIndexFilings(ctx, cik, p.indexYears(maxYear))
		}},
	}

	var selected []models.FilingRef
	var lastErr error
	for i, source := range sources {
		refs, err := source.fetch(ctx)
		if err != nil {
			lastErr = err
			p.logger.WithError(err).WithField("source", source.name).Warn("Filing source failed")
			continue
		}

		selected = p.selectHistory(refs, maxYear)
		if p.sufficient(selected) {
			return cik, selected, nil
		}
		if i < len(sources)-1 {
			p.logger.WithFields(logger.Fields{
				"source":  source.name,
				"filings": len(selected),
			}).Warn("Filing history too shallow, trying next source")
		}
	}

	if len(selected) == 0 {
		if lastErr != nil {
			return "", nil, lastErr
		}
		return "", nil, apperrors.FetchError(apperrors.CodeNoCandidateFound, ticker, nil)
	}
	return cik, selected, nil
}

// indexYears is the year window scanned during the master index fallback:
// enough history for the annual depth plus the year after the target, since
// a fiscal year ending in January files in the following calendar year.
func (p *Provider) indexYears(maxYear int) []int {
	years := make([]int, 0, p.config.MaxAnnualFilings+2)
	for y := maxYear - (p.config.MaxAnnualFilings - 1); y <= maxYear+1; y++ {
		years = append(years, y)
	}
	return years
}

// selectHistory keeps filings ending in or before maxYear, newest first,
// capped per form at the configured depth.
func (p *Provider) selectHistory(refs []models.FilingRef, maxYear int) []models.FilingRef {
	sorted := make([]models.FilingRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PeriodEnd.After(sorted[j].PeriodEnd)
	})

	quarterly, annual := 0, 0
	selected := make([]models.FilingRef, 0, p.config.MaxQuarterlyFilings+p.config.MaxAnnualFilings)
	for _, ref := range sorted {
		if maxYear > 0 && ref.PeriodEnd.Year() > maxYear {
			continue
		}
		switch ref.Form {
		case models.Form10Q:
			if quarterly >= p.config.MaxQuarterlyFilings {
				continue
			}
			quarterly++
		case models.Form10K:
			if annual >= p.config.MaxAnnualFilings {
				continue
			}
			annual++
		default:
			continue
		}
		selected = append(selected, ref)
	}
	return selected
}

func (p *Provider) sufficient(refs []models.FilingRef) bool {
	quarterly, annual := 0, 0
	for _, ref := range refs {
		switch ref.Form {
		case models.Form10Q:
			quarterly++
		case models.Form10K:
			annual++
		}
	}
	return quarterly >= p.config.MaxQuarterlyFilings && annual >= p.config.MaxAnnualFilings
}

// LoadFiling downloads and lowers one filing: the inline XBRL document body
// plus the presentation linkbase. Document selection tries the largest .htm
// first on the assumption it is the filing body, then falls back to the
// remaining .htm files; a file is valid when it carries a document period
// end and at least the configured fact floor.
func (p *Provider) LoadFiling(ctx context.Context, cik string, ref models.FilingRef) (*models.Filing, *parsers.Linkbase, error) {
	if !ref.FilingDate.IsZero() && ref.FilingDate.Year() < p.config.MinFilingYear {
		return nil, nil, apperrors.FetchError(apperrors.CodeFilingTooOld, ref.Accession, nil)
	}

	entries, err := p.client.AccessionFiles(ctx, cik, ref.Accession)
	if err != nil {
		return nil, nil, err
	}

	doc, err := p.loadDocument(ctx, cik, ref, entries)
	if err != nil {
		return nil, nil, err
	}

	linkbase := p.loadLinkbase(ctx, cik, ref, entries)

	filing := &models.Filing{
		Form:         ref.Form,
		Accession:    ref.Accession,
		PeriodEnd:    doc.PeriodEnd,
		Facts:        doc.Facts,
		Contexts:     doc.Contexts,
		ConceptRoles: linkbase.ConceptRoles,
	}

	p.logger.WithFields(logger.Fields{
		"accession":  ref.Accession,
		"form":       ref.Form,
		"facts":      len(filing.Facts),
		"contexts":   len(filing.Contexts),
		"period_end": filing.PeriodEnd.Format("2006-01-02"),
	}).Info("Filing loaded")

	return filing, linkbase, nil
}

func (p *Provider) loadDocument(ctx context.Context, cik string, ref models.FilingRef, entries []DirectoryEntry) (*parsers.Document, error) {
	candidates := htmCandidates(entries)
	if len(candidates) == 0 {
		return nil, apperrors.FetchError(apperrors.CodeDocumentNotFound, ref.Accession, nil)
	}

	var lastErr error
	for _, entry := range candidates {
		doc, err := p.parseCandidate(ctx, cik, ref.Accession, entry.Name)
		if err != nil {
			lastErr = err
			continue
		}
		if doc.PeriodEnd.IsZero() || doc.FactCount() < p.config.MinFactCount {
			p.logger.WithFields(logger.Fields{
				"document": entry.Name,
				"facts":    doc.FactCount(),
			}).Debug("Document too sparse, trying next candidate")
			lastErr = apperrors.FetchError(apperrors.CodeDocumentTooSparse,
				fmt.Sprintf("%s (%d facts)", entry.Name, doc.FactCount()), nil)
			continue
		}
		return doc, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.FetchError(apperrors.CodeDocumentNotFound, ref.Accession, nil)
}

func (p *Provider) parseCandidate(ctx context.Context, cik, accession, name string) (*parsers.Document, error) {
	resp, err := p.client.OpenDocument(ctx, cik, accession, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return p.inline.Parse(resp.Body, name)
}

// loadLinkbase fetches the presentation linkbase. A filing without one still
// reconciles, just without role keys or sign normalization, so failures
// degrade to an empty linkbase.
func (p *Provider) loadLinkbase(ctx context.Context, cik string, ref models.FilingRef, entries []DirectoryEntry) *parsers.Linkbase {
	empty := &parsers.Linkbase{
		ConceptRoles: make(map[string][]string),
		Negated:      models.NewNegatedConceptSet(),
	}

	name := ""
	for _, entry := range entries {
		lower := strings.ToLower(entry.Name)
		if strings.Contains(lower, "pre") && strings.HasSuffix(lower, ".xml") {
			name = entry.Name
			break
		}
	}
	if name == "" {
		p.logger.WithField("accession", ref.Accession).Warn("No presentation linkbase in accession")
		return empty
	}

	resp, err := p.client.OpenDocument(ctx, cik, ref.Accession, name)
	if err != nil {
		p.logger.WithError(err).WithField("document", name).Warn("Presentation linkbase unavailable")
		return empty
	}
	defer resp.Body.Close()

	linkbase, err := p.linkbase.Parse(resp.Body, name)
	if err != nil {
		p.logger.WithError(err).WithField("document", name).Warn("Presentation linkbase unreadable")
		return empty
	}
	return linkbase
}

// htmCandidates filters a directory listing to .htm files, largest first
func htmCandidates(entries []DirectoryEntry) []DirectoryEntry {
	candidates := make([]DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(strings.ToLower(entry.Name), ".htm") {
			candidates = append(candidates, entry)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Size > candidates[j].Size
	})
	return candidates
}
