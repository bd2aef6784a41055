// Package fetcher retrieves filings from the SEC EDGAR archive: ticker to
// CIK resolution, the recent submissions feed with a full master index
// fallback, and inline XBRL document selection inside an accession.
package fetcher

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"edgar-reconciliation-service/internal/models"
	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

const (
	tickerExchangeURL = "https://www.sec.gov/files/company_tickers_exchange.json"
	submissionsURL    = "https://data.sec.gov/submissions/%s"
	archiveBaseURL    = "https://www.sec.gov/Archives/edgar/data/%s/%s"
	masterIndexURL    = "https://www.sec.gov/Archives/edgar/full-index/%d/%s/master.gz"
)

// Client is a rate-limited HTTP client for EDGAR
type Client struct {
	userAgent   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      logger.Logger
}

// ClientOption customizes the client
type ClientOption func(*Client)

// WithUserAgent sets the User-Agent header sent to the SEC
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit overrides the request rate cap
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = log
	}
}

// NewClient creates an EDGAR client. Defaults follow SEC fair-access
// guidance; pass options to adjust them.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		userAgent:   DefaultConfig().UserAgent,
		httpClient:  &http.Client{Timeout: DefaultConfig().Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(DefaultConfig().RequestsPerSecond), DefaultConfig().Burst),
	}
	for _, option := range options {
		option(client)
	}
	if client.logger == nil {
		client.logger = logger.GetGlobalLogger()
	}
	client.logger = client.logger.WithComponent("fetcher")
	return client
}

// NewClientFromConfig creates a client from a validated Config
func NewClientFromConfig(config *Config, log logger.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "fetcher", err.Error(), err)
	}
	options := []ClientOption{
		WithUserAgent(config.UserAgent),
		WithHTTPClient(&http.Client{Timeout: config.Timeout}),
		WithRateLimit(config.RequestsPerSecond, config.Burst),
	}
	if log != nil {
		options = append(options, WithLogger(log))
	}
	return NewClient(options...), nil
}

// LookupCIK resolves a ticker symbol to its zero-padded CIK
func (c *Client) LookupCIK(ctx context.Context, ticker string) (string, error) {
	resp, err := c.get(ctx, tickerExchangeURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var listing struct {
		Fields []string `json:"fields"`
		Data   [][]any  `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", apperrors.FetchError(apperrors.CodeUnexpectedStatus, tickerExchangeURL, err)
	}

	for _, row := range listing.Data {
		if len(row) < 3 {
			continue
		}
		cik, ok := row[0].(float64)
		if !ok {
			continue
		}
		symbol, ok := row[2].(string)
		if !ok {
			continue
		}
		if strings.EqualFold(symbol, ticker) {
			return fmt.Sprintf("%010d", int(cik)), nil
		}
	}
	return "", apperrors.FetchError(apperrors.CodeCIKNotFound, ticker, nil)
}

type submissionsResponse struct {
	Filings struct {
		Recent filingColumns `json:"recent"`
		Files  []struct {
			Name string `json:"name"`
		} `json:"files"`
	} `json:"filings"`
}

// filingColumns is the SEC's columnar filing layout: parallel arrays indexed
// together.
type filingColumns struct {
	AccessionNumbers []string `json:"accessionNumber"`
	Forms            []string `json:"form"`
	FilingDates      []string `json:"filingDate"`
	ReportDates      []string `json:"reportDate"`
	PrimaryDocs      []string `json:"primaryDocument"`
}

// RecentFilings returns the company's 10-Q and 10-K filings from the recent
// submissions feed, newest first, following overflow pages.
func (c *Client) RecentFilings(ctx context.Context, cik string) ([]models.FilingRef, error) {
	filename := fmt.Sprintf("CIK%s.json", normalizeCIK(cik))

	main, err := c.submissionsFile(ctx, filename)
	if err != nil {
		return nil, err
	}

	refs := collectFilingRefs(main.Filings.Recent)
	for _, file := range main.Filings.Files {
		page, err := c.submissionsFile(ctx, file.Name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, collectFilingRefs(page.Filings.Recent)...)
	}

	c.logger.WithFields(logger.Fields{
		"cik":     cik,
		"filings": len(refs),
	}).Debug("Recent submissions feed read")
	return refs, nil
}

func (c *Client) submissionsFile(ctx context.Context, filename string) (*submissionsResponse, error) {
	url := fmt.Sprintf(submissionsURL, filename)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var submissions submissionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&submissions); err != nil {
		return nil, apperrors.FetchError(apperrors.CodeUnexpectedStatus, url, err)
	}
	return &submissions, nil
}

func collectFilingRefs(columns filingColumns) []models.FilingRef {
	refs := make([]models.FilingRef, 0, len(columns.AccessionNumbers))
	for i := range columns.AccessionNumbers {
		if i >= len(columns.Forms) {
			break
		}
		form := models.FormType(columns.Forms[i])
		if !form.IsValid() {
			continue
		}

		ref := models.FilingRef{
			Form:      form,
			Accession: columns.AccessionNumbers[i],
		}
		if i < len(columns.ReportDates) {
			ref.PeriodEnd = parseFeedDate(columns.ReportDates[i])
		}
		if i < len(columns.FilingDates) {
			ref.FilingDate = parseFeedDate(columns.FilingDates[i])
		}
		if i < len(columns.PrimaryDocs) {
			ref.PrimaryDoc = columns.PrimaryDocs[i]
		}
		if ref.PeriodEnd.IsZero() {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func parseFeedDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MasterIndexFilings scans the quarterly full-index files for the company's
// 10-Q and 10-K filings across the given years. The index carries only the
// filing date, which is recorded as both filing date and period end so the
// downstream calendar logic still has a date to bin on. Quarters that fail
// to download are skipped.
func (c *Client) MasterIndexFilings(ctx context.Context, cik string, years []int) ([]models.FilingRef, error) {
	bareCIK := strings.TrimLeft(cik, "0")
	quarters := []string{"QTR1", "QTR2", "QTR3", "QTR4"}

	var refs []models.FilingRef
	for _, year := range years {
		for _, quarter := range quarters {
			url := fmt.Sprintf(masterIndexURL, year, quarter)
			page, err := c.masterIndexPage(ctx, url, bareCIK)
			if err != nil {
				c.logger.WithError(err).WithFields(logger.Fields{
					"year":    year,
					"quarter": quarter,
				}).Warn("Master index page unavailable, skipping")
				continue
			}
			refs = append(refs, page...)
		}
	}

	c.logger.WithFields(logger.Fields{
		"cik":     cik,
		"filings": len(refs),
		"years":   len(years),
	}).Info("Master index scan completed")
	return refs, nil
}

func (c *Client) masterIndexPage(ctx context.Context, url, bareCIK string) ([]models.FilingRef, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, apperrors.FetchError(apperrors.CodeIndexUnavailable, url, err)
	}
	defer gz.Close()

	var refs []models.FilingRef
	started := false
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			if strings.HasPrefix(line, "CIK|") {
				started = true
			}
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != 5 {
			continue
		}
		if parts[0] != bareCIK {
			continue
		}
		form := models.FormType(parts[2])
		if !form.IsValid() {
			continue
		}

		filed := parseFeedDate(parts[3])
		if filed.IsZero() {
			continue
		}
		filename := parts[4]
		accession := strings.TrimSuffix(filename[strings.LastIndex(filename, "/")+1:], ".txt")

		refs = append(refs, models.FilingRef{
			Form:       form,
			Accession:  accession,
			PeriodEnd:  filed,
			FilingDate: filed,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.FetchError(apperrors.CodeIndexUnavailable, url, err)
	}
	return refs, nil
}

// DirectoryEntry is one file inside an accession directory
type DirectoryEntry struct {
	Name string
	Size int64
}

// AccessionFiles lists the files inside an accession directory
func (c *Client) AccessionFiles(ctx context.Context, cik, accession string) ([]DirectoryEntry, error) {
	url := c.accessionURL(cik, accession, "index.json")
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var index struct {
		Directory struct {
			Items []struct {
				Name string `json:"name"`
				Size string `json:"size"`
			} `json:"item"`
		} `json:"directory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, apperrors.FetchError(apperrors.CodeUnexpectedStatus, url, err)
	}

	entries := make([]DirectoryEntry, 0, len(index.Directory.Items))
	for _, item := range index.Directory.Items {
		size, _ := strconv.ParseInt(item.Size, 10, 64)
		entries = append(entries, DirectoryEntry{Name: item.Name, Size: size})
	}
	return entries, nil
}

// OpenDocument fetches one file from an accession directory. The caller
// closes the returned body.
func (c *Client) OpenDocument(ctx context.Context, cik, accession, name string) (*http.Response, error) {
	return c.get(ctx, c.accessionURL(cik, accession, name))
}

func (c *Client) accessionURL(cik, accession, name string) string {
	bare := strings.TrimLeft(cik, "0")
	noDash := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf(archiveBaseURL, bare, noDash+"/"+name)
}

func normalizeCIK(cik string) string {
	return fmt.Sprintf("%010s", strings.TrimLeft(cik, "0"))
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, apperrors.FetchError(apperrors.CodeRequestFailed, url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.FetchError(apperrors.CodeRequestFailed, url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.FetchError(apperrors.CodeRequestFailed, url, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, apperrors.FetchError(apperrors.CodeRateLimited, url, nil)
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, apperrors.FetchError(apperrors.CodeDocumentNotFound, url, nil)
	default:
		status := resp.StatusCode
		resp.Body.Close()
		return nil, apperrors.FetchError(apperrors.CodeUnexpectedStatus,
			fmt.Sprintf("%s returned %d", url, status), nil)
	}
}
