package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryCalendar      ErrorCategory = "calendar"
	CategoryFetch         ErrorCategory = "fetch"
	CategoryParse         ErrorCategory = "parse"
	CategoryClassify      ErrorCategory = "classify"
	CategoryMatch         ErrorCategory = "match"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryGate          ErrorCategory = "gate"
	CategoryInternal      ErrorCategory = "internal"
)

// Severity describes how far a pipeline run can proceed past the error
type Severity string

const (
	// SeverityFatal aborts the run; no report can be produced.
	SeverityFatal Severity = "fatal"
	// SeverityDegraded lets the run continue on a fallback path; the result
	// carries caveats.
	SeverityDegraded Severity = "degraded"
	// SeverityAdvisory is recorded but does not change the run outcome.
	SeverityAdvisory Severity = "advisory"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Calendar errors
	CodeNoAnnualFilings  ErrorCode = "no_annual_filings"
	CodeAnchorEstimated  ErrorCode = "anchor_estimated"
	CodeNonStandardSpan  ErrorCode = "non_standard_span"
	CodeFilingTooOld     ErrorCode = "filing_too_old"
	CodeNoCandidateFound ErrorCode = "no_candidate_found"

	// Fetch errors
	CodeCIKNotFound       ErrorCode = "cik_not_found"
	CodeRequestFailed     ErrorCode = "request_failed"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeUnexpectedStatus  ErrorCode = "unexpected_status"
	CodeIndexUnavailable  ErrorCode = "index_unavailable"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeDocumentTooSparse ErrorCode = "document_too_sparse"

	// Parse errors
	CodeInvalidDocument ErrorCode = "invalid_document"
	CodeMissingContext  ErrorCode = "missing_context"
	CodeInvalidValue    ErrorCode = "invalid_value"
	CodeInvalidDate     ErrorCode = "invalid_date"

	// Match errors
	CodeNoSharedKeys  ErrorCode = "no_shared_keys"
	CodeEmptyPeriod   ErrorCode = "empty_period"
	CodeSynthesisGap  ErrorCode = "synthesis_gap"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Gate errors
	CodeSlotBusy         ErrorCode = "slot_busy"
	CodeSlotTimeout      ErrorCode = "slot_timeout"
	CodeRequestCancelled ErrorCode = "request_cancelled"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// PipelineError is the base error type for all application errors
type PipelineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error should abort the run
func (e *PipelineError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// GetExitCode returns an appropriate exit code for the error
func (e *PipelineError) GetExitCode() int {
	switch e.Category {
	case CategoryFetch:
		return 2
	case CategoryParse, CategoryClassify:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryCalendar, CategoryMatch:
		return 5
	case CategoryGate:
		return 7
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *PipelineError) WithSuggestion(suggestion string) *PipelineError {
	e.Suggestion = suggestion
	return e
}

// WithSeverity overrides the error's severity
func (e *PipelineError) WithSeverity(s Severity) *PipelineError {
	e.Severity = s
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Category:   category,
		Code:       code,
		Severity:   SeverityFatal,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with PipelineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	return &PipelineError{
		Category:   category,
		Code:       code,
		Severity:   SeverityFatal,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// CalendarError creates a fiscal-calendar related error. Estimated-anchor and
// non-standard-span codes are degraded rather than fatal.
func CalendarError(code ErrorCode, detail string, err error) *PipelineError {
	var message string
	var suggestion string
	severity := SeverityFatal

	switch code {
	case CodeNoAnnualFilings:
		message = fmt.Sprintf("no annual filings available to build a fiscal calendar: %s", detail)
		suggestion = "the company needs at least one 10-K on record before quarters can be labeled"
	case CodeAnchorEstimated:
		message = fmt.Sprintf("anchor dates estimated from document dates: %s", detail)
		suggestion = "results carry caveats; verify against the filing's cover page"
		severity = SeverityDegraded
	case CodeNonStandardSpan:
		message = fmt.Sprintf("filing period does not fit a standard quarter: %s", detail)
		suggestion = "the company may have changed its fiscal year end"
		severity = SeverityDegraded
	case CodeFilingTooOld:
		message = fmt.Sprintf("filing predates the supported range: %s", detail)
		suggestion = "inline XBRL coverage is unreliable before 2019"
	case CodeNoCandidateFound:
		message = fmt.Sprintf("no filing matches the requested period: %s", detail)
		suggestion = "check the requested year and quarter against the company's filing history"
	default:
		message = fmt.Sprintf("fiscal calendar error: %s", detail)
		suggestion = "check the company's filing history"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryCalendar, code, message)
	} else {
		result = New(CategoryCalendar, code, message)
	}

	return result.
		WithSeverity(severity).
		WithSuggestion(suggestion).
		WithContext("detail", detail)
}

// FetchError creates an EDGAR retrieval error
func FetchError(code ErrorCode, resource string, err error) *PipelineError {
	var message string
	var suggestion string
	severity := SeverityFatal

	switch code {
	case CodeCIKNotFound:
		message = fmt.Sprintf("no CIK found for ticker %s", resource)
		suggestion = "check the ticker symbol against the SEC company list"
	case CodeRequestFailed:
		message = fmt.Sprintf("request failed for %s", resource)
		suggestion = "check network connectivity and try again"
	case CodeRateLimited:
		message = fmt.Sprintf("rate limited requesting %s", resource)
		suggestion = "lower the request rate; EDGAR allows at most 10 requests per second"
	case CodeUnexpectedStatus:
		message = fmt.Sprintf("unexpected response status for %s", resource)
		suggestion = "verify the request URL and your User-Agent header"
	case CodeIndexUnavailable:
		message = fmt.Sprintf("filing index unavailable: %s", resource)
		suggestion = "the fallback index source will be tried automatically"
		severity = SeverityDegraded
	case CodeDocumentNotFound:
		message = fmt.Sprintf("no usable inline document found in %s", resource)
		suggestion = "the filing may not carry inline XBRL"
	case CodeDocumentTooSparse:
		message = fmt.Sprintf("document carries too few facts: %s", resource)
		suggestion = "the next candidate document will be tried automatically"
		severity = SeverityDegraded
	case CodeFilingTooOld:
		message = fmt.Sprintf("filing date before 2019, inline XBRL not reliably available: %s", resource)
		suggestion = "request a more recent period"
	case CodeNoCandidateFound:
		message = fmt.Sprintf("no filings found for %s", resource)
		suggestion = "check the ticker symbol and the company's filing history"
	default:
		message = fmt.Sprintf("fetch error: %s", resource)
		suggestion = "check network connection and try again"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryFetch, code, message)
	} else {
		result = New(CategoryFetch, code, message)
	}

	return result.
		WithSeverity(severity).
		WithSuggestion(suggestion).
		WithContext("resource", resource)
}

// ParseError creates a document parsing error
func ParseError(code ErrorCode, document string, detail string, err error) *PipelineError {
	var message string
	var suggestion string
	severity := SeverityFatal

	switch code {
	case CodeInvalidDocument:
		message = fmt.Sprintf("cannot parse document %s: %s", document, detail)
		suggestion = "the document may be malformed or not inline XBRL"
	case CodeMissingContext:
		message = fmt.Sprintf("fact in %s references missing context %s", document, detail)
		suggestion = "the fact is skipped; remaining facts are unaffected"
		severity = SeverityAdvisory
	case CodeInvalidValue:
		message = fmt.Sprintf("non-numeric value in %s: %s", document, detail)
		suggestion = "the fact is skipped; remaining facts are unaffected"
		severity = SeverityAdvisory
	case CodeInvalidDate:
		message = fmt.Sprintf("unparseable date in %s: %s", document, detail)
		suggestion = "the context is skipped; facts referencing it are dropped"
		severity = SeverityAdvisory
	default:
		message = fmt.Sprintf("parse error in %s: %s", document, detail)
		suggestion = "check the document format"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSeverity(severity).
		WithSuggestion(suggestion).
		WithContext("document", document).
		WithContext("detail", detail)
}

// MatchError creates a cross-period matching error
func MatchError(code ErrorCode, operation string, err error) *PipelineError {
	var message string
	var suggestion string
	severity := SeverityDegraded

	switch code {
	case CodeNoSharedKeys:
		message = fmt.Sprintf("no shared keys between periods during %s", operation)
		suggestion = "key reduction and fuzzy fallback will be applied"
	case CodeEmptyPeriod:
		message = fmt.Sprintf("one side of the comparison is empty during %s", operation)
		suggestion = "check that both filings parsed successfully"
		severity = SeverityFatal
	case CodeSynthesisGap:
		message = fmt.Sprintf("full-year or year-to-date facts missing during %s", operation)
		suggestion = "the implied fourth quarter cannot be derived for the affected tags"
	default:
		message = fmt.Sprintf("matching error during %s", operation)
		suggestion = "review the matcher configuration"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryMatch, code, message)
	} else {
		result = New(CategoryMatch, code, message)
	}

	return result.
		WithSeverity(severity).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// GateError creates an admission control error
func GateError(code ErrorCode, tier string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeSlotBusy:
		message = "a reconciliation run is already in progress"
		suggestion = "retry once the current run finishes, or authenticate for a queued tier"
	case CodeSlotTimeout:
		message = fmt.Sprintf("run slot not freed within the %s tier's wait budget", tier)
		suggestion = "retry later; long runs can hold the slot for minutes"
	case CodeRequestCancelled:
		message = "request cancelled while waiting for the run slot"
		suggestion = ""
	default:
		message = fmt.Sprintf("admission control error for tier %s", tier)
		suggestion = "retry later"
	}

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryGate, code, message)
	} else {
		result = New(CategoryGate, code, message)
	}
	result = result.WithContext("tier", tier)
	if suggestion != "" {
		result = result.WithSuggestion(suggestion)
	}
	return result
}

// InternalError creates an internal error
func InternalError(operation string, err error) *PipelineError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	var result *PipelineError
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	BySeverity   map[Severity]int      `json:"by_severity"`
	Errors       []*PipelineError      `json:"errors"`
	SampleErrors []*PipelineError      `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*PipelineError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		BySeverity: make(map[Severity]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*PipelineError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.BySeverity[err.Severity]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasFatal reports whether any collected error is fatal
func (es *ErrorSummary) HasFatal() bool {
	return es.BySeverity[SeverityFatal] > 0
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsPipelineError checks if an error is a PipelineError
func IsPipelineError(err error) bool {
	_, ok := err.(*PipelineError)
	return ok
}

// AsPipelineError extracts a PipelineError from an error chain
func AsPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a PipelineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	if pipelineErr, ok := AsPipelineError(err); ok {
		return pipelineErr
	}

	return Wrap(err, category, code, message)
}
