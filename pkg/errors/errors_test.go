package errors

import (
	"errors"
	"testing"
)

func TestPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "fetch error",
			category:   CategoryFetch,
			code:       CodeRequestFailed,
			message:    "request failed",
			cause:      errors.New("connection reset"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidDocument,
			message:    "invalid document",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "calendar error",
			category:   CategoryCalendar,
			code:       CodeNoAnnualFilings,
			message:    "no annual filings",
			cause:      errors.New("empty filing list"),
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *PipelineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.Severity != SeverityFatal {
				t.Errorf("expected default fatal severity, got %s", err.Severity)
			}

			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}

			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}

			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestPipelineErrorWithContext(t *testing.T) {
	err := New(CategoryFetch, CodeCIKNotFound, "test error").
		WithContext("ticker", "AAPL").
		WithContext("attempt", 2).
		WithSuggestion("check the ticker symbol")

	if err.Context["ticker"] != "AAPL" {
		t.Errorf("expected ticker context 'AAPL', got %v", err.Context["ticker"])
	}
	if err.Context["attempt"] != 2 {
		t.Errorf("expected attempt context 2, got %v", err.Context["attempt"])
	}

	expected := "test error (suggestion: check the ticker symbol)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSeverityOverrides(t *testing.T) {
	degraded := CalendarError(CodeAnchorEstimated, "no prior annual filing", nil)
	if degraded.Severity != SeverityDegraded {
		t.Errorf("expected estimated anchors to be degraded, got %s", degraded.Severity)
	}
	if degraded.IsFatal() {
		t.Error("degraded error should not be fatal")
	}

	fatal := CalendarError(CodeNoAnnualFilings, "no 10-K on record", nil)
	if !fatal.IsFatal() {
		t.Error("missing annual filings should be fatal")
	}

	advisory := ParseError(CodeInvalidValue, "aapl-20240629.htm", "N/A", nil)
	if advisory.Severity != SeverityAdvisory {
		t.Errorf("expected skipped fact to be advisory, got %s", advisory.Severity)
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FetchError", func(t *testing.T) {
		cause := errors.New("status 403")
		err := FetchError(CodeUnexpectedStatus, "submissions/CIK0000320193.json", cause)

		if err.Category != CategoryFetch {
			t.Errorf("expected fetch category, got %s", err.Category)
		}
		if err.Context["resource"] != "submissions/CIK0000320193.json" {
			t.Errorf("expected resource context, got %v", err.Context["resource"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("MatchError", func(t *testing.T) {
		err := MatchError(CodeNoSharedKeys, "quarterly comparison", nil)

		if err.Category != CategoryMatch {
			t.Errorf("expected match category, got %s", err.Category)
		}
		if err.Severity != SeverityDegraded {
			t.Errorf("expected degraded severity, got %s", err.Severity)
		}
		if err.Context["operation"] != "quarterly comparison" {
			t.Errorf("expected operation context, got %v", err.Context["operation"])
		}
	})

	t.Run("ConfigurationError", func(t *testing.T) {
		err := ConfigurationError(CodeInvalidConfig, "fuzzy_accept_score", 150, nil)

		if err.Category != CategoryConfiguration {
			t.Errorf("expected configuration category, got %s", err.Category)
		}
		if err.Context["setting"] != "fuzzy_accept_score" {
			t.Errorf("expected setting context, got %v", err.Context["setting"])
		}
		if err.Context["value"] != 150 {
			t.Errorf("expected value context, got %v", err.Context["value"])
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*PipelineError{
		New(CategoryFetch, CodeRequestFailed, "error 1"),
		New(CategoryFetch, CodeRateLimited, "error 2"),
		New(CategoryParse, CodeInvalidDocument, "error 3"),
		CalendarError(CodeAnchorEstimated, "estimated", nil),
		ParseError(CodeInvalidValue, "doc.htm", "N/A", nil),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 5 {
		t.Errorf("expected total 5, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryFetch] != 2 {
		t.Errorf("expected 2 fetch errors, got %d", summary.ByCategory[CategoryFetch])
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if summary.BySeverity[SeverityFatal] != 3 {
		t.Errorf("expected 3 fatal errors, got %d", summary.BySeverity[SeverityFatal])
	}
	if !summary.HasFatal() {
		t.Error("expected summary to report fatal errors")
	}

	if summary.Error() == "" {
		t.Error("expected non-empty error string")
	}
	if !summary.HasCategory(CategoryFetch) {
		t.Error("expected to have fetch category")
	}
	if summary.HasCategory(CategoryMatch) {
		t.Error("expected not to have match category")
	}
	if summary.GetExitCode() == 0 {
		t.Error("expected non-zero exit code")
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
	if summary.HasFatal() {
		t.Error("empty summary should not report fatal errors")
	}
}

func TestAsPipelineError(t *testing.T) {
	pipelineErr := New(CategoryFetch, CodeRequestFailed, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsPipelineError(pipelineErr); !ok || extracted != pipelineErr {
		t.Error("expected AsPipelineError to extract PipelineError")
	}
	if _, ok := AsPipelineError(genericErr); ok {
		t.Error("expected AsPipelineError to return false for generic error")
	}
	if _, ok := AsPipelineError(nil); ok {
		t.Error("expected AsPipelineError to return false for nil")
	}
	if !IsPipelineError(pipelineErr) {
		t.Error("expected IsPipelineError to return true for PipelineError")
	}
	if IsPipelineError(genericErr) {
		t.Error("expected IsPipelineError to return false for generic error")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	pipelineErr := New(CategoryFetch, CodeRequestFailed, "test")
	genericErr := errors.New("generic error")

	result1 := WrapIfNeeded(pipelineErr, CategoryParse, CodeInvalidDocument, "wrapped")
	if result1 != pipelineErr {
		t.Error("expected WrapIfNeeded to return original PipelineError")
	}

	result2 := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidDocument, "wrapped")
	if result2.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result2.Category != CategoryParse {
		t.Error("expected wrapped error to have correct category")
	}

	result3 := WrapIfNeeded(nil, CategoryParse, CodeInvalidDocument, "wrapped")
	if result3 != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFetch, 2},
		{CategoryParse, 3},
		{CategoryClassify, 3},
		{CategoryConfiguration, 4},
		{CategoryCalendar, 5},
		{CategoryMatch, 5},
		{CategoryInternal, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}
