package errors

// Collector accumulates non-fatal errors raised during a pipeline stage so a
// single bad fact or context does not abort the run. The caller asks the
// collector at stage end whether the collected set forces an abort.
type Collector struct {
	errors    []*PipelineError
	maxErrors int
}

// NewCollector creates a collector that tolerates up to maxErrors errors. A
// maxErrors of zero means unlimited.
func NewCollector(maxErrors int) *Collector {
	return &Collector{
		errors:    make([]*PipelineError, 0),
		maxErrors: maxErrors,
	}
}

// Add records an error and reports whether processing should continue. Fatal
// errors and breaching the cap both stop the stage.
func (c *Collector) Add(err *PipelineError) bool {
	if err == nil {
		return true
	}

	c.errors = append(c.errors, err)

	if err.IsFatal() {
		return false
	}
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return true
}

// HasErrors returns true if any errors have been collected
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all collected errors
func (c *Collector) Errors() []*PipelineError {
	return c.errors
}

// Summary returns an error summary for all collected errors
func (c *Collector) Summary() *ErrorSummary {
	return NewErrorSummary(c.errors)
}

// Clear drops all collected errors
func (c *Collector) Clear() {
	c.errors = c.errors[:0]
}
