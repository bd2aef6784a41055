package reconciler

import (
	"fmt"
	"time"

	"edgar-reconciliation-service/internal/matcher"
	"edgar-reconciliation-service/internal/synthesizer"
)

// RunMetrics accumulates diagnostics for a single run. It is created per
// request and threaded through the pipeline stages rather than held
// globally, so concurrent serving layers never share state.
type RunMetrics struct {
	Ticker    string    `json:"ticker"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`

	FilingsFetched    int  `json:"filings_fetched"`
	FallbackTriggered bool `json:"fallback_triggered"`
	EstimatedAnchors  int  `json:"estimated_anchors"`

	StageDurations map[string]time.Duration `json:"stage_durations"`
	MatchRates     map[string]float64       `json:"match_rates"`
	Passes         map[string]matcher.Stats `json:"passes"`

	Synthesis *synthesizer.Stats   `json:"synthesis,omitempty"`
	Rescue    *matcher.RescueStats `json:"rescue,omitempty"`

	Collisions int `json:"collisions"`
	OutputRows int `json:"output_rows"`
}

// NewRunMetrics creates an empty accumulator for one run
func NewRunMetrics(ticker string) *RunMetrics {
	return &RunMetrics{
		Ticker:         ticker,
		StartedAt:      time.Now().UTC(),
		StageDurations: make(map[string]time.Duration),
		MatchRates:     make(map[string]float64),
		Passes:         make(map[string]matcher.Stats),
	}
}

// RecordStage stores a completed stage duration
func (m *RunMetrics) RecordStage(name string, d time.Duration) {
	m.StageDurations[name] = d
}

// RecordPass stores one matching pass result and its match rate
func (m *RunMetrics) RecordPass(name string, stats matcher.Stats) {
	m.Passes[name] = stats
	if stats.CurrentFacts > 0 {
		matched := stats.ZipMatched + stats.FuzzyMatched
		m.MatchRates[name] = float64(matched) / float64(stats.CurrentFacts)
	}
}

// Flatten renders the metrics as a flat key to value map, the shape the
// metrics summary document uses.
func (m *RunMetrics) Flatten() map[string]interface{} {
	flat := map[string]interface{}{
		"ticker":             m.Ticker,
		"label":              m.Label,
		"started_at":         m.StartedAt.Format(time.RFC3339),
		"filings_fetched":    m.FilingsFetched,
		"fallback_triggered": m.FallbackTriggered,
		"estimated_anchors":  m.EstimatedAnchors,
		"collisions":         m.Collisions,
		"output_rows":        m.OutputRows,
	}

	for name, d := range m.StageDurations {
		flat[fmt.Sprintf("stage_seconds.%s", name)] = d.Seconds()
	}
	for name, rate := range m.MatchRates {
		flat[fmt.Sprintf("match_rate.%s", name)] = rate
	}
	for name, stats := range m.Passes {
		flat[fmt.Sprintf("pass.%s.zip_matched", name)] = stats.ZipMatched
		flat[fmt.Sprintf("pass.%s.fuzzy_matched", name)] = stats.FuzzyMatched
		flat[fmt.Sprintf("pass.%s.keys_used", name)] = stats.KeysUsed
		flat[fmt.Sprintf("pass.%s.overlap_ratio", name)] = stats.OverlapRatio
		flat[fmt.Sprintf("pass.%s.near_misses", name)] = stats.NearMisses
	}
	if m.Synthesis != nil {
		flat["synthesis.derived"] = m.Synthesis.Derived
		flat["synthesis.fuzzy_joined"] = m.Synthesis.FuzzyJoined
		flat["synthesis.unjoined"] = m.Synthesis.Unjoined
		flat["synthesis.instants"] = m.Synthesis.Instants
	}
	if m.Rescue != nil {
		flat["rescue.missing_tags"] = m.Rescue.MissingTags
		flat["rescue.matched"] = m.Rescue.Matched
		flat["rescue.overlaps_dropped"] = m.Rescue.OverlapsDropped
	}
	return flat
}
