// Package tokens tracks model token usage, estimates spend, and drives the
// progressive context-pressure warnings.
package tokens

import (
	"fmt"
	"strings"
)

// Usage is the per-request token accounting reported by a provider.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Pricing is USD per 1000 tokens for one model family.
type Pricing struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// ModelRates bundles the pricing and context window for a model family.
// Rates are injected by the caller so price revisions and new models never
// require changes here.
type ModelRates struct {
	Pricing      Pricing
	ContextLimit int
}

// DefaultRates matches published per-family rates. Family keys are matched as
// substrings of the model id, so versioned ids resolve without enumeration.
func DefaultRates() map[string]ModelRates {
	return map[string]ModelRates{
		"sonnet": {
			Pricing:      Pricing{Input: 0.003, Output: 0.015, CacheWrite: 0.00375, CacheRead: 0.0003},
			ContextLimit: 200_000,
		},
		"haiku": {
			Pricing:      Pricing{Input: 0.001, Output: 0.005, CacheWrite: 0.00125, CacheRead: 0.0001},
			ContextLimit: 200_000,
		},
		"opus": {
			Pricing:      Pricing{Input: 0.015, Output: 0.075, CacheWrite: 0.01875, CacheRead: 0.0015},
			ContextLimit: 200_000,
		},
	}
}

// WarningLevel grades context pressure.
type WarningLevel string

const (
	WarnNone     WarningLevel = ""
	WarnMedium   WarningLevel = "medium"   // >= 70%
	WarnHigh     WarningLevel = "high"     // >= 80%
	WarnCritical WarningLevel = "critical" // >= 90%
)

// summarizeThreshold is the context percentage at which an automatic
// summarization should fire, once per compression cycle.
const summarizeThreshold = 85.0

// baselineAfterReset approximates the tokens a summary plus the kept recent
// messages occupy after compression.
const baselineAfterReset = 2000

// Tracker accumulates usage across a session for one model. An unknown model
// family yields zero cost and zero context pressure rather than an error.
type Tracker struct {
	modelID string
	rates   *ModelRates

	totalInput         int
	totalOutput        int
	totalCacheCreation int
	totalCacheRead     int
	requestCount       int
	lastUsage          *Usage

	warningsShown map[WarningLevel]bool
	summarized    bool
}

// New builds a tracker for modelID, resolving its family by substring match
// against the rates table keys.
func New(modelID string, rates map[string]ModelRates) *Tracker {
	t := &Tracker{
		modelID:       modelID,
		warningsShown: map[WarningLevel]bool{},
	}
	lower := strings.ToLower(modelID)
	for family, r := range rates {
		if strings.Contains(lower, strings.ToLower(family)) {
			r := r
			t.rates = &r
			break
		}
	}
	return t
}

func (t *Tracker) ModelID() string   { return t.modelID }
func (t *Tracker) RequestCount() int { return t.requestCount }
func (t *Tracker) LastUsage() *Usage { return t.lastUsage }

// Update folds one request's usage into the session totals.
func (t *Tracker) Update(usage Usage) {
	t.requestCount++
	t.totalInput += usage.InputTokens
	t.totalOutput += usage.OutputTokens
	t.totalCacheCreation += usage.CacheCreationTokens
	t.totalCacheRead += usage.CacheReadTokens
	u := usage
	t.lastUsage = &u
}

// Cost estimates session spend in USD. Cache-read tokens are billed at the
// discounted rate, so they are subtracted from the regular input volume first.
func (t *Tracker) Cost() float64 {
	if t.rates == nil {
		return 0
	}
	p := t.rates.Pricing
	regularInput := t.totalInput - t.totalCacheRead
	cost := float64(regularInput) / 1000 * p.Input
	cost += float64(t.totalOutput) / 1000 * p.Output
	cost += float64(t.totalCacheCreation) / 1000 * p.CacheWrite
	cost += float64(t.totalCacheRead) / 1000 * p.CacheRead
	return cost
}

// ContextPercent estimates how much of the model's context window the
// session occupies.
func (t *Tracker) ContextPercent() float64 {
	if t.rates == nil || t.rates.ContextLimit == 0 {
		return 0
	}
	used := t.totalInput + t.totalOutput
	return float64(used) / float64(t.rates.ContextLimit) * 100
}

func (t *Tracker) CurrentWarningLevel() WarningLevel {
	pct := t.ContextPercent()
	switch {
	case pct >= 90:
		return WarnCritical
	case pct >= 80:
		return WarnHigh
	case pct >= 70:
		return WarnMedium
	}
	return WarnNone
}

// ShouldShowWarning reports whether the current warning level has not been
// displayed yet, and marks it shown. Each level fires once per compression
// cycle.
func (t *Tracker) ShouldShowWarning() bool {
	level := t.CurrentWarningLevel()
	if level == WarnNone || t.warningsShown[level] {
		return false
	}
	t.warningsShown[level] = true
	return true
}

// ShouldSummarize reports whether automatic summarization should run now.
func (t *Tracker) ShouldSummarize() bool {
	return t.ContextPercent() >= summarizeThreshold && !t.summarized
}

// ResetBaseline re-arms warnings after a summarization and replaces the
// context estimate with the post-compression baseline. Cache counters are
// per-request costs, not context, so they survive the reset.
func (t *Tracker) ResetBaseline() {
	t.totalInput = baselineAfterReset
	t.totalOutput = 0
	t.warningsShown = map[WarningLevel]bool{}
	t.summarized = true
}

// FormatSummary renders the /tokens display.
func (t *Tracker) FormatSummary() string {
	lines := []string{}
	if t.lastUsage != nil {
		lines = append(lines,
			"Last request:",
			fmt.Sprintf("  Input: %d tokens", t.lastUsage.InputTokens),
			fmt.Sprintf("  Output: %d tokens", t.lastUsage.OutputTokens),
		)
		if t.lastUsage.CacheReadTokens > 0 {
			lines = append(lines, fmt.Sprintf("  Cache read: %d tokens", t.lastUsage.CacheReadTokens))
		}
		if t.lastUsage.CacheCreationTokens > 0 {
			lines = append(lines, fmt.Sprintf("  Cache created: %d tokens", t.lastUsage.CacheCreationTokens))
		}
	}

	lines = append(lines,
		fmt.Sprintf("Session totals (%d requests):", t.requestCount),
		fmt.Sprintf("  Input: %d tokens", t.totalInput),
		fmt.Sprintf("  Output: %d tokens", t.totalOutput),
	)
	if t.totalCacheRead > 0 {
		lines = append(lines, fmt.Sprintf("  Cache reads: %d tokens", t.totalCacheRead))
	}
	if t.totalCacheCreation > 0 {
		lines = append(lines, fmt.Sprintf("  Cache created: %d tokens", t.totalCacheCreation))
	}
	if cost := t.Cost(); cost > 0 {
		lines = append(lines, fmt.Sprintf("  Est. cost: $%.4f", cost))
	}
	if pct := t.ContextPercent(); pct > 0 {
		lines = append(lines, fmt.Sprintf("  Context: %.1f%% used", pct))
		switch t.CurrentWarningLevel() {
		case WarnCritical:
			lines = append(lines, "  CRITICAL: context nearly full, summarization strongly recommended")
		case WarnHigh:
			lines = append(lines, "  HIGH: context usage is high, consider summarization")
		case WarnMedium:
			lines = append(lines, "  MEDIUM: context usage increasing")
		}
	}
	return strings.Join(lines, "\n")
}
