package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostUsesDiscountedCacheReads(t *testing.T) {
	tr := New("claude-3-5-sonnet-latest", DefaultRates())
	tr.Update(Usage{
		InputTokens:     10_000,
		OutputTokens:    2_000,
		CacheReadTokens: 4_000,
	})

	// 6000 regular input + 2000 output + 4000 cache reads.
	want := 6.0*0.003 + 2.0*0.015 + 4.0*0.0003
	assert.InDelta(t, want, tr.Cost(), 1e-9)
}

func TestUnknownModelHasZeroCostAndPressure(t *testing.T) {
	tr := New("llama3.1:8b", DefaultRates())
	tr.Update(Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})

	assert.Zero(t, tr.Cost())
	assert.Zero(t, tr.ContextPercent())
	assert.Equal(t, WarnNone, tr.CurrentWarningLevel())
	assert.False(t, tr.ShouldSummarize())
}

func TestContextPercentAndWarningLevels(t *testing.T) {
	tr := New("claude-3-5-haiku", DefaultRates())

	tr.Update(Usage{InputTokens: 100_000}) // 50%
	assert.Equal(t, WarnNone, tr.CurrentWarningLevel())

	tr.Update(Usage{InputTokens: 42_000}) // 71%
	assert.Equal(t, WarnMedium, tr.CurrentWarningLevel())

	tr.Update(Usage{InputTokens: 20_000}) // 81%
	assert.Equal(t, WarnHigh, tr.CurrentWarningLevel())

	tr.Update(Usage{InputTokens: 20_000}) // 91%
	assert.Equal(t, WarnCritical, tr.CurrentWarningLevel())
}

func TestWarningsFireOncePerLevel(t *testing.T) {
	tr := New("opus", DefaultRates())

	tr.Update(Usage{InputTokens: 142_000}) // 71%
	assert.True(t, tr.ShouldShowWarning())
	assert.False(t, tr.ShouldShowWarning())

	tr.Update(Usage{InputTokens: 20_000}) // 81%
	assert.True(t, tr.ShouldShowWarning())
	assert.False(t, tr.ShouldShowWarning())
}

func TestShouldSummarizeOnceAtThreshold(t *testing.T) {
	tr := New("sonnet", DefaultRates())

	tr.Update(Usage{InputTokens: 168_000}) // 84%
	assert.False(t, tr.ShouldSummarize())

	tr.Update(Usage{InputTokens: 4_000}) // 86%
	assert.True(t, tr.ShouldSummarize())

	tr.ResetBaseline()
	assert.False(t, tr.ShouldSummarize())
}

func TestResetBaselineRearmsWarnings(t *testing.T) {
	tr := New("sonnet", DefaultRates())
	tr.Update(Usage{InputTokens: 180_000, CacheCreationTokens: 50_000}) // 90%
	assert.True(t, tr.ShouldShowWarning())

	tr.ResetBaseline()
	assert.Equal(t, 1.0, tr.ContextPercent())
	assert.Equal(t, WarnNone, tr.CurrentWarningLevel())

	// Cache counters survive the reset; they track spend, not context.
	assert.Greater(t, tr.Cost(), 0.0)

	tr.Update(Usage{InputTokens: 170_000}) // back above 85%
	assert.True(t, tr.ShouldShowWarning())
}

func TestFormatSummary(t *testing.T) {
	tr := New("claude-3-5-sonnet", DefaultRates())
	tr.Update(Usage{InputTokens: 1500, OutputTokens: 300, CacheCreationTokens: 200})

	out := tr.FormatSummary()
	assert.Contains(t, out, "Last request:")
	assert.Contains(t, out, "Session totals (1 requests):")
	assert.Contains(t, out, "Input: 1500 tokens")
	assert.Contains(t, out, "Cache created: 200 tokens")
	assert.Contains(t, out, "Est. cost: $")
}
