// Package autonomous tracks the state and budgets of an unattended run: how
// many iterations have executed, how many tokens were spent, and whether the
// run should keep going.
package autonomous

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIterationDelay is the pacing between consecutive iterations.
const DefaultIterationDelay = 2 * time.Second

// Manager enforces the iteration, token, and pacing limits of one autonomous
// run. Limits of zero mean unlimited. Not safe for concurrent use; pacing is
// enforced inside the single-threaded conversation loop.
type Manager struct {
	maxIterations int
	maxTokens     int
	delay         time.Duration
	limiter       *rate.Limiter

	active         bool
	iterations     int
	tokensUsed     int
	pauseRequested bool
}

func New(maxIterations, maxTokens int, delay time.Duration) *Manager {
	if delay <= 0 {
		delay = DefaultIterationDelay
	}
	return &Manager{
		maxIterations: maxIterations,
		maxTokens:     maxTokens,
		delay:         delay,
	}
}

func (m *Manager) Active() bool        { return m.active }
func (m *Manager) Iterations() int     { return m.iterations }
func (m *Manager) TokensUsed() int     { return m.tokensUsed }
func (m *Manager) MaxIterations() int  { return m.maxIterations }
func (m *Manager) MaxTokens() int      { return m.maxTokens }
func (m *Manager) PauseRequested() bool { return m.pauseRequested }

// Start activates the run and resets all counters. A Manager can be reused
// across runs; each Start begins from zero.
func (m *Manager) Start() {
	m.active = true
	m.iterations = 0
	m.tokensUsed = 0
	m.pauseRequested = false
	// Burst 1 with an initially full bucket: the first iteration proceeds
	// immediately, every later one waits out the configured delay.
	m.limiter = rate.NewLimiter(rate.Every(m.delay), 1)
}

// Pause requests a graceful stop. The current iteration finishes; the next
// ShouldContinue check returns false.
func (m *Manager) Pause() { m.pauseRequested = true }

func (m *Manager) Stop() {
	m.active = false
	m.pauseRequested = false
}

// RecordIteration counts one iteration and blocks until the pacing limiter
// permits the next. Returns early with the context error on cancellation.
func (m *Manager) RecordIteration(ctx context.Context) error {
	if !m.active {
		return nil
	}
	m.iterations++
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("iteration pacing: %w", err)
	}
	return nil
}

// RecordTokens adds to the token counter while the run is active.
func (m *Manager) RecordTokens(count int) {
	if m.active {
		m.tokensUsed += count
	}
}

// ShouldContinue reports whether the run may execute another iteration.
func (m *Manager) ShouldContinue() bool {
	if !m.active || m.pauseRequested {
		return false
	}
	if m.maxIterations > 0 && m.iterations >= m.maxIterations {
		return false
	}
	if m.maxTokens > 0 && m.tokensUsed >= m.maxTokens {
		return false
	}
	return true
}

// StopReason explains why the run halted, checked in priority order: an
// operator pause wins over the iteration ceiling, which wins over the token
// ceiling.
func (m *Manager) StopReason() string {
	if m.pauseRequested {
		return "User requested pause"
	}
	if m.maxIterations > 0 && m.iterations >= m.maxIterations {
		return fmt.Sprintf("Maximum iterations reached (%d)", m.maxIterations)
	}
	if m.maxTokens > 0 && m.tokensUsed >= m.maxTokens {
		return fmt.Sprintf("Maximum tokens reached (%d)", m.maxTokens)
	}
	return "Unknown reason"
}

// Status renders the run state for the /autonomous status display.
func (m *Manager) Status() string {
	if !m.active {
		return "Autonomous mode: inactive"
	}
	lines := []string{"Autonomous mode active"}
	if m.maxIterations > 0 {
		lines = append(lines, fmt.Sprintf("  Iterations: %d/%d", m.iterations, m.maxIterations))
	} else {
		lines = append(lines, fmt.Sprintf("  Iterations: %d (unlimited)", m.iterations))
	}
	if m.maxTokens > 0 {
		lines = append(lines, fmt.Sprintf("  Tokens: %d/%d", m.tokensUsed, m.maxTokens))
	} else {
		lines = append(lines, fmt.Sprintf("  Tokens: %d (unlimited)", m.tokensUsed))
	}
	if m.pauseRequested {
		lines = append(lines, "  Status: pause requested")
	}
	return strings.Join(lines, "\n")
}
