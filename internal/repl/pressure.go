package repl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

// summarizeKeepRecent is how many messages survive a context compression.
const summarizeKeepRecent = 6

// summarizeMinMessages avoids compressing conversations too short to need it.
const summarizeMinMessages = 4

// showContextPressure runs after each model turn: progressive warnings first,
// then automatic summarization once the tracker says the window is nearly
// full.
func (r *REPL) showContextPressure(ctx context.Context) {
	if !r.prov.SupportsTokenTracking() {
		return
	}
	r.showProgressiveWarning()
	r.checkAutoSummarize(ctx)
}

func (r *REPL) showProgressiveWarning() {
	if !r.tracker.ShouldShowWarning() {
		return
	}
	usage := r.tracker.ContextPercent()
	switch r.tracker.CurrentWarningLevel() {
	case tokens.WarnCritical:
		fmt.Fprintln(r.out, errStyle.Render(ruleLine))
		fmt.Fprintln(r.out, errStyle.Render("CRITICAL: context window nearly exhausted"))
		fmt.Fprintf(r.out, "  Current usage: %.1f%%\n", usage)
		fmt.Fprintln(r.out, "  Automatic summarization will trigger at the next exchange.")
		fmt.Fprintln(r.out, errStyle.Render(ruleLine))
	case tokens.WarnHigh:
		fmt.Fprintln(r.out, warnStyle.Render(thinLine))
		fmt.Fprintln(r.out, warnStyle.Render("WARNING: context usage is high"))
		fmt.Fprintf(r.out, "  Current usage: %.1f%%\n", usage)
		fmt.Fprintln(r.out, "  Type /summarize to compress context now.")
		fmt.Fprintln(r.out, warnStyle.Render(thinLine))
	case tokens.WarnMedium:
		fmt.Fprintf(r.out, "Context usage: %.1f%%. Monitoring recommended.\n", usage)
	}
}

// checkAutoSummarize compresses the conversation in place when the context
// estimate crosses the summarization threshold. A failed summary is reported
// and the conversation continues uncompressed.
func (r *REPL) checkAutoSummarize(ctx context.Context) {
	if !r.tracker.ShouldSummarize() || len(r.sess.Messages()) < summarizeMinMessages {
		return
	}
	fmt.Fprintln(r.out, warnStyle.Render("\nContext limit approaching, automatic summarization triggered..."))

	summary, err := r.prov.Summarize(ctx, r.sess.Messages(), 2048)
	if err != nil || summary == "" {
		fmt.Fprintln(r.out, warnStyle.Render("Automatic summarization failed. Consider starting a new session."))
		if err != nil {
			r.log.Warn("auto summarization failed", zap.Error(err))
		}
		return
	}

	fmt.Fprintln(r.out, thinLine)
	fmt.Fprintln(r.out, summary)
	fmt.Fprintln(r.out, thinLine)

	before, after, err := r.sess.Compress(summary, summarizeKeepRecent)
	if err != nil {
		fmt.Fprintln(r.out, errStyle.Render("Context compression failed: "+err.Error()))
		return
	}
	r.tracker.ResetBaseline()
	fmt.Fprintf(r.out, "%s\n", okStyle.Render(
		fmt.Sprintf("Context auto-compressed: %d messages -> %d messages", before, after)))
	fmt.Fprintf(r.out, "   Context usage reset to ~%.1f%%\n", r.tracker.ContextPercent())
}
