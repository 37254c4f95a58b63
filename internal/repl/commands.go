package repl

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jawbreaker1/pwnpilot/internal/prompts"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

// handleCommand dispatches one slash command. The returned bool requests
// loop exit.
func (r *REPL) handleCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		r.printHelp()
	case "exit", "quit":
		fmt.Fprintln(r.out, "Goodbye.")
		return true, nil
	case "tokens":
		r.handleTokens()
	case "cache":
		r.handleCache(args)
	case "summarize":
		return false, r.handleSummarize(ctx)
	case "sessions":
		return false, r.handleSessions()
	case "load":
		return false, r.handleLoad(args)
	case "summary":
		fmt.Fprintln(r.out, r.sess.Intel().Format())
	case "target":
		return false, r.handleTarget(args)
	case "guided":
		return false, r.handleModeSwitch(true)
	case "tools":
		return false, r.handleModeSwitch(false)
	case "prompt":
		r.handlePrompt()
	case "paste":
		return false, r.handlePaste(ctx)
	case "scope":
		r.handleScope(args)
	case "autonomous":
		return false, r.handleAutonomous(ctx, args)
	default:
		fmt.Fprintf(r.out, "Unknown command: /%s (try /help)\n", cmd)
	}
	return false, nil
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Commands:
  /help                 Show this help
  /tokens               Token usage and cost for this session
  /cache [stats|clear]  Tool result cache statistics or reset
  /summarize            Compress conversation context via AI summary
  /sessions             List saved sessions
  /load <id>            Switch to a saved session
  /summary              Show collected findings for this session
  /target <host>        Set the engagement target
  /scope [add|remove|clear] <target>  Manage autonomous scope
  /guided               Switch to guided mode (you run commands)
  /tools                Switch to tool mode (server runs commands)
  /prompt               Show active system prompt details
  /paste                Paste multi-line content as one message
  /autonomous <objective> [--iterations N] [--tokens N] [--delay SECONDS]
                        Run autonomously toward an objective
  /exit                 End the session
`)
}

func (r *REPL) handleTokens() {
	if !r.prov.SupportsTokenTracking() {
		fmt.Fprintln(r.out, "Token tracking is not supported by the current provider.")
		return
	}
	fmt.Fprintln(r.out, r.tracker.FormatSummary())
	fmt.Fprintf(r.out, "Context usage: %.1f%%\n", r.tracker.ContextPercent())
}

func (r *REPL) handleCache(args []string) {
	cache := r.gw.Cache()
	if cache == nil {
		fmt.Fprintln(r.out, "Tool result caching is disabled.")
		return
	}
	sub := "stats"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "stats":
		fmt.Fprintln(r.out, cache.FormatStats())
	case "clear":
		removed := cache.Clear()
		fmt.Fprintf(r.out, "Cache cleared: %d entries removed.\n", removed)
	default:
		fmt.Fprintln(r.out, "Usage: /cache [stats|clear]")
	}
}

// handleSummarize is the manual version of the automatic compression: same
// summary, same keep-recent window, but operator-confirmed.
func (r *REPL) handleSummarize(ctx context.Context) error {
	if len(r.sess.Messages()) < summarizeMinMessages {
		fmt.Fprintln(r.out, "Not enough conversation to summarize yet.")
		return nil
	}
	ok, err := r.confirm("Summarize and compress the conversation? This cannot be undone.")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}

	summary, err := r.prov.Summarize(ctx, r.sess.Messages(), 2048)
	if err != nil {
		return fmt.Errorf("summarize conversation: %w", err)
	}
	fmt.Fprintln(r.out, thinLine)
	fmt.Fprintln(r.out, summary)
	fmt.Fprintln(r.out, thinLine)

	before, after, err := r.sess.Compress(summary, summarizeKeepRecent)
	if err != nil {
		return err
	}
	r.tracker.ResetBaseline()
	fmt.Fprintln(r.out, okStyle.Render(
		fmt.Sprintf("Context compressed: %d messages -> %d messages", before, after)))
	return nil
}

func (r *REPL) handleSessions() error {
	infos, err := session.ListSessions(r.cfg.Session.Dir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(r.out, "No saved sessions.")
		return nil
	}
	fmt.Fprintln(r.out, headerStyle.Render("Saved sessions (newest first):"))
	for _, info := range infos {
		marker := "  "
		if info.SessionID == r.sess.ID() {
			marker = "* "
		}
		model := info.ModelID
		if model == "" {
			model = "unknown model"
		}
		fmt.Fprintf(r.out, "%s%s  %s  %s  %d bytes\n",
			marker, info.SessionID, info.Modified, model, info.Size)
	}
	return nil
}

// handleLoad replaces the live session with a restored one. The current
// session is closed first so its log carries an explicit end marker.
func (r *REPL) handleLoad(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "Usage: /load <session-id>")
		return nil
	}
	id := args[0]
	if !session.Exists(r.cfg.Session.Dir, id) {
		fmt.Fprintf(r.out, "Session %s not found.\n", id)
		return nil
	}
	ok, err := r.confirm(fmt.Sprintf("Load session %s and leave the current one?", id))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}

	if err := r.sess.End(); err != nil {
		return err
	}
	restored, err := session.Restore(r.cfg.Session.Dir, id, r.log)
	if err != nil {
		return fmt.Errorf("restore session %s: %w", id, err)
	}
	r.sess = restored
	// Token accounting belongs to a provider session, not a log; start fresh.
	r.tracker = tokens.New(r.prov.ModelID(), tokens.DefaultRates())
	if err := r.reloadPrompt(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s\n", okStyle.Render(fmt.Sprintf(
		"Session %s restored: %d messages.", id, len(r.sess.Messages()))))
	return nil
}

func (r *REPL) handleTarget(args []string) error {
	if len(args) == 0 {
		target := r.sess.Metadata().Target
		if target == "" {
			fmt.Fprintln(r.out, "No target set. Usage: /target <host>")
		} else {
			fmt.Fprintf(r.out, "Current target: %s\n", target)
		}
		return nil
	}
	target := args[0]
	if err := r.sess.SetTarget(target); err != nil {
		return err
	}
	if err := r.reloadPrompt(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Target set to %s.\n", target)
	return nil
}

func (r *REPL) handleModeSwitch(toGuided bool) error {
	if r.guided == toGuided {
		fmt.Fprintln(r.out, "Already in that mode.")
		return nil
	}
	from, to := "tools", "guided"
	if !toGuided {
		from, to = "guided", "tools"
	}
	ok, err := r.confirm(fmt.Sprintf("Switch from %s mode to %s mode?", from, to))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}
	r.guided = toGuided
	if err := r.reloadPrompt(); err != nil {
		return err
	}
	if err := r.sess.AddModeSwitch(from, to); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s\n", okStyle.Render("Switched to "+to+" mode."))
	return nil
}

func (r *REPL) handlePrompt() {
	mode := r.cfg.Prompt.Mode
	if mode == "" {
		mode = prompts.ModeBasic
	}
	info := r.loader.Describe(mode)
	fmt.Fprintf(r.out, "Prompt mode: %s", mode)
	if r.guided {
		fmt.Fprint(r.out, " (guided)")
	}
	fmt.Fprintln(r.out)
	if info.Description != "" {
		fmt.Fprintf(r.out, "  %s\n", info.Description)
	}
	if info.FilePath != "" {
		state := "built-in fallback"
		if info.Available {
			state = info.FilePath
		}
		fmt.Fprintf(r.out, "  Source: %s\n", state)
	}
	fmt.Fprintf(r.out, "  Length: %d characters\n", len(r.systemPrompt))
	if available := r.loader.ListAvailable(); len(available) > 0 {
		fmt.Fprintf(r.out, "  On disk: %s\n", strings.Join(available, ", "))
	}
}

func (r *REPL) handlePaste(ctx context.Context) error {
	content, err := r.readMultiline()
	if err != nil {
		return err
	}
	if content == "" {
		fmt.Fprintln(r.out, "Nothing pasted.")
		return nil
	}
	if err := r.sess.AddUserMessage(content); err != nil {
		return err
	}
	return r.runExchange(ctx)
}

func (r *REPL) handleScope(args []string) {
	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		fmt.Fprintln(r.out, r.cls.ScopeSummary())
		return
	}
	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 {
			fmt.Fprintln(r.out, "Usage: /scope add <target>")
			return
		}
		target := args[1]
		if strings.Contains(target, "://") {
			fmt.Fprintln(r.out, warnStyle.Render(
				"Scope matching is substring-based; a protocol prefix like https:// narrows the match. Consider the bare host."))
		}
		r.cls.AddScopeTarget(target)
		fmt.Fprintf(r.out, "Added %s to scope.\n", target)
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(r.out, "Usage: /scope remove <target>")
			return
		}
		r.cls.RemoveScopeTarget(args[1])
		fmt.Fprintf(r.out, "Removed %s from scope.\n", args[1])
	case "clear":
		r.cls.ClearScope()
		fmt.Fprintln(r.out, "Scope cleared.")
	default:
		fmt.Fprintln(r.out, "Usage: /scope [list|add|remove|clear] [target]")
	}
}
