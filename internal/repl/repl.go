// Package repl is the interactive conversation loop: operator input in,
// model turns and approved tool executions out, everything durably logged
// through the session manager.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Jawbreaker1/pwnpilot/internal/classifier"
	"github.com/Jawbreaker1/pwnpilot/internal/config"
	"github.com/Jawbreaker1/pwnpilot/internal/gateway"
	"github.com/Jawbreaker1/pwnpilot/internal/prompts"
	"github.com/Jawbreaker1/pwnpilot/internal/provider"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

// outputPreviewLimit caps how much of a tool result is echoed to the
// terminal. The full result always goes to the model and the log.
const outputPreviewLimit = 1000

// Options wires up one REPL. Session, Provider, and Gateway are required;
// In and Out default to stdin and stdout.
type Options struct {
	Config   config.Config
	Session  *session.Manager
	Provider provider.Provider
	Gateway  *gateway.Client
	Loader   *prompts.Loader
	Tools    []provider.ToolSpec
	Guided   bool
	Logger   *zap.Logger
	In       io.Reader
	Out      io.Writer
}

type REPL struct {
	cfg    config.Config
	sess   *session.Manager
	prov   provider.Provider
	gw     *gateway.Client
	loader *prompts.Loader
	log    *zap.Logger

	cls     *classifier.Classifier
	tracker *tokens.Tracker

	in  *bufio.Reader
	out io.Writer

	systemPrompt string
	tools        []provider.ToolSpec
	toolNames    map[string]bool
	guided       bool
}

func New(opts Options) (*REPL, error) {
	if opts.Session == nil || opts.Provider == nil || opts.Gateway == nil {
		return nil, fmt.Errorf("repl requires a session, a provider, and a gateway")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	loader := opts.Loader
	if loader == nil {
		loader = prompts.NewLoader(opts.Config.Prompt.Dir, logger)
	}

	r := &REPL{
		cfg:       opts.Config,
		sess:      opts.Session,
		prov:      opts.Provider,
		gw:        opts.Gateway,
		loader:    loader,
		log:       logger,
		cls:       classifier.New(nil, ""),
		tracker:   tokens.New(opts.Provider.ModelID(), tokens.DefaultRates()),
		in:        bufio.NewReader(in),
		out:       out,
		tools:     opts.Tools,
		toolNames: map[string]bool{},
		guided:    opts.Guided,
	}
	for _, tool := range opts.Tools {
		r.toolNames[tool.Name] = true
	}
	if err := r.reloadPrompt(); err != nil {
		return nil, err
	}
	return r, nil
}

// ToolSpecs converts discovered gateway tools into the provider offer list.
func ToolSpecs(defs []gateway.ToolDef) []provider.ToolSpec {
	specs := make([]provider.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, provider.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return specs
}

func (r *REPL) reloadPrompt() error {
	variables := prompts.DefaultVariables(
		r.sess.Metadata().Target, r.sess.ID(), r.prov.ModelID())
	prompt, err := r.loader.Load(r.cfg.Prompt.Mode, r.guided, r.cfg.Prompt.File, variables)
	if err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	}
	r.systemPrompt = prompt
	return nil
}

func (r *REPL) promptText() string {
	if r.guided {
		return promptStyle.Render("pwnpilot[guided]> ")
	}
	return promptStyle.Render("pwnpilot> ")
}

// Run drives the conversation until the operator exits or input ends.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, headerStyle.Render("Session "+r.sess.ID()))
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands, /exit to quit."))
	fmt.Fprintln(r.out)

	for {
		line, err := r.readLine(r.promptText())
		if err == io.EOF {
			fmt.Fprintln(r.out, "\nGoodbye.")
			return r.sess.End()
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.handleCommand(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, errStyle.Render("Error: "+err.Error()))
			}
			if quit {
				return r.sess.End()
			}
			continue
		}

		if err := r.sess.AddUserMessage(line); err != nil {
			return err
		}
		if err := r.runExchange(ctx); err != nil {
			fmt.Fprintln(r.out, errStyle.Render("Error: "+err.Error()))
		}
	}
}

// chatRequest assembles the current turn. Guided mode offers no tools; the
// operator runs commands by hand and pastes output back.
func (r *REPL) chatRequest() provider.ChatRequest {
	req := provider.ChatRequest{
		System:        r.systemPrompt,
		Messages:      r.sess.Messages(),
		MaxTokens:     r.cfg.Provider.MaxTokens,
		EnableCaching: r.cfg.Provider.EnableCache && r.prov.SupportsCaching(),
	}
	if !r.guided {
		req.Tools = r.tools
	}
	return req
}

// runExchange loops model turns until the model stops requesting tools or
// asks for operator input. Every tool request is gated by operator approval.
func (r *REPL) runExchange(ctx context.Context) error {
	for {
		resp, err := provider.ChatWithRetry(ctx, r.prov, r.chatRequest())
		if err != nil {
			return fmt.Errorf("model request failed: %w", err)
		}
		r.recordUsage(resp.Usage)

		blocks, inputRequested := session.StripUserInputMarker(resp.Blocks)
		r.printAssistantText(blocks)
		if err := r.sess.AddAssistantBlocks(blocks); err != nil {
			return err
		}

		// The input marker only matters on a text-only turn. A turn that
		// requests a tool must get its tool_result before control returns
		// to the operator, or the conversation tail is left unanswerable.
		toolBlocks := toolUses(blocks)
		if len(toolBlocks) == 0 {
			if !inputRequested {
				fmt.Fprintln(r.out, dimStyle.Render("(Model did not explicitly request input.)"))
			}
			r.showContextPressure(ctx)
			return nil
		}

		if len(toolBlocks) > 1 {
			fmt.Fprintln(r.out, warnStyle.Render(fmt.Sprintf(
				"Model requested %d tools at once; executing only the first.", len(toolBlocks))))
			if err := r.sess.Append(session.Event{
				Type:  session.EventTypeToolMultiRequest,
				Count: len(toolBlocks),
			}); err != nil {
				return err
			}
		}

		if err := r.handleToolExecution(ctx, toolBlocks[0]); err != nil {
			return err
		}
		// The protocol requires an answer for every requested tool id, so
		// the extras get an explicit not-executed result.
		for _, extra := range toolBlocks[1:] {
			notice, _ := json.Marshal(map[string]any{
				"success": false,
				"error":   "not executed",
				"message": "Only one tool is executed per turn; request it again if still needed",
			})
			if err := r.sess.AddToolResult(extra.ID, notice); err != nil {
				return err
			}
		}

		r.showContextPressure(ctx)
		fmt.Fprintln(r.out, dimStyle.Render("Processing tool output..."))
	}
}

func toolUses(blocks []session.Block) []session.Block {
	uses := []session.Block{}
	for _, b := range blocks {
		if b.Type == session.BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// handleToolExecution runs one interactively approved tool request. Unknown
// tools and denials are fed back to the model as failed results rather than
// aborting the exchange.
func (r *REPL) handleToolExecution(ctx context.Context, tb session.Block) error {
	fmt.Fprintln(r.out, sectionStyle.Render("\nProposed tool: "+tb.Name))
	r.printToolInput(tb.Input)

	if !r.toolNames[tb.Name] {
		fmt.Fprintln(r.out, warnStyle.Render("Unknown tool requested: "+tb.Name))
		if err := r.sess.Append(session.Event{
			Type:     session.EventTypeToolInvalid,
			ToolName: tb.Name,
			Input:    tb.Input,
		}); err != nil {
			return err
		}
		result, _ := json.Marshal(map[string]any{
			"success": false,
			"error":   "Unknown tool",
			"message": fmt.Sprintf("Tool %q is not available", tb.Name),
		})
		return r.sess.AddToolResult(tb.ID, result)
	}

	approved, err := r.confirm("Approve this command?")
	if err != nil {
		return err
	}
	if !approved {
		fmt.Fprintln(r.out, warnStyle.Render("Denied."))
		if err := r.sess.AddToolDenied(tb.Name, tb.Input, "operator denied execution"); err != nil {
			return err
		}
		result, _ := json.Marshal(map[string]any{
			"success": false,
			"error":   "User denied execution",
			"message": "Operator denied tool execution",
		})
		return r.sess.AddToolResult(tb.ID, result)
	}

	result, cacheHit := r.gw.Execute(ctx, tb.Name, tb.Input)
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	r.printResultPreview(raw, cacheHit)
	return r.sess.AddToolExecution(tb.ID, tb.Name, tb.Input, raw, cacheHit)
}

func (r *REPL) printToolInput(input map[string]any) {
	pretty, err := json.MarshalIndent(input, "   ", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(r.out, "   Input: %s\n", pretty)
}

func (r *REPL) printAssistantText(blocks []session.Block) {
	for _, b := range blocks {
		if b.Type == session.BlockText && b.Text != "" {
			fmt.Fprintln(r.out, "\n"+b.Text)
		}
	}
}

func (r *REPL) printResultPreview(raw []byte, cacheHit bool) {
	preview := string(raw)
	if len(preview) > outputPreviewLimit {
		preview = preview[:outputPreviewLimit] + "..."
	}
	if cacheHit {
		fmt.Fprintln(r.out, cachedStyle.Render("\nCached result:"))
	} else {
		fmt.Fprintln(r.out, okStyle.Render("\nTool output:"))
	}
	fmt.Fprintln(r.out, preview)
}

// recordUsage feeds one response's usage into the tracker and the log.
// Backends without token reporting leave usage zero and are skipped.
func (r *REPL) recordUsage(usage tokens.Usage) {
	if !r.prov.SupportsTokenTracking() || usage.Total() == 0 {
		return
	}
	r.tracker.Update(usage)
	if err := r.sess.Append(session.Event{
		Type: session.EventTypeTokenUsage,
		Usage: map[string]int{
			"input_tokens":                usage.InputTokens,
			"output_tokens":               usage.OutputTokens,
			"cache_creation_input_tokens": usage.CacheCreationTokens,
			"cache_read_input_tokens":     usage.CacheReadTokens,
		},
		TotalCost: r.tracker.Cost(),
	}); err != nil {
		r.log.Warn("token usage event not logged", zap.Error(err))
	}
}
