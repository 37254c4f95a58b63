package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Jawbreaker1/pwnpilot/internal/autonomous"
	"github.com/Jawbreaker1/pwnpilot/internal/classifier"
	"github.com/Jawbreaker1/pwnpilot/internal/config"
	"github.com/Jawbreaker1/pwnpilot/internal/provider"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

// autonomousParams are the per-run limits, seeded from configuration and
// overridable on the command line.
type autonomousParams struct {
	Objective     string
	MaxIterations int
	MaxTokens     int
	Delay         time.Duration
}

// parseAutonomousArgs splits "/autonomous <objective> [--iterations N]
// [--tokens N] [--delay SECONDS]" into params. Zero limits mean unlimited.
func parseAutonomousArgs(args []string, defaults config.AutonomousConfig) (autonomousParams, error) {
	params := autonomousParams{
		MaxIterations: defaults.MaxIterations,
		MaxTokens:     defaults.MaxTokens,
		Delay:         defaults.IterationDelay,
	}
	if params.Delay <= 0 {
		params.Delay = autonomous.DefaultIterationDelay
	}

	objective := []string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			objective = append(objective, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !hasValue {
			if i+1 >= len(args) {
				return params, fmt.Errorf("flag --%s requires a value", name)
			}
			i++
			value = args[i]
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return params, fmt.Errorf("flag --%s requires a non-negative number, got %q", name, value)
		}
		switch name {
		case "iterations":
			params.MaxIterations = n
		case "tokens":
			params.MaxTokens = n
		case "delay":
			params.Delay = time.Duration(n) * time.Second
		default:
			return params, fmt.Errorf("unknown flag --%s", name)
		}
	}
	params.Objective = strings.Join(objective, " ")
	return params, nil
}

// handleAutonomous confirms and runs the autonomous loop: the model drives,
// the classifier gates every tool request, and the operator only sees
// approval prompts for destructive actions.
func (r *REPL) handleAutonomous(ctx context.Context, args []string) error {
	params, err := parseAutonomousArgs(args, r.cfg.Autonomous)
	if err != nil {
		fmt.Fprintln(r.out, err.Error())
		fmt.Fprintln(r.out, "Usage: /autonomous <objective> [--iterations N] [--tokens N] [--delay SECONDS]")
		return nil
	}
	if params.Objective == "" {
		fmt.Fprintln(r.out, "An objective is required, e.g. /autonomous enumerate services on example.com")
		return nil
	}

	fmt.Fprintln(r.out, warnStyle.Render(ruleLine))
	fmt.Fprintln(r.out, warnStyle.Render("AUTONOMOUS MODE"))
	fmt.Fprintln(r.out, "  The model will select and run tools without per-step approval.")
	fmt.Fprintln(r.out, "  Destructive actions still require your approval; forbidden actions halt the run.")
	fmt.Fprintf(r.out, "  Objective: %s\n", params.Objective)
	fmt.Fprintf(r.out, "  Limits: %s iterations, %s tokens, %s between iterations\n",
		limitOrUnlimited(params.MaxIterations), limitOrUnlimited(params.MaxTokens), params.Delay)
	fmt.Fprintf(r.out, "  %s\n", r.cls.ScopeSummary())
	if !r.cls.HasScope() {
		fmt.Fprintln(r.out, warnStyle.Render("  No scope configured: every target is considered in scope."))
	}
	fmt.Fprintln(r.out, warnStyle.Render(ruleLine))

	ok, err := r.confirm("Start autonomous mode?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}

	if err := r.sess.Append(session.Event{
		Type:          session.EventTypeAutonomousStart,
		Objective:     params.Objective,
		MaxIterations: params.MaxIterations,
		MaxTokens:     params.MaxTokens,
		Scope:         r.cls.ScopeTargets(),
	}); err != nil {
		return err
	}
	if err := r.sess.AddUserMessage("[AUTONOMOUS MODE] " + params.Objective); err != nil {
		return err
	}

	auto := autonomous.New(params.MaxIterations, params.MaxTokens, params.Delay)
	auto.Start()
	r.runAutonomousLoop(ctx, auto)

	reason := auto.StopReason()
	fmt.Fprintln(r.out, headerStyle.Render(ruleLine))
	fmt.Fprintf(r.out, "Autonomous mode stopped: %s\n", reason)
	fmt.Fprintf(r.out, "   Completed %d iterations, used %d tokens\n", auto.Iterations(), auto.TokensUsed())
	fmt.Fprintln(r.out, headerStyle.Render(ruleLine))

	if err := r.sess.Append(session.Event{
		Type:       session.EventTypeAutonomousStop,
		Reason:     reason,
		Iterations: auto.Iterations(),
		TokensUsed: auto.TokensUsed(),
	}); err != nil {
		return err
	}
	auto.Stop()
	return nil
}

func limitOrUnlimited(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func (r *REPL) runAutonomousLoop(ctx context.Context, auto *autonomous.Manager) {
	for auto.ShouldContinue() {
		if err := auto.RecordIteration(ctx); err != nil {
			fmt.Fprintln(r.out, warnStyle.Render("Interrupted: "+err.Error()))
			auto.Pause()
			return
		}
		fmt.Fprintln(r.out, headerStyle.Render(fmt.Sprintf("\nAutonomous iteration %d", auto.Iterations())))
		fmt.Fprintln(r.out, dimStyle.Render(auto.Status()))

		resp, err := provider.ChatWithRetry(ctx, r.prov, r.chatRequest())
		if err != nil {
			fmt.Fprintln(r.out, errStyle.Render("Model request failed: "+err.Error()))
			auto.Pause()
			return
		}
		r.recordUsage(resp.Usage)
		auto.RecordTokens(resp.Usage.Total())

		blocks, _ := session.StripUserInputMarker(resp.Blocks)
		r.printAssistantText(blocks)
		if err := r.sess.AddAssistantBlocks(blocks); err != nil {
			fmt.Fprintln(r.out, errStyle.Render("Session write failed: "+err.Error()))
			auto.Pause()
			return
		}

		toolBlocks := toolUses(blocks)
		if len(toolBlocks) == 0 {
			fmt.Fprintln(r.out, okStyle.Render("\nModel indicates the objective is complete."))
			return
		}

		proceed, err := r.handleAutonomousTool(ctx, toolBlocks[0])
		if err != nil {
			fmt.Fprintln(r.out, errStyle.Render("Session write failed: "+err.Error()))
			auto.Pause()
			return
		}
		// Answer extra tool ids so the conversation stays well formed.
		for _, extra := range toolBlocks[1:] {
			notice, _ := json.Marshal(map[string]any{
				"success": false,
				"error":   "not executed",
				"message": "Autonomous mode executes one tool per iteration",
			})
			if err := r.sess.AddToolResult(extra.ID, notice); err != nil {
				fmt.Fprintln(r.out, errStyle.Render("Session write failed: "+err.Error()))
				auto.Pause()
				return
			}
		}
		if !proceed {
			fmt.Fprintln(r.out, warnStyle.Render("\nAction blocked or denied, pausing autonomous mode."))
			auto.Pause()
			return
		}
	}
}

// handleAutonomousTool gates one tool request by safety tier. The returned
// bool reports whether the loop should continue.
func (r *REPL) handleAutonomousTool(ctx context.Context, tb session.Block) (bool, error) {
	tier, reason := r.cls.Classify(tb.Name, tb.Input)

	fmt.Fprintln(r.out, sectionStyle.Render("\nProposed tool: "+tb.Name))
	r.printToolInput(tb.Input)
	fmt.Fprintf(r.out, "   Classification: %s\n", tier)
	fmt.Fprintf(r.out, "   Reason: %s\n", reason)

	if !r.toolNames[tb.Name] {
		fmt.Fprintln(r.out, warnStyle.Render("   Unknown tool requested."))
		if err := r.sess.Append(session.Event{
			Type:     session.EventTypeToolInvalid,
			ToolName: tb.Name,
			Input:    tb.Input,
		}); err != nil {
			return false, err
		}
		result, _ := json.Marshal(map[string]any{
			"success": false,
			"error":   "Unknown tool",
			"message": fmt.Sprintf("Tool %q is not available", tb.Name),
		})
		return false, r.sess.AddToolResult(tb.ID, result)
	}

	switch tier {
	case classifier.Forbidden:
		fmt.Fprintln(r.out, errStyle.Render("   Action FORBIDDEN, will not execute."))
		if err := r.sess.AddToolDenied(tb.Name, tb.Input, reason); err != nil {
			return false, err
		}
		result, _ := json.Marshal(map[string]any{
			"success": false,
			"error":   "Action forbidden",
			"message": "Action blocked by safety controls: " + reason,
		})
		return false, r.sess.AddToolResult(tb.ID, result)

	case classifier.NeedsApproval:
		fmt.Fprintln(r.out, warnStyle.Render("   Action needs approval."))
		approved, err := r.confirm("   Approve this action?")
		if err != nil {
			return false, err
		}
		if !approved {
			fmt.Fprintln(r.out, warnStyle.Render("   Denied by operator."))
			if err := r.sess.AddToolDenied(tb.Name, tb.Input, "operator denied destructive action"); err != nil {
				return false, err
			}
			result, _ := json.Marshal(map[string]any{
				"success": false,
				"error":   "User denied execution",
				"message": "Operator denied destructive action",
			})
			return false, r.sess.AddToolResult(tb.ID, result)
		}
		fmt.Fprintln(r.out, okStyle.Render("   Approved by operator."))

	default:
		fmt.Fprintln(r.out, okStyle.Render("   Action SAFE, executing automatically."))
	}

	result, cacheHit := r.gw.Execute(ctx, tb.Name, tb.Input)
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode tool result: %w", err)
	}
	r.printResultPreview(raw, cacheHit)
	return true, r.sess.AddClassifiedToolExecution(tb.ID, tb.Name, tb.Input, raw, cacheHit, string(tier))
}
