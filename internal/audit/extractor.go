// Package audit extracts the command trail from session logs: everything
// that ran, was served from cache, or was denied, in order.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

// Record statuses.
const (
	StatusExecuted   = "EXECUTED"
	StatusCached     = "CACHED"
	StatusFailed     = "FAILED"
	StatusDenied     = "DENIED"
	StatusModeSwitch = "MODE_SWITCH"
)

// Record is one audit entry derived from the session log.
type Record struct {
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status"`
	ToolName  string         `json:"tool_name,omitempty"`
	Command   string         `json:"command,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	FromMode  string         `json:"from_mode,omitempty"`
	ToMode    string         `json:"to_mode,omitempty"`
}

// toolResult is the subset of an execution result the audit needs.
type toolResult struct {
	Success         bool   `json:"success"`
	Output          string `json:"output"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	Error           string `json:"error"`
	CommandExecuted string `json:"command_executed"`
}

// Extract builds the audit trail for one session log. Malformed log lines are
// skipped, matching restore behavior.
func Extract(logPath string) ([]Record, error) {
	events, _, err := session.ReadEvents(logPath)
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}

	records := []Record{}
	for _, event := range events {
		switch event.Type {
		case session.EventTypeToolResult, session.EventTypeToolOutput:
			records = append(records, executionRecord(event))
		case session.EventTypeToolDenied:
			records = append(records, Record{
				Timestamp: event.Timestamp,
				Status:    StatusDenied,
				ToolName:  event.ToolName,
				Command:   commandFromInput(event.ToolName, event.Input),
				Input:     event.Input,
			})
		case session.EventTypeModeSwitch:
			records = append(records, Record{
				Timestamp: event.Timestamp,
				Status:    StatusModeSwitch,
				FromMode:  event.FromMode,
				ToMode:    event.ToMode,
			})
		}
	}
	return records, nil
}

func executionRecord(event session.Event) Record {
	var result toolResult
	if len(event.Result) > 0 {
		json.Unmarshal(event.Result, &result)
	}

	record := Record{
		Timestamp: event.Timestamp,
		ToolName:  event.ToolName,
		Input:     event.Input,
	}

	record.Command = result.CommandExecuted
	if record.Command == "" {
		record.Command = commandFromInput(event.ToolName, event.Input)
	}

	record.Output = result.Output
	if record.Output == "" {
		record.Output = result.Stdout
	}
	record.Error = result.Error
	if record.Error == "" {
		record.Error = result.Stderr
	}

	switch {
	case event.CacheHit:
		record.Status = StatusCached
	case result.Success:
		record.Status = StatusExecuted
	default:
		record.Status = StatusFailed
	}
	return record
}

func commandFromInput(toolName string, input map[string]any) string {
	get := func(key string) string {
		if value, ok := input[key].(string); ok {
			return value
		}
		return ""
	}
	if command := get("command"); command != "" {
		return command
	}
	if target := get("target"); target != "" {
		return strings.TrimSpace(toolName + " " + target + " " + get("options"))
	}
	return toolName
}

// FormatText renders the trail as a readable report. Outputs longer than 500
// characters are truncated.
func FormatText(sessionID string, records []Record, includeOutput bool) string {
	lines := []string{
		fmt.Sprintf("Command Audit Report - Session: %s", sessionID),
		strings.Repeat("=", 80),
		fmt.Sprintf("Total Commands: %d", len(records)),
		"",
	}

	for i, record := range records {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, record.Timestamp))

		if record.Status == StatusModeSwitch {
			lines = append(lines,
				fmt.Sprintf("    Mode Switch: %s -> %s", record.FromMode, record.ToMode),
				"")
			continue
		}

		lines = append(lines,
			fmt.Sprintf("    Tool: %s", record.ToolName),
			fmt.Sprintf("    Command: %s", record.Command),
			fmt.Sprintf("    Status: %s", record.Status))
		if record.Status == StatusFailed && record.Error != "" {
			lines = append(lines, fmt.Sprintf("    Error: %s", record.Error))
		}
		if includeOutput && record.Output != "" {
			output := record.Output
			if len(output) > 500 {
				output = output[:500] + fmt.Sprintf("... [truncated, %d chars total]", len(record.Output))
			}
			lines = append(lines, "    Output:")
			for _, outLine := range strings.Split(output, "\n") {
				lines = append(lines, "    "+outLine)
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

type jsonReport struct {
	SessionID     string   `json:"session_id"`
	TotalCommands int      `json:"total_commands"`
	Commands      []Record `json:"commands"`
}

// FormatJSON renders the trail as an indented JSON report.
func FormatJSON(sessionID string, records []Record) (string, error) {
	raw, err := json.MarshalIndent(jsonReport{
		SessionID:     sessionID,
		TotalCommands: len(records),
		Commands:      records,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode audit report: %w", err)
	}
	return string(raw), nil
}
