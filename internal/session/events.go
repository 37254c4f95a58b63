package session

import (
	"crypto/rand"
	"encoding/json"

	"github.com/oklog/ulid/v2"
)

const (
	EventTypeSessionStart      = "session_start"
	EventTypeSessionEnd        = "session_end"
	EventTypeModelSource       = "model_source"
	EventTypeModelSelected     = "model_selected"
	EventTypeUserMessage       = "user_message"
	EventTypeAssistantBlocks   = "assistant_blocks"
	EventTypeToolResult        = "tool_result"
	EventTypeToolOutput        = "tool_output" // legacy audit record, pre tool_result
	EventTypeToolDenied        = "tool_denied"
	EventTypeToolInvalid       = "tool_invalid"
	EventTypeToolMultiRequest  = "tool_multi_requested"
	EventTypeModeSwitch        = "mode_switch"
	EventTypeTokenUsage        = "token_usage"
	EventTypeContextSummarized = "context_summarized"
	EventTypeTargetSet         = "target_set"
	EventTypeKnowledgeUpdate   = "knowledge_update"
	EventTypeAutonomousStart   = "autonomous_mode_start"
	EventTypeAutonomousStop    = "autonomous_mode_stop"
	EventTypeRestoreWarning    = "restore_warning"
)

// Event is one record of the append-only session log. Type and Timestamp are
// always present; the remaining fields are type-specific and omitted when
// empty. Replay dispatches purely on Type.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id,omitempty"`

	// user_message
	Content string `json:"content,omitempty"`

	// assistant_blocks
	Blocks []Block `json:"blocks,omitempty"`

	// tool_result / tool_output / tool_denied / tool_invalid
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CacheHit  bool            `json:"cache_hit,omitempty"`

	// model_source / target_set
	Value string `json:"value,omitempty"`

	// model_selected
	ModelID string `json:"model_id,omitempty"`

	// mode_switch
	FromMode string `json:"from_mode,omitempty"`
	ToMode   string `json:"to_mode,omitempty"`

	// token_usage
	Usage     map[string]int `json:"usage,omitempty"`
	TotalCost float64        `json:"total_cost,omitempty"`

	// context_summarized
	Summary        string `json:"summary,omitempty"`
	MessagesBefore int    `json:"messages_before,omitempty"`
	MessagesAfter  int    `json:"messages_after,omitempty"`

	// knowledge_update
	Knowledge map[string]any `json:"knowledge,omitempty"`

	// autonomous_mode_start / autonomous_mode_stop
	Objective     string   `json:"objective,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Scope         []string `json:"scope,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Iterations    int      `json:"iterations,omitempty"`
	TokensUsed    int      `json:"tokens_used,omitempty"`

	// tool_multi_requested
	Count int `json:"count,omitempty"`

	// restore_warning and other free-text diagnostics
	Detail string `json:"detail,omitempty"`

	// classification attached to autonomous tool records
	Classification string `json:"classification,omitempty"`
}

func NewEventID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
