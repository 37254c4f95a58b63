package session

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

var (
	// restoreCharLimit caps the character volume of a rebuilt conversation
	// (roughly 4 chars per token). Beyond it, old history is truncated so a
	// reconnect always produces an operable session.
	restoreCharLimit  = 600_000
	restoreKeepRecent = 20
)

const truncatedNotice = "[Conversation truncated on restore: earlier messages exceeded the context safety ceiling. Recent history follows.]"

// replay rebuilds metadata, the message sequence, and pending-tool state from
// the event log, then runs the trailing-repair pass and the size guard.
func (m *Manager) replay() error {
	events, skipped, err := ReadEvents(m.LogPath())
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		m.log.Warn("skipped malformed session log lines",
			zap.String("session_id", m.id),
			zap.Ints("lines", skipped))
	}

	var (
		messages       []Message
		pendingToolIDs []string
		pendingResults = map[string]json.RawMessage{}
	)

	flushLegacy := func() {
		if len(pendingResults) == 0 || len(pendingToolIDs) == 0 {
			return
		}
		blocks := []Block{}
		for _, id := range pendingToolIDs {
			if result, ok := pendingResults[id]; ok {
				blocks = append(blocks, ToolResultBlock(id, string(result)))
			}
		}
		if len(blocks) > 0 {
			messages = append(messages, Message{Role: RoleUser, Blocks: blocks})
		}
		pendingResults = map[string]json.RawMessage{}
		pendingToolIDs = nil
	}

	for _, event := range events {
		switch event.Type {
		case EventTypeSessionStart:
			if event.SessionID != "" {
				m.meta.SessionID = event.SessionID
			}
			m.meta.CreatedAt = event.Timestamp
		case EventTypeModelSource:
			m.meta.ModelSource = event.Value
		case EventTypeModelSelected:
			m.meta.ModelID = event.ModelID
		case EventTypeTargetSet:
			m.meta.Target = event.Value
		case EventTypeKnowledgeUpdate:
			if m.meta.Knowledge == nil {
				m.meta.Knowledge = map[string]any{}
			}
			for k, v := range event.Knowledge {
				m.meta.Knowledge[k] = v
			}
		case EventTypeUserMessage:
			flushLegacy()
			messages = append(messages, UserTextMessage(event.Content))
		case EventTypeAssistantBlocks:
			msg := Message{Role: RoleAssistant, Blocks: event.Blocks}
			messages = append(messages, msg)
			pendingToolIDs = msg.ToolUseIDs()
		case EventTypeToolResult:
			// Merge with a preceding tool_result message so a multi-tool
			// turn replays as one user message, same as the live path.
			messages = appendToolResult(messages, event.ToolUseID, string(event.Result))
			pendingToolIDs = nil
		case EventTypeToolOutput:
			// Legacy audit record. Reconstruct the missing tool_result only
			// when exactly one tool id is pending; with several pending ids
			// the pairing is ambiguous and guessing would corrupt the
			// conversation, so it is surfaced and skipped.
			if len(pendingToolIDs) == 1 {
				pendingResults[pendingToolIDs[0]] = event.Result
			} else if len(pendingToolIDs) > 1 {
				m.log.Warn("ambiguous legacy tool_output: multiple pending tool ids, not reconstructing",
					zap.String("session_id", m.id),
					zap.Strings("pending", pendingToolIDs))
			}
		case EventTypeContextSummarized:
			// Re-apply the compression so the rebuilt sequence matches what
			// the provider last saw, not the full pre-compression history.
			keep := event.MessagesAfter - 1
			if keep >= 0 && keep <= len(messages) && event.Summary != "" {
				synthetic := UserTextMessage(fmt.Sprintf("%s\n\n%s\n\n%s", summaryPrefix, event.Summary, summarySuffix))
				messages = append([]Message{synthetic}, messages[len(messages)-keep:]...)
			}
		}
	}

	before := len(messages)
	messages = m.repairTail(messages)
	if repaired := before - len(messages); repaired > 0 {
		m.log.Warn("dropped incomplete tool exchange from end of restored session",
			zap.String("session_id", m.id),
			zap.Int("dropped", repaired))
	}

	m.messages = m.guardSize(messages)
	return nil
}

// repairTail walks backward from the end of the restored sequence and drops
// messages that violate the tool_use/tool_result pairing invariant. The
// invariant can only break at the tail of the log (abrupt termination
// mid-exchange), so repair stops at the first internally consistent message.
func (m *Manager) repairTail(messages []Message) []Message {
	for len(messages) > 0 {
		last := messages[len(messages)-1]

		if last.Role == RoleAssistant && last.HasToolUse() {
			messages = messages[:len(messages)-1]
			continue
		}

		if last.Role == RoleUser && last.HasToolResult() {
			if len(messages) >= 2 && pairMatches(messages[len(messages)-2], last) {
				break
			}
			messages = messages[:len(messages)-1]
			continue
		}

		break
	}
	return messages
}

// pairMatches reports whether prev is an assistant turn whose tool_use
// answers the tool_result ids in result.
func pairMatches(prev, result Message) bool {
	if prev.Role != RoleAssistant || !prev.HasToolUse() {
		return false
	}
	prevIDs := map[string]struct{}{}
	for _, id := range prev.ToolUseIDs() {
		prevIDs[id] = struct{}{}
	}
	for _, b := range result.Blocks {
		if b.Type != BlockToolResult {
			continue
		}
		if b.ToolUseID == "" {
			continue
		}
		if _, ok := prevIDs[b.ToolUseID]; !ok {
			return false
		}
	}
	return true
}

func (m *Manager) guardSize(messages []Message) []Message {
	total := 0
	for _, msg := range messages {
		total += msg.CharLen()
	}
	if total <= restoreCharLimit || len(messages) <= restoreKeepRecent {
		return messages
	}
	m.log.Warn("restored conversation exceeds size ceiling, truncating",
		zap.String("session_id", m.id),
		zap.Int("chars", total),
		zap.Int("kept", restoreKeepRecent))
	recent := messages[len(messages)-restoreKeepRecent:]
	return append([]Message{UserTextMessage(truncatedNotice)}, recent...)
}
