package session

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// UserInputMarker is the sentinel the model embeds in a text block to signal
// that it wants control returned to the operator. It is stripped before the
// block is displayed or persisted.
const UserInputMarker = "[[USER_INPUT]]"

// Block is one content block of a conversation turn. The Type tag selects
// which fields are meaningful; both the event-log replay and the conversation
// loop dispatch on it.
type Block struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, input map[string]any) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

func ToolResultBlock(toolUseID, content string) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

type Message struct {
	Role   string  `json:"role"`
	Blocks []Block `json:"content"`
}

func UserTextMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []Block{TextBlock(text)}}
}

func (m Message) HasToolUse() bool {
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

func (m Message) HasToolResult() bool {
	for _, b := range m.Blocks {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// ToolUseIDs returns the ids of every tool_use block in the message, in order.
func (m Message) ToolUseIDs() []string {
	ids := []string{}
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse && b.ID != "" {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// CharLen estimates the character volume of the message for the restore size
// guard (roughly 4 characters per token).
func (m Message) CharLen() int {
	total := 0
	for _, b := range m.Blocks {
		total += len(b.Text) + len(b.Content) + len(b.Name)
		for k, v := range b.Input {
			total += len(k)
			if s, ok := v.(string); ok {
				total += len(s)
			}
		}
	}
	return total
}

// StripUserInputMarker removes the user-input sentinel from text blocks and
// reports whether it was present. Text blocks left empty by the strip are
// dropped entirely.
func StripUserInputMarker(blocks []Block) ([]Block, bool) {
	requested := false
	cleaned := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != BlockText {
			cleaned = append(cleaned, b)
			continue
		}
		text := b.Text
		if strings.Contains(text, UserInputMarker) {
			requested = true
			text = strings.TrimSpace(strings.ReplaceAll(text, UserInputMarker, ""))
		}
		if text != "" {
			cleaned = append(cleaned, TextBlock(text))
		}
	}
	return cleaned, requested
}
