package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound reports a restore request for a session id with no log on disk.
var ErrNotFound = errors.New("session not found")

type Metadata struct {
	SessionID   string         `json:"session_id"`
	CreatedAt   string         `json:"created_at"`
	ModelSource string         `json:"model_source,omitempty"`
	ModelID     string         `json:"model_id,omitempty"`
	Target      string         `json:"target,omitempty"`
	Knowledge   map[string]any `json:"knowledge_graph,omitempty"`
}

// Manager owns one session: the append-only event log on disk, the derived
// in-memory message sequence, and the intelligence summary. The event log is
// the single source of truth; everything else is a projection of it.
type Manager struct {
	dir      string
	id       string
	meta     Metadata
	messages []Message
	intel    *Intel
	log      *zap.Logger
	now      func() time.Time
}

// New creates a fresh session and appends its session_start record. An empty
// id generates a time-derived one.
func New(dir, id string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if id == "" {
		id = NewID()
	}
	m := &Manager{
		dir: dir,
		id:  id,
		log: logger,
		now: time.Now,
	}
	m.meta = Metadata{
		SessionID: id,
		CreatedAt: timestamp(m.now),
	}
	m.intel = NewIntel(m.SummaryPath(), id)
	if err := m.Append(Event{Type: EventTypeSessionStart}); err != nil {
		return nil, err
	}
	return m, nil
}

// Restore rebuilds a session from its event log. A missing log is a caller
// error (ErrNotFound), never a silent empty session.
func Restore(dir, id string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		dir: dir,
		id:  id,
		log: logger,
		now: time.Now,
	}
	if _, err := os.Stat(m.LogPath()); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("stat session log: %w", err)
	}
	m.meta = Metadata{SessionID: id}
	m.intel = LoadIntel(m.SummaryPath(), id)
	if err := m.replay(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) ID() string          { return m.id }
func (m *Manager) Dir() string         { return m.dir }
func (m *Manager) Metadata() Metadata  { return m.meta }
func (m *Manager) Intel() *Intel       { return m.intel }
func (m *Manager) Messages() []Message { return m.messages }

func (m *Manager) LogPath() string {
	return filepath.Join(m.dir, m.id+".jsonl")
}

func (m *Manager) SummaryPath() string {
	return filepath.Join(m.dir, m.id+"_summary.json")
}

func (m *Manager) LedgerPath() string {
	return filepath.Join(m.dir, m.id+"_ledger.md")
}

// Append stamps and durably writes one event record.
func (m *Manager) Append(event Event) error {
	event.Timestamp = timestamp(m.now)
	if event.SessionID == "" {
		event.SessionID = m.id
	}
	if event.EventID == "" {
		event.EventID = NewEventID()
	}
	return AppendEvent(m.LogPath(), event)
}

func (m *Manager) AddUserMessage(text string) error {
	m.messages = append(m.messages, UserTextMessage(text))
	return m.Append(Event{Type: EventTypeUserMessage, Content: text})
}

func (m *Manager) AddAssistantBlocks(blocks []Block) error {
	m.messages = append(m.messages, Message{Role: RoleAssistant, Blocks: blocks})
	return m.Append(Event{Type: EventTypeAssistantBlocks, Blocks: blocks})
}

// AddToolResult pairs a tool_use with its result. All results answering the
// same assistant turn must share one user message, as the provider protocol
// requires, so consecutive results merge into the previous message when that
// message holds only tool_result blocks.
func (m *Manager) AddToolResult(toolUseID string, result json.RawMessage) error {
	m.messages = appendToolResult(m.messages, toolUseID, string(result))
	return m.Append(Event{
		Type:      EventTypeToolResult,
		ToolUseID: toolUseID,
		Result:    result,
	})
}

// AddToolExecution is AddToolResult plus the audit fields: which tool ran,
// with what input, and whether the result came from cache.
func (m *Manager) AddToolExecution(toolUseID, toolName string, input map[string]any, result json.RawMessage, cacheHit bool) error {
	return m.AddClassifiedToolExecution(toolUseID, toolName, input, result, cacheHit, "")
}

// AddClassifiedToolExecution additionally records the safety tier that let the
// execution proceed. Autonomous mode uses this; interactive approvals leave
// the classification empty.
func (m *Manager) AddClassifiedToolExecution(toolUseID, toolName string, input map[string]any, result json.RawMessage, cacheHit bool, classification string) error {
	m.messages = appendToolResult(m.messages, toolUseID, string(result))
	status := "EXECUTED"
	if cacheHit {
		status = "CACHED"
	}
	m.ledgerNote(ledgerCommand(toolName, input), status, classification)
	var outcome struct {
		Success bool `json:"success"`
	}
	_ = json.Unmarshal(result, &outcome)
	if err := m.intel.AddToolAttempt(toolName, ledgerCommand(toolName, input), outcome.Success); err != nil {
		m.log.Warn("intel update failed", zap.Error(err))
	}
	return m.Append(Event{
		Type:           EventTypeToolResult,
		ToolUseID:      toolUseID,
		ToolName:       toolName,
		Input:          input,
		Result:         result,
		CacheHit:       cacheHit,
		Classification: classification,
	})
}

// AddToolDenied records an operator denial for the audit trail.
func (m *Manager) AddToolDenied(toolName string, input map[string]any, reason string) error {
	m.ledgerNote(ledgerCommand(toolName, input), "DENIED", reason)
	return m.Append(Event{
		Type:     EventTypeToolDenied,
		ToolName: toolName,
		Input:    input,
		Reason:   reason,
	})
}

// ledgerNote mirrors a tool event into the evidence ledger. Ledger failures
// are logged, never fatal: the event log holds the authoritative record.
func (m *Manager) ledgerNote(command, status, notes string) {
	if err := AppendLedger(m.LedgerPath(), command, status, notes); err != nil {
		m.log.Warn("ledger append failed", zap.Error(err))
	}
}

// appendToolResult attaches one tool_result block to the message sequence.
// When the previous message is a user message made purely of tool_result
// blocks, the new block joins it: all answers to one assistant turn form a
// single user message, which is what the pairing repair on restore expects.
func appendToolResult(messages []Message, toolUseID, result string) []Message {
	if n := len(messages); n > 0 {
		last := messages[n-1]
		if last.Role == RoleUser && onlyToolResults(last.Blocks) {
			messages[n-1].Blocks = append(last.Blocks, ToolResultBlock(toolUseID, result))
			return messages
		}
	}
	return append(messages, Message{
		Role:   RoleUser,
		Blocks: []Block{ToolResultBlock(toolUseID, result)},
	})
}

func onlyToolResults(blocks []Block) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}

func ledgerCommand(toolName string, input map[string]any) string {
	if c, ok := input["command"].(string); ok && c != "" {
		return c
	}
	return toolName
}

// AddModeSwitch records an operator mode change for the audit trail.
func (m *Manager) AddModeSwitch(from, to string) error {
	return m.Append(Event{Type: EventTypeModeSwitch, FromMode: from, ToMode: to})
}

func (m *Manager) SetModelSource(source string) error {
	m.meta.ModelSource = source
	return m.Append(Event{Type: EventTypeModelSource, Value: source})
}

func (m *Manager) SetModel(modelID string) error {
	m.meta.ModelID = modelID
	return m.Append(Event{Type: EventTypeModelSelected, ModelID: modelID})
}

func (m *Manager) SetTarget(target string) error {
	m.meta.Target = target
	m.intel.SetTarget(target)
	return m.Append(Event{Type: EventTypeTargetSet, Value: target})
}

func (m *Manager) UpdateKnowledge(update map[string]any) error {
	if m.meta.Knowledge == nil {
		m.meta.Knowledge = map[string]any{}
	}
	for k, v := range update {
		m.meta.Knowledge[k] = v
	}
	return m.Append(Event{Type: EventTypeKnowledgeUpdate, Knowledge: update})
}

// End appends the end-of-session marker. The log itself is never deleted
// except by explicit operator action.
func (m *Manager) End() error {
	return m.Append(Event{Type: EventTypeSessionEnd})
}

const (
	summaryPrefix = "[CONTEXT SUMMARY - Previous session findings]"
	summarySuffix = "[END SUMMARY - Continuing from here]"
)

// Compress irreversibly replaces all but the most recent keepRecent messages
// with one synthetic summary message and logs the break in continuity.
func (m *Manager) Compress(summary string, keepRecent int) (before, after int, err error) {
	before = len(m.messages)
	if before <= keepRecent {
		return before, before, nil
	}
	synthetic := UserTextMessage(fmt.Sprintf("%s\n\n%s\n\n%s", summaryPrefix, summary, summarySuffix))
	recent := m.messages[len(m.messages)-keepRecent:]
	m.messages = append([]Message{synthetic}, recent...)
	after = len(m.messages)
	err = m.Append(Event{
		Type:           EventTypeContextSummarized,
		Summary:        summary,
		MessagesBefore: before,
		MessagesAfter:  after,
	})
	return before, after, err
}

// Info describes one saved session for listings.
type Info struct {
	SessionID   string `json:"session_id"`
	CreatedAt   string `json:"created_at,omitempty"`
	ModelSource string `json:"model_source,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
}

// ListSessions scans the sessions directory, newest first. Corrupt logs are
// skipped, never fatal to the listing.
func ListSessions(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	infos := []Info{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(name, ".jsonl")
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		info := Info{
			SessionID: id,
			Size:      stat.Size(),
			Modified:  stat.ModTime().UTC().Format("2006-01-02 15:04:05"),
		}
		events, _, err := ReadEvents(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for _, event := range events {
			switch event.Type {
			case EventTypeSessionStart:
				info.CreatedAt = event.Timestamp
			case EventTypeModelSource:
				info.ModelSource = event.Value
			case EventTypeModelSelected:
				info.ModelID = event.ModelID
			}
			if info.CreatedAt != "" && info.ModelID != "" {
				break
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID > infos[j].SessionID })
	return infos, nil
}

// Delete removes a session log and its summary. Only reachable by explicit
// operator action.
func Delete(dir, id string) error {
	path := filepath.Join(dir, id+".jsonl")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete session: %w", err)
	}
	os.Remove(filepath.Join(dir, id+"_summary.json"))
	return nil
}

// Exists reports whether a session log is present on disk.
func Exists(dir, id string) bool {
	_, err := os.Stat(filepath.Join(dir, id+".jsonl"))
	return err == nil
}
