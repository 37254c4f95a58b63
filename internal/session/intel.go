package session

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Finding categories accepted by Intel.AddFinding.
const (
	FindingPort          = "port"
	FindingService       = "service"
	FindingSubdomain     = "subdomain"
	FindingIP            = "ip"
	FindingTechnology    = "technology"
	FindingCredential    = "credential"
	FindingFile          = "file"
	FindingVulnerability = "vulnerability"
)

type ToolAttempt struct {
	Tool      string `json:"tool"`
	Command   string `json:"command,omitempty"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

type IntelData struct {
	SessionID       string        `json:"session_id"`
	Target          string        `json:"target,omitempty"`
	OpenPorts       []string      `json:"open_ports,omitempty"`
	Services        []string      `json:"services,omitempty"`
	Subdomains      []string      `json:"subdomains,omitempty"`
	IPs             []string      `json:"ips,omitempty"`
	Technologies    []string      `json:"technologies,omitempty"`
	Credentials     []string      `json:"credentials,omitempty"`
	Files           []string      `json:"files,omitempty"`
	Vulnerabilities []string      `json:"vulnerabilities,omitempty"`
	ToolAttempts    []ToolAttempt `json:"tool_attempts,omitempty"`
	Notes           []string      `json:"notes,omitempty"`
	UpdatedAt       string        `json:"updated_at,omitempty"`
}

// Intel is the session intelligence summary: a mutable, deduplicated index of
// findings kept alongside the event log. Unlike the log it is not append-only;
// every mutation rewrites the whole document atomically (last write wins).
type Intel struct {
	path string
	data IntelData
	now  func() time.Time
}

func NewIntel(path, sessionID string) *Intel {
	return &Intel{
		path: path,
		data: IntelData{SessionID: sessionID},
		now:  time.Now,
	}
}

// LoadIntel reads an existing summary document, or starts a fresh one when
// none is on disk or the document is unreadable.
func LoadIntel(path, sessionID string) *Intel {
	intel := NewIntel(path, sessionID)
	raw, err := os.ReadFile(path)
	if err != nil {
		return intel
	}
	var data IntelData
	if err := json.Unmarshal(raw, &data); err != nil {
		return intel
	}
	if data.SessionID == "" {
		data.SessionID = sessionID
	}
	intel.data = data
	return intel
}

func (i *Intel) Data() IntelData { return i.data }

func (i *Intel) SetTarget(target string) error {
	i.data.Target = target
	return i.persist()
}

// AddFinding records one deduplicated finding under the given category.
// Adding a value that is already present is a no-op (idempotent updates make
// at-least-once persistence safe).
func (i *Intel) AddFinding(category, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("finding value is empty")
	}
	var bucket *[]string
	switch category {
	case FindingPort:
		bucket = &i.data.OpenPorts
	case FindingService:
		bucket = &i.data.Services
	case FindingSubdomain:
		bucket = &i.data.Subdomains
	case FindingIP:
		bucket = &i.data.IPs
	case FindingTechnology:
		bucket = &i.data.Technologies
	case FindingCredential:
		bucket = &i.data.Credentials
	case FindingFile:
		bucket = &i.data.Files
	case FindingVulnerability:
		bucket = &i.data.Vulnerabilities
	default:
		return fmt.Errorf("unknown finding category %q", category)
	}
	for _, existing := range *bucket {
		if strings.EqualFold(existing, value) {
			return nil
		}
	}
	*bucket = append(*bucket, value)
	return i.persist()
}

func (i *Intel) AddNote(note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("note is empty")
	}
	i.data.Notes = append(i.data.Notes, note)
	return i.persist()
}

func (i *Intel) AddToolAttempt(tool, command string, success bool) error {
	i.data.ToolAttempts = append(i.data.ToolAttempts, ToolAttempt{
		Tool:      tool,
		Command:   command,
		Success:   success,
		Timestamp: timestamp(i.now),
	})
	return i.persist()
}

func (i *Intel) persist() error {
	i.data.UpdatedAt = timestamp(i.now)
	return WriteJSONAtomic(i.path, i.data)
}

// Format renders the summary for the /summary command.
func (i *Intel) Format() string {
	d := i.data
	lines := []string{fmt.Sprintf("Session intelligence summary (%s)", d.SessionID)}
	if d.Target != "" {
		lines = append(lines, fmt.Sprintf("  Target: %s", d.Target))
	}
	section := func(label string, values []string) {
		if len(values) > 0 {
			lines = append(lines, fmt.Sprintf("  %s: %s", label, strings.Join(values, ", ")))
		}
	}
	section("Open ports", d.OpenPorts)
	section("Services", d.Services)
	section("Subdomains", d.Subdomains)
	section("IPs", d.IPs)
	section("Technologies", d.Technologies)
	section("Credentials", d.Credentials)
	section("Files", d.Files)
	section("Vulnerabilities", d.Vulnerabilities)
	if len(d.ToolAttempts) > 0 {
		lines = append(lines, fmt.Sprintf("  Tool attempts: %d", len(d.ToolAttempts)))
		for _, attempt := range d.ToolAttempts {
			status := "ok"
			if !attempt.Success {
				status = "failed"
			}
			lines = append(lines, fmt.Sprintf("    - %s [%s] %s", attempt.Tool, status, attempt.Command))
		}
	}
	for _, note := range d.Notes {
		lines = append(lines, fmt.Sprintf("  Note: %s", note))
	}
	if len(lines) == 1 {
		lines = append(lines, "  (no findings recorded)")
	}
	return strings.Join(lines, "\n")
}
