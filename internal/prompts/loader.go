package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

// Prompt modes.
const (
	ModeBasic    = "basic"
	ModeAdvanced = "advanced"
	ModeCustom   = "custom"
)

// Built-in prompts used when no file is on disk.
const (
	fallbackBasic = "You are a security assistant operating through a tool execution server. " +
		"Only request tool usage via tool_use blocks. " +
		"The operator must approve every tool execution. " +
		"Request only one tool at a time and wait for its output before proposing another. " +
		"After each tool result, explain findings and propose the next step " +
		"before waiting for the operator to proceed. " +
		"When you need operator input, end your response with " + session.UserInputMarker +
		" on its own line. Do not include it when requesting a tool."

	fallbackBasicGuided = "You are a security assistant helping with penetration testing. " +
		"The operator is running commands manually, so DO NOT use tool_use blocks. " +
		"When asked to perform a scan or test, suggest specific shell commands they should run. " +
		"Format your command suggestions clearly, for example:\n" +
		"  Command to run: nmap -sV -sC example.com\n\n" +
		"After suggesting a command, the operator will run it and paste the output. " +
		"Then analyze the results and suggest the next step. " +
		"Be specific about command-line flags and options. " +
		"Focus on security testing tools like nmap, nikto, sqlmap, nuclei, curl, etc. " +
		"Suggest one command at a time and wait for the operator to provide results."
)

// File names looked up under the prompts directory per mode.
const (
	fileBasic       = "basic.md"
	fileBasicGuided = "basic-guided.md"
	fileAdvanced    = "masterprompt.md"
)

// Loader resolves the system prompt for a mode, preferring files in its
// directory and falling back to the built-ins.
type Loader struct {
	dir string
	log *zap.Logger
}

func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, log: logger}
}

// Load returns the processed system prompt. Custom mode requires customFile
// and fails hard when it is missing; the other modes degrade to built-ins.
// Template variables are applied warn-not-fail: unresolved placeholders are
// logged and left in place.
func (l *Loader) Load(mode string, guided bool, customFile string, variables map[string]string) (string, error) {
	var text string
	switch mode {
	case ModeCustom:
		if customFile == "" {
			l.log.Warn("custom prompt mode requires a prompt file, falling back to basic")
			text = l.loadWithFallback(fileBasic, fallbackBasic, guided)
			break
		}
		raw, err := os.ReadFile(customFile)
		if err != nil {
			return "", fmt.Errorf("read custom prompt file: %w", err)
		}
		text = string(raw)
	case ModeAdvanced:
		text = l.loadWithFallback(fileAdvanced, fallbackBasic, guided)
	case ModeBasic, "":
		name := fileBasic
		if guided {
			name = fileBasicGuided
		}
		text = l.loadWithFallback(name, fallbackBasic, guided)
	default:
		return "", fmt.Errorf("unknown prompt mode %q", mode)
	}

	if len(variables) == 0 {
		return text, nil
	}
	if err := ValidateTemplate(text); err != nil {
		l.log.Warn("prompt template validation failed, using prompt as-is", zap.Error(err))
		return text, nil
	}
	applied, missing := Apply(text, variables)
	if len(missing) > 0 {
		l.log.Warn("prompt template variables not provided, placeholders left in place",
			zap.Strings("variables", missing))
	}
	return applied, nil
}

func (l *Loader) loadWithFallback(name, fallback string, guided bool) string {
	path := filepath.Join(l.dir, name)
	raw, err := os.ReadFile(path)
	if err == nil {
		return string(raw)
	}
	l.log.Warn("prompt file not readable, using built-in prompt",
		zap.String("path", path), zap.Error(err))
	if guided {
		return fallbackBasicGuided
	}
	return fallback
}

// ListAvailable names the prompt files present in the loader's directory.
func (l *Loader) ListAvailable() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".md"))
	}
	sort.Strings(names)
	return names
}

// Info describes one prompt mode for the /prompt display.
type Info struct {
	Mode        string
	Available   bool
	FilePath    string
	Description string
}

func (l *Loader) Describe(mode string) Info {
	info := Info{Mode: mode}
	switch mode {
	case ModeBasic:
		info.FilePath = filepath.Join(l.dir, fileBasic)
		info.Description = "Simple, concise prompt for tool-based mode"
	case ModeAdvanced:
		info.FilePath = filepath.Join(l.dir, fileAdvanced)
		info.Description = "Full OODA loop security assessment with knowledge graph"
	default:
		return info
	}
	_, err := os.Stat(info.FilePath)
	info.Available = err == nil
	return info
}
