// Package classifier decides whether a requested tool action may run
// unattended. It is the safety gate for autonomous execution: every action is
// classified as safe, needing operator approval, or forbidden outright.
//
// The package is intentionally dependency-light so it can sit between the
// conversation loop and the executor without introducing cycles.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Tier is the classification verdict for one action.
type Tier string

const (
	Safe          Tier = "SAFE"
	NeedsApproval Tier = "NEEDS_APPROVAL"
	Forbidden     Tier = "FORBIDDEN"
)

// destructivePatterns match commands that can damage a system. They are
// matched case-insensitively against the command string only.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\b.*(-rf|-r|-f)`),
	regexp.MustCompile(`(?i)\b(mkfs|dd)\b`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt)\b`),
	regexp.MustCompile(`(?i)\b(kill|pkill|killall)\b.*-9`),
	regexp.MustCompile(`(?i)>\s*/dev/`),
	regexp.MustCompile(`(?i)\bformat\b`),
	regexp.MustCompile(`(?i)\b(fdisk|parted)\b`),
}

// localFSPatterns match paths on the operator's own machine. Matched
// case-sensitively: /Users/ and /users/ are different paths.
var localFSPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/`),
	regexp.MustCompile(`/Users/`),
	regexp.MustCompile(`/root/`),
	regexp.MustCompile(`/etc/`),
	regexp.MustCompile(`/var/`),
	regexp.MustCompile(`/usr/`),
	regexp.MustCompile(`\$HOME`),
	regexp.MustCompile(`~/`),
	regexp.MustCompile(`\.\.`),
}

// riskyKeywords are substring checks for operations that are legitimate
// against an authorized target but should never run without a human deciding.
var riskyKeywords = []string{
	"drop table", "drop database", "truncate",
	"delete from", "--dump-all",
	"exploit", "payload",
	"reverse shell", "bind shell",
}

// Classifier holds the engagement scope and classifies actions against it.
// Not safe for concurrent use; the conversation loop is single-threaded.
type Classifier struct {
	scopeTargets     []string
	scopeDescription string
}

func New(scopeTargets []string, scopeDescription string) *Classifier {
	return &Classifier{
		scopeTargets:     append([]string(nil), scopeTargets...),
		scopeDescription: scopeDescription,
	}
}

// Classify returns the verdict for one tool invocation plus a human-readable
// reason. Rules apply in strict order: local destructive actions are forbidden
// unconditionally, then scope is enforced, then destructive-but-in-scope
// actions are held for approval.
//
// Only the command, target, and url parameters are inspected. Other parameters
// never carry executable content in the supported tool set.
func (c *Classifier) Classify(toolName string, input map[string]any) (Tier, string) {
	command := stringParam(input, "command")
	target := stringParam(input, "target")
	url := stringParam(input, "url")

	allTargets := strings.ToLower(command + " " + target + " " + url)

	if isLocalDestructive(command) {
		return Forbidden, "Destructive action on local filesystem"
	}
	if !c.inScope(allTargets) {
		return Forbidden, "Target is out of scope"
	}
	if isDestructive(command) {
		return NeedsApproval, "Destructive action requires approval"
	}
	return Safe, "Action is in scope and non-destructive"
}

// isLocalDestructive reports a destructive command aimed at the local
// filesystem. Both conditions must hold: a destructive pattern and a local
// path in the same command.
func isLocalDestructive(command string) bool {
	if command == "" {
		return false
	}
	for _, pattern := range destructivePatterns {
		if !pattern.MatchString(command) {
			continue
		}
		for _, fs := range localFSPatterns {
			if fs.MatchString(command) {
				return true
			}
		}
	}
	return false
}

func isDestructive(command string) bool {
	if command == "" {
		return false
	}
	for _, pattern := range destructivePatterns {
		if pattern.MatchString(command) {
			return true
		}
	}
	lower := strings.ToLower(command)
	for _, keyword := range riskyKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// inScope reports whether any configured scope target appears in the combined
// target string. An empty scope means everything passes; the caller is
// expected to warn the operator before starting unattended runs without one.
func (c *Classifier) inScope(allTargets string) bool {
	if len(c.scopeTargets) == 0 {
		return true
	}
	for _, scopeTarget := range c.scopeTargets {
		if strings.Contains(allTargets, strings.ToLower(scopeTarget)) {
			return true
		}
	}
	return false
}

// HasScope reports whether any scope targets are configured.
func (c *Classifier) HasScope() bool { return len(c.scopeTargets) > 0 }

// ScopeTargets returns a copy of the configured targets.
func (c *Classifier) ScopeTargets() []string {
	return append([]string(nil), c.scopeTargets...)
}

// AddScopeTarget adds a target to the scope. Adding an existing target or an
// empty string is a no-op.
func (c *Classifier) AddScopeTarget(target string) {
	target = strings.TrimSpace(target)
	if target == "" {
		return
	}
	for _, existing := range c.scopeTargets {
		if existing == target {
			return
		}
	}
	c.scopeTargets = append(c.scopeTargets, target)
}

// RemoveScopeTarget removes a target from the scope if present.
func (c *Classifier) RemoveScopeTarget(target string) {
	for i, existing := range c.scopeTargets {
		if existing == target {
			c.scopeTargets = append(c.scopeTargets[:i], c.scopeTargets[i+1:]...)
			return
		}
	}
}

// ClearScope removes all scope targets.
func (c *Classifier) ClearScope() { c.scopeTargets = nil }

// ScopeSummary renders the current scope for display.
func (c *Classifier) ScopeSummary() string {
	if len(c.scopeTargets) == 0 {
		return "No scope defined - all targets considered in scope"
	}
	lines := []string{"Current scope:"}
	if c.scopeDescription != "" {
		lines = append(lines, fmt.Sprintf("  Description: %s", c.scopeDescription))
	}
	lines = append(lines, fmt.Sprintf("  Targets: %s", strings.Join(c.scopeTargets, ", ")))
	return strings.Join(lines, "\n")
}

func stringParam(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	if value, ok := input[key].(string); ok {
		return value
	}
	return ""
}
