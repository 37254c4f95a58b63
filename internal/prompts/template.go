// Package prompts loads system prompts and fills their template variables.
package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// templatePattern matches {{VARIABLE_NAME}} placeholders. Names are uppercase
// with underscores only.
var templatePattern = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

var anyBracePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Apply replaces placeholders with the provided values and returns the names
// of placeholders with no value. Missing variables stay in the text; a prompt
// with a visible placeholder is more debuggable than a silently mangled one.
func Apply(template string, variables map[string]string) (string, []string) {
	missing := map[string]struct{}{}
	result := template
	for _, match := range templatePattern.FindAllStringSubmatch(template, -1) {
		name := match[1]
		value, ok := variables[name]
		if !ok {
			missing[name] = struct{}{}
			continue
		}
		result = strings.ReplaceAll(result, match[0], value)
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return result, names
}

// ValidateTemplate checks placeholder syntax: balanced braces and legal
// variable names.
func ValidateTemplate(template string) error {
	open := strings.Count(template, "{{")
	closed := strings.Count(template, "}}")
	if open != closed {
		return fmt.Errorf("mismatched template braces ({{ %d vs }} %d)", open, closed)
	}
	valid := templatePattern.FindAllStringSubmatch(template, -1)
	all := anyBracePattern.FindAllStringSubmatch(template, -1)
	if len(valid) != len(all) {
		validNames := map[string]struct{}{}
		for _, m := range valid {
			validNames[m[1]] = struct{}{}
		}
		bad := []string{}
		for _, m := range all {
			if _, ok := validNames[m[1]]; !ok {
				bad = append(bad, m[1])
			}
		}
		return fmt.Errorf("invalid template variable names: %s", strings.Join(bad, ", "))
	}
	return nil
}

// ExtractVariables lists the placeholder names a template uses.
func ExtractVariables(template string) []string {
	seen := map[string]struct{}{}
	names := []string{}
	for _, match := range templatePattern.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		names = append(names, match[1])
	}
	sort.Strings(names)
	return names
}

// DefaultVariables builds the standard variable set. Empty values are
// omitted so their placeholders surface as missing rather than blank.
func DefaultVariables(target, sessionID, modelID string) map[string]string {
	variables := map[string]string{
		"DATE": time.Now().Format("2006-01-02"),
	}
	if target != "" {
		variables["TARGET"] = target
	}
	if sessionID != "" {
		variables["SESSION_ID"] = sessionID
	}
	if modelID != "" {
		variables["MODEL_ID"] = modelID
	}
	return variables
}
