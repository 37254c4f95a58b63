package gateway

import "strings"

// BuildCommand turns a tool invocation into the command line the server
// executes. A literal command parameter is used verbatim; otherwise the
// command is assembled from per-tool conventions, falling back to
// "tool target options".
func BuildCommand(toolName string, params map[string]any) string {
	if command := strings.TrimSpace(str(params, "command")); command != "" {
		return command
	}

	target := strings.TrimSpace(str(params, "target"))
	options := strings.TrimSpace(str(params, "options"))

	switch strings.ToLower(toolName) {
	case "nikto":
		host := firstOf(params, "host", "url")
		if host == "" {
			host = target
		}
		pieces := []string{toolName}
		if host != "" && !strings.Contains(options, "-h") && !strings.Contains(options, "-host") {
			pieces = append(pieces, "-h", host)
		}
		return join(pieces, options)

	case "sqlmap":
		url := firstOf(params, "url")
		if url == "" {
			url = target
		}
		pieces := []string{toolName}
		if url != "" {
			pieces = append(pieces, "-u", url)
		}
		if boolParam(params, "batch") && !strings.Contains(options, "--batch") {
			pieces = append(pieces, "--batch")
		}
		if boolParam(params, "crawl") {
			pieces = append(pieces, "--crawl=1")
		}
		return join(pieces, options)

	case "nuclei":
		url := firstOf(params, "url")
		if url == "" {
			url = target
		}
		pieces := []string{toolName}
		if url != "" {
			pieces = append(pieces, "-u", url)
		}
		if templates := strings.TrimSpace(str(params, "templates")); templates != "" {
			pieces = append(pieces, "-t", templates)
		}
		return join(pieces, options)

	case "wafw00f":
		host := firstOf(params, "host", "url")
		if host == "" {
			host = target
		}
		pieces := []string{toolName}
		if host != "" {
			pieces = append(pieces, host)
		}
		return join(pieces, options)
	}

	pieces := []string{toolName}
	if target != "" {
		pieces = append(pieces, target)
	}
	return join(pieces, options)
}

func join(pieces []string, options string) string {
	if options != "" {
		pieces = append(pieces, options)
	}
	return strings.TrimSpace(strings.Join(pieces, " "))
}

func str(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}

func firstOf(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(str(params, key)); value != "" {
			return value
		}
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	if params == nil {
		return false
	}
	value, ok := params[key].(bool)
	return ok && value
}
