package llm

import "strings"

// ExtractJSON returns the first top-level JSON object or array embedded in
// text, tolerating prose around it. Returns "" when none is present.
func ExtractJSON(text string) string {
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	start, closer := objStart, byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return ""
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

// ExtractMermaid pulls the diagram body out of a model response: the fenced
// mermaid block when present, else everything from the first header line,
// else the trimmed response as-is.
func ExtractMermaid(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	start, end := 0, len(lines)
	found := false
	for i, line := range lines {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "```") {
			if !found {
				start = i + 1
				found = true
				continue
			}
			end = i
			break
		}
		if !found && (strings.HasPrefix(s, "flowchart") || strings.HasPrefix(s, "graph")) {
			start = i
			found = true
		}
	}

	body := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	// a fence may still wrap a header-first body
	body = strings.TrimPrefix(body, "```mermaid\n")
	body = strings.TrimSuffix(body, "\n```")
	return body
}

// CleanMarkdown strips a wrapping code fence some models add around prose.
func CleanMarkdown(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")
	if len(lines) < 2 {
		return t
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
