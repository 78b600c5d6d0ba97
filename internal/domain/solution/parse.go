package solution

import (
	"bufio"
	"strings"
)

// DefaultPath is the path assigned when a response contains code but no
// usable file name.
const DefaultPath = "solution.patch"

// Parse extracts a change-set and a free-text explanation from a raw solver
// response. Three formats are tried in order:
//
//  1. A tagged block: <changes> containing one or more
//     <file path="..." action="create|modify|delete"> elements whose body is
//     the full new file content. Text outside the block is the explanation.
//  2. "File: <path>" lines each followed by a fenced code block.
//  3. A single fenced code block, wrapped as one create under DefaultPath.
//
// A nil change slice means the response yielded nothing usable and the
// solver attempt should be treated as failed.
func Parse(raw string) ([]FileChange, string) {
	if changes, expl := parseTagged(raw); len(changes) > 0 {
		return changes, expl
	}
	if changes, expl := parseFileHeaders(raw); len(changes) > 0 {
		return changes, expl
	}
	return parseSingleBlock(raw)
}

// parseTagged handles the primary <changes>...</changes> format.
func parseTagged(raw string) ([]FileChange, string) {
	open := strings.Index(raw, "<changes>")
	if open < 0 {
		return nil, ""
	}
	close := strings.Index(raw[open:], "</changes>")
	if close < 0 {
		return nil, ""
	}
	close += open

	block := raw[open+len("<changes>") : close]
	explanation := strings.TrimSpace(raw[:open] + raw[close+len("</changes>"):])

	var changes []FileChange
	rest := block
	for {
		start := strings.Index(rest, "<file")
		if start < 0 {
			break
		}
		tagEnd := strings.Index(rest[start:], ">")
		if tagEnd < 0 {
			break
		}
		tagEnd += start
		end := strings.Index(rest[tagEnd:], "</file>")
		if end < 0 {
			break
		}
		end += tagEnd

		attrs := rest[start+len("<file") : tagEnd]
		content := strings.Trim(rest[tagEnd+1:end], "\n")
		rest = rest[end+len("</file>"):]

		path := attrValue(attrs, "path")
		if path == "" {
			continue
		}
		action := Action(attrValue(attrs, "action"))
		switch action {
		case ActionCreate, ActionModify, ActionDelete:
		default:
			action = ActionModify
		}
		changes = append(changes, FileChange{Path: path, Action: action, Content: content})
	}
	return changes, explanation
}

// attrValue extracts a double-quoted attribute value from a tag attribute list.
func attrValue(attrs, name string) string {
	idx := strings.Index(attrs, name+`="`)
	if idx < 0 {
		return ""
	}
	rest := attrs[idx+len(name)+2:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// parseFileHeaders handles the secondary "File: <path>" + fenced block format.
func parseFileHeaders(raw string) ([]FileChange, string) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		changes   []FileChange
		explLines []string
		path      string
		inFence   bool
		body      []string
	)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				if path != "" {
					changes = append(changes, FileChange{
						Path:    path,
						Action:  ActionModify,
						Content: strings.Join(body, "\n"),
					})
					path = ""
				}
				body = nil
				continue
			}
			body = append(body, line)
			continue
		}

		if strings.HasPrefix(trimmed, "File:") {
			path = strings.TrimSpace(strings.TrimPrefix(trimmed, "File:"))
			path = strings.Trim(path, "`")
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			inFence = true
			body = nil
			continue
		}
		if trimmed != "" {
			explLines = append(explLines, trimmed)
		}
	}
	return changes, strings.Join(explLines, "\n")
}

// parseSingleBlock wraps a lone fenced code block as one create action.
func parseSingleBlock(raw string) ([]FileChange, string) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return nil, ""
	}
	// Skip the fence line itself (may carry a language hint).
	nl := strings.Index(raw[start:], "\n")
	if nl < 0 {
		return nil, ""
	}
	bodyStart := start + nl + 1
	end := strings.Index(raw[bodyStart:], "```")
	if end < 0 {
		return nil, ""
	}

	content := strings.Trim(raw[bodyStart:bodyStart+end], "\n")
	if content == "" {
		return nil, ""
	}
	explanation := strings.TrimSpace(raw[:start])
	return []FileChange{{Path: DefaultPath, Action: ActionCreate, Content: content}}, explanation
}
