package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mtzanidakis/storecrew/internal/schema"
)

var (
	actionRe = regexp.MustCompile(`(?m)^\s*Action:\s*(.+?)\s*$`)
	inputRe  = regexp.MustCompile(`(?s)Action Input:\s*(.*)$`)
	finalRe  = regexp.MustCompile(`(?s)Final Answer:\s*(.*)$`)
)

// step is one parsed model turn: either a tool call or a final answer.
type step struct {
	final  bool
	answer string
	tool   string
	input  json.RawMessage
}

// parseStep reads the model's reply. Text with neither marker is taken
// as the final answer. When both appear, the earlier marker wins.
func parseStep(text string) step {
	text = strings.TrimSpace(text)

	finalIdx := -1
	if loc := finalRe.FindStringIndex(text); loc != nil {
		finalIdx = loc[0]
	}
	actionLoc := actionRe.FindStringSubmatchIndex(text)

	if actionLoc == nil || (finalIdx >= 0 && finalIdx < actionLoc[0]) {
		if finalIdx < 0 {
			return step{final: true, answer: text}
		}
		m := finalRe.FindStringSubmatch(text)
		return step{final: true, answer: strings.TrimSpace(m[1])}
	}

	name := strings.Trim(text[actionLoc[2]:actionLoc[3]], "`'\" ")
	rest := text[actionLoc[1]:]
	if finalIdx > actionLoc[0] {
		rest = text[actionLoc[1]:finalIdx]
	}

	input := "{}"
	if m := inputRe.FindStringSubmatch(rest); m != nil {
		input = actionInput(m[1])
	}
	return step{tool: name, input: json.RawMessage(input)}
}

func actionInput(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "Observation:"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	if raw == "" {
		return "{}"
	}
	if doc, ok := schema.ExtractJSON(raw); ok {
		return doc
	}
	return raw
}
