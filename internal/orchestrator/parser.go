package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanStep is one element of the planner's global plan output.
type PlanStep struct {
	Worker string   `json:"worker"`
	Tools  []string `json:"tools"`
}

// ToolsGate is the structured verdict of the tools-needed gate.
type ToolsGate struct {
	ShouldUseTools bool    `json:"should_use_tools"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// firstJSONValue extracts the first balanced JSON value delimited by open
// and close from free-form model output. Models wrap JSON in prose and
// code fences, so a plain Unmarshal of the whole response rarely works.
func firstJSONValue(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseWorkerList parses a selection response into worker names.
func ParseWorkerList(content string) ([]string, error) {
	raw, ok := firstJSONValue(content, '[', ']')
	if !ok {
		return nil, fmt.Errorf("selection parse: no JSON array in response")
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("selection parse: %w", err)
	}
	return names, nil
}

// ParsePlanSteps parses a global-plan response into ordered steps.
func ParsePlanSteps(content string) ([]PlanStep, error) {
	raw, ok := firstJSONValue(content, '[', ']')
	if !ok {
		return nil, fmt.Errorf("plan parse: no JSON array in response")
	}
	var steps []PlanStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("plan parse: %w", err)
	}
	return steps, nil
}

// ParseToolsGate parses a gate response into a structured verdict.
func ParseToolsGate(content string) (ToolsGate, error) {
	raw, ok := firstJSONValue(content, '{', '}')
	if !ok {
		return ToolsGate{}, fmt.Errorf("gate parse: no JSON object in response")
	}
	var gate ToolsGate
	if err := json.Unmarshal([]byte(raw), &gate); err != nil {
		return ToolsGate{}, fmt.Errorf("gate parse: %w", err)
	}
	return gate, nil
}
