package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

func selectionPrompt(workerLines []string, names []string, request string) string {
	return fmt.Sprintf(`You are an orchestration AI that analyzes user requests and selects appropriate workers.

Available workers: %s

Worker capabilities:
%s

User request: %s

Task: Select which workers are needed for this request. Consider:
- Vision tasks (video/image analysis) -> vision
- Audio tasks (transcription, speech) -> transcription
- Document creation (reports, summaries saved to disk) -> report

Respond with ONLY a JSON array of worker names.
Example: ["vision", "transcription"]`,
		strings.Join(names, ", "), strings.Join(workerLines, "\n"), request)
}

func gatePrompt(request string, mediaPresent bool) string {
	return fmt.Sprintf(`You are a decision-making assistant determining whether external tools are required.

User request: %s
Media present: %t

Decision goal: Should we execute any specialized tools (e.g., vision, transcription), or is a conversational answer sufficient without running tools?

Guidance:
- If the user asks to analyze, detect, transcribe, extract, generate files, or otherwise process media, prefer tools.
- If the user asks conceptual questions, follow-ups, clarifications, or general chat, prefer no tools.
- If the request is ambiguous or lacks a concrete actionable task, prefer no tools and suggest a clarification.

Respond with ONLY a compact JSON object with a confidence measure (0..1):
{"should_use_tools": true|false, "confidence": 0.0, "reason": "one short sentence"}`,
		request, mediaPresent)
}

func globalPlanPrompt(catalogueJSON string, mediaPresent bool, request string) string {
	return fmt.Sprintf(`You are an orchestration AI. Plan a minimal, ordered sequence of worker/tool steps to satisfy the user's request.

Available workers and tools (JSON, VALID VALUES ONLY):
%s

Media present: %t
User request: %s

STRICT RULES:
- Use ONLY worker names and tool names that appear in the JSON above.
- Do NOT invent new tools; any tool not in the list will be ignored.
- If a step has no applicable valid tools, omit that step.
- Output MUST be a pure JSON array (no prose, no comments).

Instructions:
- Choose the fewest steps that satisfy the request.
- Prefer running prerequisites (e.g., transcription, detection) before report generation if needed.

Respond with ONLY a JSON array, where each element has:
  {"worker": "worker_name", "tools": ["tool1", "tool2"]}

Example:
[
  {"worker": "transcription", "tools": ["video_to_transcript"]},
  {"worker": "vision", "tools": ["detect_objects"]},
  {"worker": "report", "tools": ["generate_report"]}
]`, catalogueJSON, mediaPresent, request)
}

func workerPlanPrompt(workerName string, toolNames []string, toolDescriptions map[string]string, request, role string) string {
	descs := make([]string, 0, len(toolNames))
	for _, name := range toolNames {
		descs = append(descs, fmt.Sprintf("- %s: %s", name, toolDescriptions[name]))
	}
	return fmt.Sprintf(`You are planning tool execution for the %s worker.

Available tools for %s (VALID NAMES):
%s

Tool descriptions:
%s

User request: %s
Worker role: %s

STRICT RULES:
- Select ONLY from the VALID tool names listed above; do not invent new names.
- If none of the valid tools apply, respond with an empty list: []
- Output MUST be a JSON array (no prose, no explanations).

Respond with ONLY a JSON array of tool names in execution order.`,
		workerName, workerName, strings.Join(toolNames, ", "), strings.Join(descs, "\n"), request, role)
}

func synthesisPrompt(request, resultsJSON string) string {
	return fmt.Sprintf(`The user asked: "%s"

I have completed the analysis with the following results:
%s

Please provide a helpful, conversational response to the user that:
1. Directly answers their question
2. Summarizes the key findings in plain language
3. Is friendly and easy to understand
4. Focuses on what the user actually cares about

Response:`, request, resultsJSON)
}

func polishPrompt(request, draft string) string {
	return fmt.Sprintf(`Original user request: "%s"

Generated response: "%s"

Please polish this response to make it:
1. Well-formatted and easy to read
2. Professional yet friendly
3. Complete and helpful
4. Properly structured with clear sections if needed

Final response:`, request, draft)
}

const correctiveSuffix = "\nPrevious output invalid: %v. Regenerate valid JSON."

// clarificationMessage renders the terminal clarification answer listing
// what the registered workers can actually do.
func clarificationMessage(request string, capabilities map[string][]string, order []string) string {
	summary := capabilitySummary(capabilities, order)
	return fmt.Sprintf(`I can only help with media-analysis workflows handled by the registered workers.

Your latest request was: "%s"

Available workers and focus areas:
%s

Please rephrase your question so that it clearly maps to one of these capabilities.
For example:
- "Detect objects in the uploaded video."
- "Generate a transcript for my clip."
- "Summarize what happens in the video I just uploaded."`, request, summary)
}

func capabilitySummary(capabilities map[string][]string, order []string) string {
	if len(capabilities) == 0 {
		return "- No specialized workers are currently registered."
	}
	names := order
	if len(names) == 0 {
		for name := range capabilities {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	var lines []string
	for _, name := range names {
		caps, ok := capabilities[name]
		if !ok {
			continue
		}
		head := caps
		if len(head) > 3 {
			head = head[:3]
		}
		summary := strings.Join(head, ", ")
		if summary == "" {
			summary = "No documented capabilities"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", displayName(name), summary))
	}
	if len(lines) == 0 {
		return "- No specialized workers are currently registered."
	}
	return strings.Join(lines, "\n")
}

func displayName(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
