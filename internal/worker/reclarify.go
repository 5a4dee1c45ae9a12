package worker

import (
	"context"
	"fmt"

	"github.com/clipscope/clipscope/internal/capability"
	"github.com/clipscope/clipscope/internal/provider"
)

// ReclarifyName is the designated fallback worker that asks the user for
// missing information instead of performing specialized processing.
const ReclarifyName = "reclarify"

// Reclarify handles ambiguous or under-specified requests by asking
// follow-up questions or replying conversationally.
type Reclarify struct {
	*Base
}

func NewReclarify(media MediaContext, chat provider.Client) *Reclarify {
	descriptor := capability.Descriptor{
		Capabilities: []string{
			"Clarify ambiguous requests",
			"General conversation and guidance",
			"Ask for missing inputs",
		},
		Keywords: []string{
			"clarify", "clarification", "ask", "question", "help", "explain",
			"what", "how", "why", "chat", "talk",
		},
		Categories: []capability.Category{capability.CategoryText},
		ExampleTasks: []string{
			"I'm not sure what I need",
			"Can you help me decide what to do?",
		},
		Priority: 2,
	}

	tools := []Tool{
		{
			Name:         "reclarify_prompt",
			Description:  "Ask the user a focused follow-up question about an ambiguous request.",
			NeedsRequest: true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				request := args["request"]
				if request == "" {
					return ToolOutput{Text: "Could you tell me more about what you'd like to do?"}, nil
				}
				return ToolOutput{Text: fmt.Sprintf(
					"I want to make sure I understand %q correctly. Could you describe what outcome you're looking for, such as a transcript, an object analysis, or a report?",
					request)}, nil
			},
		},
		{
			Name:         "ask_missing_media",
			Description:  "Ask the user to load a video when the request needs one and none is present.",
			NeedsRequest: true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				return ToolOutput{Text: "That request needs a video to work on, but none is loaded yet. Please load a clip and ask again."}, nil
			},
		},
		{
			Name:         "chat_normally",
			Description:  "Reply conversationally when no specialized processing is needed.",
			NeedsRequest: true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				resp, err := chat.Complete(ctx, &provider.CompletionRequest{
					Messages: []provider.Message{{Role: provider.RoleUser, Content: args["request"]}},
				})
				if err != nil {
					return ToolOutput{GenerativeCalls: 1}, fmt.Errorf("chat reply: %w", err)
				}
				return ToolOutput{Text: resp.Content, GenerativeCalls: 1}, nil
			},
		},
	}

	return &Reclarify{
		Base: NewBase(ReclarifyName, descriptor, tools, []string{"chat", "clarification"}, media),
	}
}
