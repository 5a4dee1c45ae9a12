package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipscope/clipscope/internal/capability"
	"github.com/clipscope/clipscope/internal/provider"
)

// ReportSink persists a generated document and returns its path.
type ReportSink interface {
	Save(name, content string) (string, error)
	List() ([]string, error)
}

// Report drafts session summary documents with the chat model and writes
// them to the output store.
type Report struct {
	*Base
}

func NewReport(media MediaContext, chat provider.Client, sink ReportSink) *Report {
	descriptor := capability.Descriptor{
		Capabilities: []string{
			"Report generation",
			"Session summary documents",
			"Structured narrative reports",
		},
		Keywords: []string{
			"report", "document", "summary report",
			"export report", "generate report", "create report",
		},
		Categories: []capability.Category{capability.CategoryGeneration, capability.CategoryText},
		ExampleTasks: []string{
			"Generate a report of this analysis",
			"Create a summary document for the video",
		},
		Priority: 6,
	}

	tools := []Tool{
		{
			Name:         "generate_report",
			Description:  "Draft a structured report for the request and save it to the reports directory.",
			NeedsRequest: true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				request := args["request"]
				prompt := fmt.Sprintf(
					"Write a concise, well-structured analysis report for the following request. "+
						"Use a title, short sections, and plain language.\n\nRequest: %s", request)
				resp, err := chat.Complete(ctx, &provider.CompletionRequest{
					Messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
				})
				if err != nil {
					return ToolOutput{GenerativeCalls: 1}, fmt.Errorf("draft report: %w", err)
				}
				path, err := sink.Save("report", resp.Content)
				if err != nil {
					return ToolOutput{GenerativeCalls: 1}, fmt.Errorf("save report: %w", err)
				}
				return ToolOutput{
					Text:            fmt.Sprintf("report saved to %s", path),
					GenerativeCalls: 1,
				}, nil
			},
		},
		{
			Name:        "list_reports",
			Description: "List previously generated report files.",
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				names, err := sink.List()
				if err != nil {
					return ToolOutput{}, fmt.Errorf("list reports: %w", err)
				}
				if len(names) == 0 {
					return ToolOutput{Text: "no reports generated yet"}, nil
				}
				return ToolOutput{Text: strings.Join(names, "\n")}, nil
			},
		},
	}

	return &Report{
		Base: NewBase("report", descriptor, tools, []string{"report", "generation"}, media),
	}
}
