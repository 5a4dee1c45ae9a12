package worker

import (
	"context"
	"fmt"

	"github.com/clipscope/clipscope/internal/capability"
)

// Vision analyzes the visual content of the active media.
type Vision struct {
	*Base
}

func NewVision(media MediaContext, engine Detector) *Vision {
	descriptor := capability.Descriptor{
		Capabilities: []string{
			"Object detection in videos",
			"Visual content analysis",
			"Scene understanding",
		},
		Keywords: []string{
			"detect", "detection", "identify", "find", "locate",
			"object", "objects", "person", "people",
			"car", "vehicle", "animal",
			"what's in", "show me", "track",
		},
		Categories: []capability.Category{capability.CategoryVision, capability.CategoryAnalysis},
		ExampleTasks: []string{
			"Detect all objects in the video",
			"Are there any people in this clip?",
			"What's in the footage?",
		},
		Priority: 7,
	}

	mediaArg := func(args map[string]string) (string, error) {
		path := args["media_path"]
		if path == "" {
			return "", fmt.Errorf("no media loaded; load a video first")
		}
		return path, nil
	}

	tools := []Tool{
		{
			Name:        "detect_objects",
			Description: "Run object detection across sampled frames and return the detected entities.",
			LongRunning: true,
			NeedsMedia:  true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				path, err := mediaArg(args)
				if err != nil {
					return ToolOutput{}, err
				}
				text, err := engine.DetectObjects(ctx, path)
				if err != nil {
					return ToolOutput{}, fmt.Errorf("detect objects in %s: %w", path, err)
				}
				return ToolOutput{Text: text}, nil
			},
		},
		{
			Name:        "describe_scene",
			Description: "Produce a narrative description of the media's visual content.",
			LongRunning: true,
			NeedsMedia:  true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				path, err := mediaArg(args)
				if err != nil {
					return ToolOutput{}, err
				}
				text, err := engine.DescribeScene(ctx, path)
				if err != nil {
					return ToolOutput{}, fmt.Errorf("describe scene in %s: %w", path, err)
				}
				return ToolOutput{Text: text}, nil
			},
		},
	}

	return &Vision{
		Base: NewBase("vision", descriptor, tools, []string{"vision", "object_detection"}, media),
	}
}
