package worker

import (
	"context"
	"fmt"

	"github.com/clipscope/clipscope/internal/capability"
)

// Transcription converts the audio track of the active media into text.
type Transcription struct {
	*Base
}

func NewTranscription(media MediaContext, engine Transcriber) *Transcription {
	descriptor := capability.Descriptor{
		Capabilities: []string{
			"Audio transcription from video",
			"Speech-to-text conversion",
			"Subtitle generation",
		},
		Keywords: []string{
			"transcribe", "transcript", "transcription",
			"speech", "spoken", "audio",
			"subtitle", "subtitles", "captions",
			"what said", "what was said",
		},
		Categories: []capability.Category{capability.CategoryAudio, capability.CategoryText},
		ExampleTasks: []string{
			"Transcribe the clip",
			"What was said in the video?",
			"Generate subtitles for this footage",
		},
		Priority: 8,
	}

	tools := []Tool{
		{
			Name:        "video_to_transcript",
			Description: "Run speech-to-text over the media's audio track and return the full transcript.",
			LongRunning: true,
			NeedsMedia:  true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				path := args["media_path"]
				if path == "" {
					return ToolOutput{}, fmt.Errorf("no media loaded; load a video first")
				}
				text, err := engine.Transcribe(ctx, path)
				if err != nil {
					return ToolOutput{}, fmt.Errorf("transcribe %s: %w", path, err)
				}
				return ToolOutput{Text: text}, nil
			},
		},
		{
			Name:        "transcript_preview",
			Description: "Return the opening portion of the transcript for a quick look.",
			LongRunning: true,
			NeedsMedia:  true,
			Invoke: func(ctx context.Context, args map[string]string) (ToolOutput, error) {
				path := args["media_path"]
				if path == "" {
					return ToolOutput{}, fmt.Errorf("no media loaded; load a video first")
				}
				text, err := engine.Transcribe(ctx, path)
				if err != nil {
					return ToolOutput{}, fmt.Errorf("transcribe %s: %w", path, err)
				}
				const previewLen = 400
				if len(text) > previewLen {
					text = text[:previewLen] + "..."
				}
				return ToolOutput{Text: text}, nil
			},
		},
	}

	return &Transcription{
		Base: NewBase("transcription", descriptor, tools, []string{"transcription", "speech_to_text"}, media),
	}
}
