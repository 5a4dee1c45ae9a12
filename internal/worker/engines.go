package worker

import (
	"context"
	"path/filepath"
)

// Transcriber produces a transcript for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
}

// Detector analyzes the visual content of a media file.
type Detector interface {
	DetectObjects(ctx context.Context, mediaPath string) (string, error)
	DescribeScene(ctx context.Context, mediaPath string) (string, error)
}

// ScriptEngine implements the Transcriber and Detector contracts by
// delegating to Lua scripts in a directory (transcribe.lua,
// detect_objects.lua, describe_scene.lua). This is the seam where real
// speech-to-text and vision engines plug in; scripted stand-ins keep the
// orchestration path exercisable without them.
type ScriptEngine struct {
	dir string
}

func NewScriptEngine(dir string) *ScriptEngine {
	return &ScriptEngine{dir: dir}
}

func (e *ScriptEngine) run(ctx context.Context, script, mediaPath string) (string, error) {
	invoke := LuaInvoker(filepath.Join(e.dir, script))
	out, err := invoke(ctx, map[string]string{"media_path": mediaPath})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (e *ScriptEngine) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	return e.run(ctx, "transcribe.lua", mediaPath)
}

func (e *ScriptEngine) DetectObjects(ctx context.Context, mediaPath string) (string, error) {
	return e.run(ctx, "detect_objects.lua", mediaPath)
}

func (e *ScriptEngine) DescribeScene(ctx context.Context, mediaPath string) (string, error) {
	return e.run(ctx, "describe_scene.lua", mediaPath)
}
