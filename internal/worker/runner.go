package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clipscope/clipscope/internal/capability"
)

// ErrToolTimeout marks a long-running tool that exceeded its isolated
// hard timeout.
var ErrToolTimeout = errors.New("tool timed out")

// Base implements the shared tool-sequence execution loop. Concrete
// workers embed it and supply their catalogue.
type Base struct {
	name       string
	descriptor capability.Descriptor
	tools      []Tool
	taskTypes  map[string]bool
	media      MediaContext // may be nil
}

func NewBase(name string, descriptor capability.Descriptor, tools []Tool, taskTypes []string, media MediaContext) *Base {
	types := make(map[string]bool, len(taskTypes))
	for _, t := range taskTypes {
		types[t] = true
	}
	return &Base{
		name:       name,
		descriptor: descriptor,
		tools:      tools,
		taskTypes:  types,
		media:      media,
	}
}

func (b *Base) Name() string                       { return b.name }
func (b *Base) Descriptor() capability.Descriptor  { return b.descriptor }
func (b *Base) Tools() []Tool                      { return b.tools }
func (b *Base) CanHandle(taskType string) bool     { return b.taskTypes[taskType] }

// Process runs the planned tool sequence under the given budget. A tool
// error or timeout is recorded as a message and the next tool still runs;
// an exhausted budget skips the remaining tools. Process itself never fails.
func (b *Base) Process(ctx context.Context, task Task, plan []string, budget time.Duration) Result {
	deadline := time.Now().Add(budget)
	byName := make(map[string]Tool, len(b.tools))
	for _, t := range b.tools {
		byName[t.Name] = t
	}

	var messages []string
	calls := 0
	timeouts := 0

	for _, name := range plan {
		tool, ok := byName[name]
		if !ok {
			log.Printf("worker %s: tool %q not found", b.name, name)
			messages = append(messages, fmt.Sprintf("Tool %q is not available.", name))
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Printf("worker %s: time budget exhausted before %q, skipping remaining tools", b.name, name)
			messages = append(messages, fmt.Sprintf("Time budget exhausted for worker %q. Skipping remaining tools.", b.name))
			break
		}

		args := b.resolveArgs(tool, task)
		start := time.Now()
		out, err := b.runTool(ctx, tool, args, remaining)
		switch {
		case errors.Is(err, ErrToolTimeout):
			log.Printf("worker %s: %s timed out after %s", b.name, name, time.Since(start).Round(time.Millisecond))
			messages = append(messages, fmt.Sprintf("%s timed out: %v", name, err))
			timeouts++
		case err != nil:
			log.Printf("worker %s: error executing %s: %v", b.name, name, err)
			messages = append(messages, fmt.Sprintf("Error executing %s: %v", name, err))
			calls += out.GenerativeCalls
		default:
			log.Printf("worker %s: executed %s in %s", b.name, name, time.Since(start).Round(time.Millisecond))
			messages = append(messages, fmt.Sprintf("%s result: %s", name, out.Text))
			calls += out.GenerativeCalls
		}
	}

	return Result{
		Success:         true,
		WorkerUsed:      b.name,
		Messages:        messages,
		GenerativeCalls: calls,
		TimedOutTools:   timeouts,
	}
}

// resolveArgs fills in arguments the planner omitted but the tool needs:
// the active media path and the original request text.
func (b *Base) resolveArgs(tool Tool, task Task) map[string]string {
	args := make(map[string]string)
	if tool.NeedsMedia {
		path := task.MediaPath
		if path == "" && b.media != nil {
			if current, ok := b.media.Current(task.SessionID); ok {
				path = current
			}
		}
		if path != "" {
			args["media_path"] = path
		}
	}
	if tool.NeedsRequest {
		args["request"] = task.Description
	}
	return args
}

// runTool invokes the tool. Long-running tools execute in their own
// goroutine bounded by a hard timeout derived from the remaining budget;
// everything else runs inline under the caller's context.
func (b *Base) runTool(ctx context.Context, tool Tool, args map[string]string, remaining time.Duration) (ToolOutput, error) {
	if !tool.LongRunning {
		return tool.Invoke(ctx, args)
	}

	toolCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	type outcome struct {
		out ToolOutput
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := tool.Invoke(toolCtx, args)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-toolCtx.Done():
		return ToolOutput{}, fmt.Errorf("%w after %s", ErrToolTimeout, remaining.Round(time.Millisecond))
	}
}
