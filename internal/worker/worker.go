package worker

import (
	"context"
	"time"

	"github.com/clipscope/clipscope/internal/capability"
)

// Task is the read-only input to one worker invocation.
type Task struct {
	SessionID   string
	Description string
	MediaPath   string
	TaskType    string // legacy routing hint, may be empty
}

// ToolOutput carries a tool's rendered result and how many generative
// service calls it made.
type ToolOutput struct {
	Text            string
	GenerativeCalls int
}

// InvokeFunc executes one tool. Output text is recorded verbatim in the
// worker's message log.
type InvokeFunc func(ctx context.Context, args map[string]string) (ToolOutput, error)

// Tool is a single named operation a worker can perform. Name is unique
// within a worker; the worker's tool set is the authoritative allow-list
// for planning.
type Tool struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// LongRunning tools are executed in an isolated, hard-timeout-bounded
	// runner because their implementations cannot be trusted to check
	// cooperative deadlines.
	LongRunning bool `yaml:"long_running,omitempty"`
	// NeedsMedia tools get the task's media path injected as args["media_path"]
	// when the planner omitted it.
	NeedsMedia bool `yaml:"needs_media,omitempty"`
	// NeedsRequest tools get the task description injected as args["request"].
	NeedsRequest bool `yaml:"needs_request,omitempty"`

	Invoke InvokeFunc `yaml:"-"`
}

// Result is the typed outcome of one worker invocation. Failures are
// reported here, never raised to the caller.
type Result struct {
	Success         bool
	WorkerUsed      string
	Messages        []string
	GenerativeCalls int
	TimedOutTools   int
	Error           string
}

// MediaContext exposes the session's current active media reference.
type MediaContext interface {
	Current(sessionID string) (string, bool)
}

// Worker is a capability provider: a descriptor for routing, a tool
// catalogue for planning, and a processing entry point. Workers are
// created once at startup and owned by the coordinator.
type Worker interface {
	Name() string
	Descriptor() capability.Descriptor
	Tools() []Tool
	// CanHandle is the legacy task-type routing predicate, used only when
	// description-based routing finds nothing.
	CanHandle(taskType string) bool
	Process(ctx context.Context, task Task, plan []string, budget time.Duration) Result
}
