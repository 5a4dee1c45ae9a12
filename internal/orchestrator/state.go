package orchestrator

import (
	"time"

	"github.com/clipscope/clipscope/internal/worker"
)

// Status names a stage of the orchestration state machine.
type Status string

const (
	StatusSelectWorkers Status = "select_workers"
	StatusToolsGate     Status = "tools_needed_gate"
	StatusPlanTools     Status = "plan_tools"
	StatusExecuteWorker Status = "execute_worker"
	StatusSynthesize    Status = "response_synthesis"
	StatusFinalFormat   Status = "final_format"
	StatusClarify       Status = "clarify"
	StatusDone          Status = "done"
)

// transitions is the full transition table. A stage may only hand off to
// one of its listed successors; anything else is a programming error.
var transitions = map[Status][]Status{
	StatusSelectWorkers: {StatusToolsGate, StatusClarify},
	StatusToolsGate:     {StatusPlanTools},
	StatusPlanTools:     {StatusExecuteWorker, StatusClarify},
	StatusExecuteWorker: {StatusExecuteWorker, StatusSynthesize},
	StatusSynthesize:    {StatusFinalFormat},
	StatusClarify:       {StatusFinalFormat},
	StatusFinalFormat:   {StatusDone},
	StatusDone:          {},
}

// ValidTransition reports whether the state machine allows moving from
// one status to another.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Plan is the tool execution plan produced by the planning stage: which
// workers run, in what order, with which tools each.
type Plan struct {
	Order []string
	Tools map[string][]string
}

// runState carries everything a run accumulates while walking the
// state machine. One value per run; never shared.
type runState struct {
	runID    string
	task     worker.Task
	deadline time.Time
	hasMedia bool

	selected []string
	plan     Plan
	results  map[string]worker.Result
	cursor   int

	plannerCalls int
	workerCalls  int
	chatCalls    int

	toolsNeeded    bool
	toolsReason    string
	reclarifyCount int

	clarificationActive bool
	clarification       string

	draft string
	final string
	notes []string
}

func (s *runState) note(msg string) {
	s.notes = append(s.notes, msg)
}

// Outcome is what a completed run reports back to the caller.
type Outcome struct {
	RunID         string
	Final         string
	Clarification bool

	Selected []string
	Plan     Plan
	Results  map[string]worker.Result

	PlannerCalls int
	WorkerCalls  int
	ChatCalls    int

	Duration time.Duration
	Notes    []string
}

// TotalCalls sums generative calls across all three purposes.
func (o *Outcome) TotalCalls() int {
	return o.PlannerCalls + o.WorkerCalls + o.ChatCalls
}
