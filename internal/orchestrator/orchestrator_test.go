package orchestrator

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipscope/clipscope/internal/capability"
	"github.com/clipscope/clipscope/internal/coordinator"
	"github.com/clipscope/clipscope/internal/provider"
	"github.com/clipscope/clipscope/internal/router"
	"github.com/clipscope/clipscope/internal/state"
	"github.com/clipscope/clipscope/internal/worker"
)

// scriptedClient replays canned completions in order and records the
// prompts it saw. An exhausted script returns an error, standing in for
// a failing backend.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (c *scriptedClient) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, req.Messages[len(req.Messages)-1].Content)
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client exhausted")
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return &provider.CompletionResponse{Content: r}, nil
}

type runRecord struct {
	plan   []string
	budget time.Duration
}

type stubWorker struct {
	name  string
	desc  capability.Descriptor
	tools []worker.Tool
	delay time.Duration

	mu   sync.Mutex
	runs []runRecord
}

func (s *stubWorker) Name() string                      { return s.name }
func (s *stubWorker) Descriptor() capability.Descriptor { return s.desc }
func (s *stubWorker) Tools() []worker.Tool              { return s.tools }
func (s *stubWorker) CanHandle(string) bool             { return false }

func (s *stubWorker) Process(ctx context.Context, task worker.Task, plan []string, budget time.Duration) worker.Result {
	s.mu.Lock()
	s.runs = append(s.runs, runRecord{plan: plan, budget: budget})
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return worker.Result{Success: true, WorkerUsed: s.name, Messages: []string{s.name + " done"}}
}

func toolList(names ...string) []worker.Tool {
	var tools []worker.Tool
	for _, n := range names {
		tools = append(tools, worker.Tool{Name: n, Description: n})
	}
	return tools
}

func reclarifyStub() *stubWorker {
	return &stubWorker{
		name:  worker.ReclarifyName,
		desc:  capability.Descriptor{Capabilities: []string{"clarify requests"}, Keywords: []string{"unclear"}, Priority: 2},
		tools: toolList("reclarify_prompt"),
	}
}

func newHarness(opts Options, planner, chat provider.Client, workers ...worker.Worker) (*Orchestrator, *state.MemorySessions) {
	reg := capability.NewRegistry()
	cls := router.NewClassifier(reg)
	coord := coordinator.New(reg, cls, nil)
	for _, w := range workers {
		coord.Register(w)
	}
	sessions := state.NewMemorySessions(0)
	o := New(planner, chat, coord, cls, state.NewMemoryMedia(), sessions, nil, opts)
	return o, sessions
}

func TestRunNoWorkersClarifies(t *testing.T) {
	planner := &scriptedClient{responses: []string{`[]`}}
	chat := &scriptedClient{}
	o, _ := newHarness(DefaultOptions(), planner, chat)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "do something"})
	if !out.Clarification {
		t.Fatal("run without workers must end in clarification")
	}
	if !strings.Contains(out.Final, "No specialized workers are currently registered") {
		t.Errorf("Final = %q", out.Final)
	}
	if out.ChatCalls != 0 {
		t.Errorf("clarification must bypass the chat model, ChatCalls = %d", out.ChatCalls)
	}
}

func TestRunClearWinnerExecutesPlan(t *testing.T) {
	alpha := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha analysis"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
		tools: toolList("tool_a", "tool_b"),
	}
	other := &stubWorker{
		name:  "other",
		desc:  capability.Descriptor{Capabilities: []string{"misc"}, Keywords: []string{"alpha", "gamma", "delta", "epsilon"}, Priority: 10},
		tools: toolList("tool_x"),
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "analysis requested"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft answer", "polished answer"}}
	o, _ := newHarness(DefaultOptions(), planner, chat, alpha, other)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if out.Clarification {
		t.Fatalf("unexpected clarification: %q", out.Final)
	}
	// alpha_worker scores 0.91, other 0.475: a clear winner, no ambiguity.
	if len(out.Selected) != 1 || out.Selected[0] != "alpha_worker" {
		t.Errorf("Selected = %v", out.Selected)
	}
	if len(alpha.runs) != 1 || len(alpha.runs[0].plan) != 1 || alpha.runs[0].plan[0] != "tool_a" {
		t.Errorf("alpha runs = %+v", alpha.runs)
	}
	if len(other.runs) != 0 {
		t.Error("worker outside the plan must not run")
	}
	if out.Final != "polished answer" {
		t.Errorf("Final = %q", out.Final)
	}
	if out.ChatCalls != 2 {
		t.Errorf("ChatCalls = %d, want draft + polish", out.ChatCalls)
	}
	if out.PlannerCalls != 2 {
		t.Errorf("PlannerCalls = %d, want gate + plan", out.PlannerCalls)
	}
}

func TestRunAmbiguousScoresRouteToReclarify(t *testing.T) {
	a := &stubWorker{
		name:  "a",
		desc:  capability.Descriptor{Capabilities: []string{"a things"}, Keywords: []string{"foo", "bar"}, Priority: 8},
		tools: toolList("tool_a"),
	}
	b := &stubWorker{
		name:  "b",
		desc:  capability.Descriptor{Capabilities: []string{"b things"}, Keywords: []string{"foo", "baz"}, Priority: 5},
		tools: toolList("tool_b"),
	}
	rc := reclarifyStub()
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "fine"}`,
		`[{"worker": "reclarify", "tools": ["reclarify_prompt"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(DefaultOptions(), planner, chat, a, b, rc)

	// a scores 0.59, b scores 0.50: delta 0.09 < 0.15 means ambiguous.
	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "foo task"})
	if len(out.Selected) != 1 || out.Selected[0] != worker.ReclarifyName {
		t.Errorf("Selected = %v, want reclarify", out.Selected)
	}
	if len(rc.runs) != 1 {
		t.Errorf("reclarify runs = %d", len(rc.runs))
	}
	if len(a.runs)+len(b.runs) != 0 {
		t.Error("ambiguous intent must not run domain workers")
	}
}

func TestRunMediaRequestWithoutMediaReclarifies(t *testing.T) {
	tr := &stubWorker{
		name:  "transcription",
		desc:  capability.Descriptor{Capabilities: []string{"speech to text"}, Keywords: []string{"transcribe"}, Priority: 8},
		tools: toolList("video_to_transcript"),
	}
	rc := reclarifyStub()
	planner := &scriptedClient{responses: []string{
		`not valid json at all`,
		`[{"worker": "reclarify", "tools": ["reclarify_prompt"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, sessions := newHarness(DefaultOptions(), planner, chat, tr, rc)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "transcribe the clip"})
	if len(out.Selected) != 1 || out.Selected[0] != worker.ReclarifyName {
		t.Errorf("Selected = %v, want reclarify without loaded media", out.Selected)
	}
	if len(tr.runs) != 0 {
		t.Error("transcription must not run without media")
	}
	// unparseable gate defaults to no tools, which bumps the counter
	if n, _ := sessions.ReclarifyCount("s1"); n != 1 {
		t.Errorf("session reclarify count = %d, want 1", n)
	}
}

func TestRunMediaTaskPathEnablesWorker(t *testing.T) {
	tr := &stubWorker{
		name:  "transcription",
		desc:  capability.Descriptor{Capabilities: []string{"speech to text"}, Keywords: []string{"transcribe"}, Priority: 8},
		tools: toolList("video_to_transcript"),
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": false, "confidence": 0.9, "reason": "chatty"}`,
		`[{"worker": "transcription", "tools": ["video_to_transcript"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(DefaultOptions(), planner, chat, tr, reclarifyStub())

	// loaded media plus transcription phrasing overrides the gate's "no"
	out := o.Run(context.Background(), worker.Task{
		SessionID:   "s1",
		Description: "transcribe the clip",
		MediaPath:   "/videos/demo.mp4",
	})
	if len(tr.runs) != 1 {
		t.Fatalf("transcription runs = %d, want 1", len(tr.runs))
	}
	if out.Clarification {
		t.Errorf("unexpected clarification: %q", out.Final)
	}
}

func TestRunReclarifyCapForcesTools(t *testing.T) {
	a := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
		tools: toolList("tool_a"),
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": false, "confidence": 0.2, "reason": "sounds conversational"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, sessions := newHarness(DefaultOptions(), planner, chat, a, reclarifyStub())
	if err := sessions.SetReclarifyCount("s1", 2); err != nil {
		t.Fatal(err)
	}

	o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if len(a.runs) != 1 {
		t.Errorf("capped session must force tool execution, runs = %d", len(a.runs))
	}
	if n, _ := sessions.ReclarifyCount("s1"); n != 2 {
		t.Errorf("reclarify count = %d, cap must not grow", n)
	}
}

func TestRunSelectionCorrectiveRetry(t *testing.T) {
	a := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"zzz"}, Priority: 7},
		tools: toolList("tool_a"),
	}
	opts := DefaultOptions()
	opts.UseIntentRouting = false
	planner := &scriptedClient{responses: []string{
		`I think alpha_worker would be best here`,
		`["alpha_worker", "ghost_worker"]`,
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(opts, planner, chat, a, reclarifyStub())

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "hello"})
	if len(out.Selected) != 1 || out.Selected[0] != "alpha_worker" {
		t.Errorf("Selected = %v, want retry to recover and drop ghost_worker", out.Selected)
	}
	if out.PlannerCalls != 4 {
		t.Errorf("PlannerCalls = %d, want 2 selection + gate + plan", out.PlannerCalls)
	}
}

func TestRunSelectionDoubleFailureFallsBackToReclarify(t *testing.T) {
	rc := reclarifyStub()
	opts := DefaultOptions()
	opts.UseIntentRouting = false
	planner := &scriptedClient{responses: []string{
		`garbage`,
		`still garbage`,
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "reclarify", "tools": ["reclarify_prompt"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(opts, planner, chat, rc)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "hello"})
	if len(out.Selected) != 1 || out.Selected[0] != worker.ReclarifyName {
		t.Errorf("Selected = %v, want reclarify after double parse failure", out.Selected)
	}
	if len(rc.runs) != 1 {
		t.Errorf("reclarify runs = %d", len(rc.runs))
	}
}

func TestRunPlanDropsUnknownToolsAndWorkers(t *testing.T) {
	a := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
		tools: toolList("tool_a", "tool_b"),
	}
	b := &stubWorker{
		name:  "beta_worker",
		desc:  capability.Descriptor{Capabilities: []string{"beta"}, Keywords: []string{"qqq"}, Priority: 5},
		tools: toolList("tool_c"),
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a", "ghost_tool"]}, {"worker": "beta_worker", "tools": ["ghost_only"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(DefaultOptions(), planner, chat, a, b)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if len(out.Plan.Order) != 1 || out.Plan.Order[0] != "alpha_worker" {
		t.Errorf("Plan.Order = %v, worker with only invalid tools must be dropped", out.Plan.Order)
	}
	if got := out.Plan.Tools["alpha_worker"]; len(got) != 1 || got[0] != "tool_a" {
		t.Errorf("planned tools = %v, unknown tool must be dropped", got)
	}
	if len(b.runs) != 0 {
		t.Error("dropped worker must not run")
	}
}

func TestRunBudgetsRespectDeadlineAndMargin(t *testing.T) {
	slow := &stubWorker{
		name:  "slow",
		desc:  capability.Descriptor{Capabilities: []string{"slow"}, Keywords: []string{"alpha", "beta"}, Priority: 9},
		tools: toolList("tool_s"),
		delay: 80 * time.Millisecond,
	}
	second := &stubWorker{
		name:  "second",
		desc:  capability.Descriptor{Capabilities: []string{"second"}, Keywords: []string{"alpha"}, Priority: 1},
		tools: toolList("tool_t"),
	}
	opts := DefaultOptions()
	opts.TotalTimeout = 60 * time.Millisecond
	opts.SafetyMargin = 20 * time.Millisecond
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "slow", "tools": ["tool_s"]}, {"worker": "second", "tools": ["tool_t"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(opts, planner, chat, slow, second)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if len(slow.runs) != 1 {
		t.Fatalf("slow runs = %d", len(slow.runs))
	}
	if got := slow.runs[0].budget; got > opts.TotalTimeout-opts.SafetyMargin {
		t.Errorf("budget %s exceeds remaining minus safety margin", got)
	}
	if len(second.runs) != 0 {
		t.Error("second worker must be skipped once the deadline is spent")
	}
	if _, ok := out.Results["second"]; ok {
		t.Error("skipped worker must not report a result")
	}
}

func TestRunWorkerBudgetOverride(t *testing.T) {
	a := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
		tools: toolList("tool_a"),
	}
	opts := DefaultOptions()
	opts.WorkerBudgets = map[string]time.Duration{"alpha_worker": 7 * time.Second}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a"]}]`,
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(opts, planner, chat, a)

	o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if len(a.runs) != 1 || a.runs[0].budget != 7*time.Second {
		t.Errorf("runs = %+v, want 7s override budget", a.runs)
	}
}

func TestRunSynthesisFallbackOnChatFailure(t *testing.T) {
	a := &stubWorker{
		name:  "alpha_worker",
		desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
		tools: toolList("tool_a"),
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[{"worker": "alpha_worker", "tools": ["tool_a"]}]`,
	}}
	chat := &scriptedClient{} // exhausted: every chat call fails
	o, _ := newHarness(DefaultOptions(), planner, chat, a)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if !strings.Contains(out.Final, "alpha_worker done") {
		t.Errorf("Final = %q, want deterministic draft from worker messages", out.Final)
	}
	if out.Clarification {
		t.Error("chat failure must not be reported as clarification")
	}
}

func TestRunRepeatedTaskProducesIdenticalPlan(t *testing.T) {
	run := func() *Outcome {
		a := &stubWorker{
			name:  "alpha_worker",
			desc:  capability.Descriptor{Capabilities: []string{"alpha"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
			tools: toolList("tool_a", "tool_b"),
		}
		b := &stubWorker{
			name:  "beta_worker",
			desc:  capability.Descriptor{Capabilities: []string{"beta"}, Keywords: []string{"qqq"}, Priority: 5},
			tools: toolList("tool_c"),
		}
		planner := &scriptedClient{responses: []string{
			`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
			`[{"worker": "alpha_worker", "tools": ["tool_b", "tool_a"]}]`,
		}}
		chat := &scriptedClient{responses: []string{"draft", "final"}}
		o, _ := newHarness(DefaultOptions(), planner, chat, a, b)
		return o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first.Selected, second.Selected) {
		t.Errorf("Selected differs across runs: %v vs %v", first.Selected, second.Selected)
	}
	if !reflect.DeepEqual(first.Plan, second.Plan) {
		t.Errorf("Plan differs across runs: %+v vs %+v", first.Plan, second.Plan)
	}
}

func TestRunEmptyCatalogueWorkerForcesClarification(t *testing.T) {
	bare := &stubWorker{
		name: "bare_worker",
		desc: capability.Descriptor{Capabilities: []string{"bare things"}, Keywords: []string{"alpha", "beta"}, Priority: 7},
	}
	planner := &scriptedClient{responses: []string{
		`{"should_use_tools": true, "confidence": 0.9, "reason": "x"}`,
		`[]`, // global plan: nothing to schedule
		`[]`, // per-worker fallback for bare_worker
	}}
	chat := &scriptedClient{responses: []string{"draft", "final"}}
	o, _ := newHarness(DefaultOptions(), planner, chat, bare)

	out := o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "alpha beta task"})
	if !out.Clarification {
		t.Fatalf("worker without tools must end in clarification, Final = %q", out.Final)
	}
	if len(bare.runs) != 0 {
		t.Error("worker without tools must not run")
	}
	if out.ChatCalls != 0 {
		t.Errorf("clarification must bypass the chat model, ChatCalls = %d", out.ChatCalls)
	}
}

func TestRunPersistsChatHistory(t *testing.T) {
	planner := &scriptedClient{responses: []string{`[]`}}
	chat := &scriptedClient{}
	o, sessions := newHarness(DefaultOptions(), planner, chat)

	o.Run(context.Background(), worker.Task{SessionID: "s1", Description: "do something"})
	hist, err := sessions.History("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %+v, want user + assistant", hist)
	}
	if hist[0].Role != provider.RoleUser || hist[1].Role != provider.RoleAssistant {
		t.Errorf("history roles = %s, %s", hist[0].Role, hist[1].Role)
	}
}
