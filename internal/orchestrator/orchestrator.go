package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/coordinator"
	"github.com/clipscope/clipscope/internal/provider"
	"github.com/clipscope/clipscope/internal/router"
	"github.com/clipscope/clipscope/internal/state"
	"github.com/clipscope/clipscope/internal/worker"
)

// Options are the tunable knobs of a run. Zero values are not usable;
// start from DefaultOptions.
type Options struct {
	UseIntentRouting     bool
	MinWorkerConf        float64
	AmbiguityDelta       float64
	MinToolsConf         float64
	TotalTimeout         time.Duration
	DefaultWorkerBudget  time.Duration
	WorkerBudgets        map[string]time.Duration
	SafetyMargin         time.Duration
	MaxReclarify         int
	RequireMediaForTools bool
	PlannerModel         string
	ChatModel            string
}

func DefaultOptions() Options {
	return Options{
		UseIntentRouting:     true,
		MinWorkerConf:        0.55,
		AmbiguityDelta:       0.15,
		MinToolsConf:         0.60,
		TotalTimeout:         600 * time.Second,
		DefaultWorkerBudget:  180 * time.Second,
		SafetyMargin:         2 * time.Second,
		MaxReclarify:         2,
		RequireMediaForTools: true,
	}
}

// Recorder receives run telemetry. The metrics package provides the
// Prometheus-backed implementation.
type Recorder interface {
	RunCompleted(outcome string, elapsed time.Duration)
	GenerativeCalls(purpose string, n int)
	ToolTimeouts(n int)
}

type nopRecorder struct{}

func (nopRecorder) RunCompleted(string, time.Duration) {}
func (nopRecorder) GenerativeCalls(string, int)        {}
func (nopRecorder) ToolTimeouts(int)                   {}

// Orchestrator walks a task through worker selection, tool gating,
// planning, budgeted execution and two-phase answer synthesis. The
// planner client makes structured decisions; the chat client writes the
// user-facing prose.
type Orchestrator struct {
	planner    provider.Client
	chat       provider.Client
	coord      *coordinator.Coordinator
	classifier *router.Classifier
	media      state.MediaContext
	sessions   state.Sessions
	recorder   Recorder
	opts       Options
}

func New(planner, chat provider.Client, coord *coordinator.Coordinator, classifier *router.Classifier, media state.MediaContext, sessions state.Sessions, recorder Recorder, opts Options) *Orchestrator {
	if media == nil {
		media = state.NewMemoryMedia()
	}
	if sessions == nil {
		sessions = state.NewMemorySessions(0)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		planner:    planner,
		chat:       chat,
		coord:      coord,
		classifier: classifier,
		media:      media,
		sessions:   sessions,
		recorder:   recorder,
		opts:       opts,
	}
}

// Run drives one task through the state machine and always produces an
// Outcome; every failure mode degrades to a clarification or a
// deterministic fallback answer.
func (o *Orchestrator) Run(ctx context.Context, task worker.Task) *Outcome {
	start := time.Now()
	if task.SessionID == "" {
		task.SessionID = uuid.NewString()
	}
	if state.IsVideoPath(task.MediaPath) {
		if err := o.media.SetCurrent(task.SessionID, task.MediaPath); err != nil {
			log.Printf("orchestrator: media context: %v", err)
		} else {
			log.Printf("orchestrator: loaded media into context: %s", task.MediaPath)
		}
	}

	s := &runState{
		runID:       uuid.NewString(),
		task:        task,
		deadline:    start.Add(o.opts.TotalTimeout),
		results:     make(map[string]worker.Result),
		toolsNeeded: true,
	}
	s.hasMedia = o.mediaPresent(task)
	if n, err := o.sessions.ReclarifyCount(task.SessionID); err == nil {
		s.reclarifyCount = n
	}

	ctx, cancel := context.WithDeadline(ctx, s.deadline)
	defer cancel()

	status := StatusSelectWorkers
	for status != StatusDone {
		next := o.step(ctx, status, s)
		if !ValidTransition(status, next) {
			log.Printf("orchestrator: illegal transition %s -> %s, aborting run %s", status, next, s.runID)
			if s.final == "" {
				s.final = s.draft
			}
			break
		}
		status = next
	}

	if s.final == "" {
		s.final = s.draft
	}

	o.persist(task.SessionID, s)
	outcomeLabel := "answered"
	if s.clarificationActive {
		outcomeLabel = "clarified"
	}
	elapsed := time.Since(start)
	o.recorder.RunCompleted(outcomeLabel, elapsed)
	o.recorder.GenerativeCalls("planner", s.plannerCalls)
	o.recorder.GenerativeCalls("worker", s.workerCalls)
	o.recorder.GenerativeCalls("chat", s.chatCalls)

	return &Outcome{
		RunID:         s.runID,
		Final:         s.final,
		Clarification: s.clarificationActive,
		Selected:      s.selected,
		Plan:          s.plan,
		Results:       s.results,
		PlannerCalls:  s.plannerCalls,
		WorkerCalls:   s.workerCalls,
		ChatCalls:     s.chatCalls,
		Duration:      elapsed,
		Notes:         s.notes,
	}
}

func (o *Orchestrator) step(ctx context.Context, status Status, s *runState) Status {
	switch status {
	case StatusSelectWorkers:
		return o.selectWorkers(ctx, s)
	case StatusToolsGate:
		return o.toolsGate(ctx, s)
	case StatusPlanTools:
		return o.planTools(ctx, s)
	case StatusExecuteWorker:
		return o.executeWorker(ctx, s)
	case StatusSynthesize:
		return o.synthesize(ctx, s)
	case StatusClarify:
		return o.clarify(s)
	case StatusFinalFormat:
		return o.finalFormat(ctx, s)
	}
	return StatusDone
}

func (o *Orchestrator) selectWorkers(ctx context.Context, s *runState) Status {
	desc := s.task.Description

	if o.opts.UseIntentRouting {
		matches := o.classifier.Classify(desc, router.DefaultThreshold)
		if len(matches) > 0 && matches[0].Score >= o.opts.MinWorkerConf {
			for i, m := range matches {
				if i == 2 {
					break
				}
				s.selected = append(s.selected, m.Worker)
			}
			log.Printf("orchestrator: intent selection %q -> %v", desc, s.selected)
		}
		if len(matches) > 0 && router.Ambiguous(matches, o.opts.MinWorkerConf, o.opts.AmbiguityDelta) {
			log.Printf("orchestrator: ambiguous intent for %q, routing to %s", desc, worker.ReclarifyName)
			s.selected = []string{worker.ReclarifyName}
		}
	}

	if len(s.selected) == 0 {
		s.selected = o.selectByPlanner(ctx, s)
	}

	// A media-flavored request with nothing loaded cannot run tools.
	if o.opts.RequireMediaForTools && mentionsMedia(desc) && !s.hasMedia {
		log.Printf("orchestrator: media request without loaded media, routing to %s", worker.ReclarifyName)
		s.selected = []string{worker.ReclarifyName}
	}

	if len(s.selected) == 0 {
		s.clarificationActive = true
		s.clarification = clarificationMessage(desc, o.coord.Capabilities(), o.coord.Names())
		s.note("no worker matched; requesting clarification")
		return StatusClarify
	}
	s.note(fmt.Sprintf("selected workers: %v", s.selected))
	return StatusToolsGate
}

// selectByPlanner asks the planner model to pick workers, with one
// corrective retry on invalid output. Unknown names are dropped; a
// double parse failure falls back to the reclarify worker.
func (o *Orchestrator) selectByPlanner(ctx context.Context, s *runState) []string {
	names := o.coord.Names()
	caps := o.coord.Capabilities()
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", n, strings.Join(caps[n], ", ")))
	}
	prompt := selectionPrompt(lines, names, s.task.Description)

	content, err := o.complete(ctx, o.planner, o.opts.PlannerModel, prompt)
	s.plannerCalls++
	var parsed []string
	if err == nil {
		parsed, err = ParseWorkerList(content)
	}
	if err != nil {
		content, retryErr := o.complete(ctx, o.planner, o.opts.PlannerModel, prompt+fmt.Sprintf(correctiveSuffix, err))
		s.plannerCalls++
		if retryErr == nil {
			parsed, retryErr = ParseWorkerList(content)
		}
		if retryErr != nil {
			log.Printf("orchestrator: worker selection unparseable twice: %v", retryErr)
			return []string{worker.ReclarifyName}
		}
	}

	var selected []string
	for _, name := range parsed {
		if _, ok := caps[name]; ok {
			selected = append(selected, name)
		}
	}
	log.Printf("orchestrator: planner selection %q -> %v", s.task.Description, selected)
	return selected
}

func (o *Orchestrator) toolsGate(ctx context.Context, s *runState) Status {
	desc := s.task.Description
	toolsNeeded := false
	confidence := 0.0
	reason := "Defaulting to conversation; tool gating parse failed."

	content, err := o.complete(ctx, o.planner, o.opts.PlannerModel, gatePrompt(desc, s.hasMedia))
	s.plannerCalls++
	if err == nil {
		if gate, perr := ParseToolsGate(content); perr == nil {
			toolsNeeded = gate.ShouldUseTools
			confidence = gate.Confidence
			if gate.Reason != "" {
				reason = gate.Reason
			}
		} else {
			log.Printf("orchestrator: tools gate parse error, defaulting to chat: %v", perr)
		}
	} else {
		log.Printf("orchestrator: tools gate call failed, defaulting to chat: %v", err)
	}

	if toolsNeeded && confidence < o.opts.MinToolsConf {
		log.Printf("orchestrator: tools gate low confidence (%.2f), withholding tools", confidence)
		toolsNeeded = false
	}
	// Loaded media plus an analysis-flavored request always runs tools.
	if s.hasMedia && mentionsMediaWork(desc) {
		toolsNeeded = true
	}

	if !toolsNeeded {
		if s.reclarifyCount >= o.opts.MaxReclarify {
			log.Printf("orchestrator: reclarify cap reached (%d), forcing tools", s.reclarifyCount)
			toolsNeeded = true
		} else {
			s.selected = []string{worker.ReclarifyName}
			s.reclarifyCount++
		}
	}

	s.toolsNeeded = toolsNeeded
	s.toolsReason = reason
	s.note(fmt.Sprintf("tools needed: %t (conf=%.2f) %s -> %v", toolsNeeded, confidence, reason, s.selected))
	return StatusPlanTools
}

func (o *Orchestrator) planTools(ctx context.Context, s *runState) Status {
	catalogue := o.coord.ToolCatalogue()
	plans := make(map[string][]string)
	var order []string

	steps := o.globalPlan(ctx, s, catalogue)
	for _, step := range steps {
		if step.Worker == "" {
			continue
		}
		allowed := make(map[string]bool, len(catalogue[step.Worker]))
		for _, t := range catalogue[step.Worker] {
			allowed[t] = true
		}
		var mapped []string
		for _, t := range step.Tools {
			if allowed[t] {
				mapped = append(mapped, t)
			} else {
				log.Printf("orchestrator: dropping unknown tool %q for worker %q", t, step.Worker)
			}
		}
		if len(mapped) == 0 {
			continue
		}
		if !containsString(order, step.Worker) {
			order = append(order, step.Worker)
		}
		plans[step.Worker] = append(plans[step.Worker], mapped...)
	}
	if len(order) > 0 {
		s.selected = order
	}

	if len(plans) == 0 {
		o.planPerWorker(ctx, s, plans)
		order = order[:0]
		for _, name := range s.selected {
			if len(plans[name]) > 0 {
				order = append(order, name)
			}
		}
	}

	s.plan = Plan{Order: order, Tools: plans}
	valid := len(plans) > 0
	for _, tools := range plans {
		if len(tools) == 0 {
			valid = false
		}
	}
	if !valid {
		s.clarificationActive = true
		s.clarification = clarificationMessage(s.task.Description, o.coord.Capabilities(), o.coord.Names())
		s.note("no valid tool plan; requesting clarification")
		return StatusClarify
	}
	s.note(fmt.Sprintf("execution plan: %v %v", order, plans))
	return StatusExecuteWorker
}

// globalPlan asks the planner for one cross-worker plan, retrying once
// on invalid output. An empty result sends planning down the per-worker
// fallback.
func (o *Orchestrator) globalPlan(ctx context.Context, s *runState, catalogue map[string][]string) []PlanStep {
	catalogueJSON, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		return nil
	}
	prompt := globalPlanPrompt(string(catalogueJSON), s.hasMedia, s.task.Description)

	content, err := o.complete(ctx, o.planner, o.opts.PlannerModel, prompt)
	s.plannerCalls++
	var steps []PlanStep
	if err == nil {
		steps, err = ParsePlanSteps(content)
	}
	if err != nil {
		content, retryErr := o.complete(ctx, o.planner, o.opts.PlannerModel, prompt+fmt.Sprintf(correctiveSuffix, err))
		s.plannerCalls++
		if retryErr == nil {
			steps, retryErr = ParsePlanSteps(content)
		}
		if retryErr != nil {
			log.Printf("orchestrator: global plan unparseable twice, falling back to per-worker planning: %v", retryErr)
			return nil
		}
	}
	return steps
}

// planPerWorker plans each selected worker independently. A worker with
// declared tools always ends up with at least its first tool; one with
// an empty catalogue is recorded with an empty plan so validation fails
// the run into a clarification.
func (o *Orchestrator) planPerWorker(ctx context.Context, s *runState, plans map[string][]string) {
	for _, name := range s.selected {
		w, ok := o.coord.Get(name)
		if !ok {
			continue
		}
		tools := w.Tools()
		toolNames := make([]string, 0, len(tools))
		toolDescriptions := make(map[string]string, len(tools))
		for _, t := range tools {
			toolNames = append(toolNames, t.Name)
			toolDescriptions[t.Name] = t.Description
		}
		role := "Handles " + strings.Join(w.Descriptor().Capabilities, ", ")

		content, err := o.complete(ctx, o.planner, o.opts.PlannerModel,
			workerPlanPrompt(name, toolNames, toolDescriptions, s.task.Description, role))
		s.plannerCalls++

		var planned []string
		if err == nil {
			planned, _ = ParseWorkerList(content)
		}
		valid := planned[:0]
		for _, t := range planned {
			if containsString(toolNames, t) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 && len(toolNames) > 0 {
			valid = []string{toolNames[0]}
		}
		plans[name] = valid
	}
}

func (o *Orchestrator) executeWorker(ctx context.Context, s *runState) Status {
	if s.cursor >= len(s.plan.Order) {
		return StatusSynthesize
	}
	remaining := time.Until(s.deadline)
	if remaining <= o.opts.SafetyMargin {
		log.Printf("orchestrator: run deadline nearly reached, skipping remaining workers")
		s.note("deadline reached; skipping remaining workers")
		return StatusSynthesize
	}

	name := s.plan.Order[s.cursor]
	budget := o.opts.DefaultWorkerBudget
	if b, ok := o.opts.WorkerBudgets[name]; ok {
		budget = b
	}
	if ceiling := remaining - o.opts.SafetyMargin; budget > ceiling {
		budget = ceiling
	}
	if budget < 0 {
		budget = 0
	}
	log.Printf("orchestrator: executing %s with budget %s (remaining %s)", name, budget, remaining)

	result := o.coord.Execute(ctx, s.task, name, s.plan.Tools[name], budget)
	s.results[name] = result
	s.workerCalls += result.GenerativeCalls
	if result.TimedOutTools > 0 {
		o.recorder.ToolTimeouts(result.TimedOutTools)
	}
	s.cursor++
	s.note(fmt.Sprintf("executed %s: %v", name, result.Messages))

	if s.cursor < len(s.plan.Order) {
		return StatusExecuteWorker
	}
	return StatusSynthesize
}

func (o *Orchestrator) synthesize(ctx context.Context, s *runState) Status {
	resultsJSON, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		resultsJSON = []byte("{}")
	}
	content, err := o.complete(ctx, o.chat, o.opts.ChatModel, synthesisPrompt(s.task.Description, string(resultsJSON)))
	s.chatCalls++
	if err != nil {
		log.Printf("orchestrator: synthesis call failed, using deterministic draft: %v", err)
		s.draft = fallbackDraft(s)
	} else {
		s.draft = content
	}
	return StatusFinalFormat
}

func (o *Orchestrator) clarify(s *runState) Status {
	if s.clarification == "" {
		s.clarification = clarificationMessage(s.task.Description, o.coord.Capabilities(), o.coord.Names())
	}
	s.clarificationActive = true
	s.draft = s.clarification
	return StatusFinalFormat
}

func (o *Orchestrator) finalFormat(ctx context.Context, s *runState) Status {
	// Clarification answers go out verbatim; polishing them would bury
	// the capability listing.
	if s.clarificationActive {
		s.final = s.draft
		return StatusDone
	}
	content, err := o.complete(ctx, o.chat, o.opts.ChatModel, polishPrompt(s.task.Description, s.draft))
	s.chatCalls++
	if err != nil {
		log.Printf("orchestrator: polish call failed, returning draft: %v", err)
		s.final = s.draft
	} else {
		s.final = content
	}
	return StatusDone
}

func (o *Orchestrator) complete(ctx context.Context, client provider.Client, model, prompt string) (string, error) {
	resp, err := client.Complete(ctx, &provider.CompletionRequest{
		Model:    model,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (o *Orchestrator) persist(sessionID string, s *runState) {
	if err := o.sessions.AddMessage(sessionID, provider.Message{Role: provider.RoleUser, Content: s.task.Description}); err != nil {
		log.Printf("orchestrator: session persist: %v", err)
	}
	if s.final != "" {
		if err := o.sessions.AddMessage(sessionID, provider.Message{Role: provider.RoleAssistant, Content: s.final}); err != nil {
			log.Printf("orchestrator: session persist: %v", err)
		}
	}
	if err := o.sessions.SetReclarifyCount(sessionID, s.reclarifyCount); err != nil {
		log.Printf("orchestrator: session persist: %v", err)
	}
}

func (o *Orchestrator) mediaPresent(task worker.Task) bool {
	if state.IsVideoPath(task.MediaPath) {
		return true
	}
	if path, ok := o.media.Current(task.SessionID); ok {
		return state.IsVideoPath(path)
	}
	return false
}

var mediaNouns = []string{"video", "clip", "footage"}
var mediaVerbs = []string{"transcribe", "transcription", "speech", "audio"}
var analysisHints = []string{"summarize", "describe", "objects", "main themes"}

// mentionsMedia reports whether the request talks about media at all,
// which makes loaded media a prerequisite for running tools.
func mentionsMedia(description string) bool {
	lower := strings.ToLower(description)
	return containsAny(lower, mediaNouns) || containsAny(lower, mediaVerbs)
}

// mentionsMediaWork is the broader gate-bias check: with media loaded,
// these phrasings always warrant tool execution.
func mentionsMediaWork(description string) bool {
	lower := strings.ToLower(description)
	return containsAny(lower, mediaNouns) || containsAny(lower, mediaVerbs) || containsAny(lower, analysisHints)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fallbackDraft(s *runState) string {
	var lines []string
	for _, name := range s.plan.Order {
		result, ok := s.results[name]
		if !ok {
			continue
		}
		lines = append(lines, result.Messages...)
	}
	if len(lines) == 0 {
		return "I wasn't able to produce an answer for this request. Please try rephrasing it."
	}
	return strings.Join(lines, "\n")
}
