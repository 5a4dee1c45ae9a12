package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/capability"
	"github.com/clipscope/clipscope/internal/router"
	"github.com/clipscope/clipscope/internal/worker"
)

// FallbackStrategy may rewrite a failed worker result into a softer one
// before it is returned. The default is the identity strategy; this is a
// seam for graceful-degradation policies.
type FallbackStrategy interface {
	HandleFailure(result worker.Result, taskDescription string) worker.Result
}

// IdentityFallback returns the failed result unchanged.
type IdentityFallback struct{}

func (IdentityFallback) HandleFailure(result worker.Result, _ string) worker.Result {
	return result
}

// Coordinator owns the live worker instances for the process lifetime,
// routes tasks to them, and executes them under a time budget.
type Coordinator struct {
	mu       sync.RWMutex
	workers  map[string]worker.Worker
	order    []string
	registry *capability.Registry

	classifier *router.Classifier
	fallback   FallbackStrategy
}

func New(registry *capability.Registry, classifier *router.Classifier, fallback FallbackStrategy) *Coordinator {
	if fallback == nil {
		fallback = IdentityFallback{}
	}
	return &Coordinator{
		workers:    make(map[string]worker.Worker),
		registry:   registry,
		classifier: classifier,
		fallback:   fallback,
	}
}

// Register adds a worker and publishes its descriptor to the capability
// registry. Re-registering a name replaces the instance.
func (c *Coordinator) Register(w worker.Worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := w.Name()
	if _, exists := c.workers[name]; !exists {
		c.order = append(c.order, name)
	}
	c.workers[name] = w
	c.registry.Register(name, w.Descriptor())
	log.Printf("coordinator: registered worker %q", name)
}

func (c *Coordinator) Get(name string) (worker.Worker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workers[name]
	return w, ok
}

// Names returns worker names in registration order.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Capabilities returns each worker's human-readable capability strings.
func (c *Coordinator) Capabilities() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.workers))
	for name, w := range c.workers {
		out[name] = w.Descriptor().Capabilities
	}
	return out
}

// ToolCatalogue returns each worker's declared tool names, in catalogue order.
func (c *Coordinator) ToolCatalogue() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.workers))
	for name, w := range c.workers {
		var tools []string
		for _, t := range w.Tools() {
			tools = append(tools, t.Name)
		}
		out[name] = tools
	}
	return out
}

// Route picks a worker for the task: description-based classification
// first, then the legacy CanHandle predicate in registration order.
func (c *Coordinator) Route(task worker.Task) (worker.Worker, bool) {
	if task.Description != "" {
		if name, ok := c.classifier.BestWorker(task.Description, router.DefaultThreshold); ok {
			if w, found := c.Get(name); found {
				log.Printf("coordinator: intent routing %q -> %s", task.Description, name)
				return w, true
			}
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.order {
		if c.workers[name].CanHandle(task.TaskType) {
			log.Printf("coordinator: legacy routing task_type %q -> %s", task.TaskType, name)
			return c.workers[name], true
		}
	}
	log.Printf("coordinator: no worker for task %q", task.Description)
	return nil, false
}

// Execute runs the named worker with the tool plan and budget. Every
// failure mode, including a panicking tool, is converted into a failed
// Result; nothing propagates to the caller. The fallback strategy gets
// the last word on failed results.
func (c *Coordinator) Execute(ctx context.Context, task worker.Task, workerName string, plan []string, budget time.Duration) worker.Result {
	w, ok := c.Get(workerName)
	if !ok {
		return c.fallback.HandleFailure(worker.Result{
			WorkerUsed: workerName,
			Error:      fmt.Sprintf("worker %q not found", workerName),
		}, task.Description)
	}

	result := c.safeProcess(ctx, w, task, plan, budget)
	if !result.Success {
		return c.fallback.HandleFailure(result, task.Description)
	}
	return result
}

func (c *Coordinator) safeProcess(ctx context.Context, w worker.Worker, task worker.Task, plan []string, budget time.Duration) (result worker.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("coordinator: worker %s panicked: %v", w.Name(), r)
			result = worker.Result{
				WorkerUsed: w.Name(),
				Error:      fmt.Sprintf("worker %s panicked: %v", w.Name(), r),
			}
		}
	}()
	return w.Process(ctx, task, plan, budget)
}
