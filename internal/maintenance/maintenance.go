package maintenance

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	KindPruneSessions = "prune_sessions"
	KindPruneReports  = "prune_reports"
)

// Job is one scheduled maintenance task, persisted as yaml so operators
// can adjust schedules without a rebuild.
type Job struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Kind     string `yaml:"kind"`
	MaxAge   string `yaml:"max_age"`
}

type jobsFile struct {
	Jobs []Job `yaml:"jobs"`
}

// DefaultJobs covers the two built-in pruners on a nightly schedule.
func DefaultJobs() []Job {
	return []Job{
		{Name: "prune-idle-sessions", Schedule: "0 3 * * *", Kind: KindPruneSessions, MaxAge: "720h"},
		{Name: "prune-stale-reports", Schedule: "30 3 * * *", Kind: KindPruneReports, MaxAge: "2160h"},
	}
}

// LoadJobs reads job definitions from path, falling back to the
// defaults when the file does not exist.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultJobs(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("maintenance: read jobs %s: %w", path, err)
	}
	var f jobsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("maintenance: parse jobs %s: %w", path, err)
	}
	if len(f.Jobs) == 0 {
		return DefaultJobs(), nil
	}
	return f.Jobs, nil
}

// SaveJobs writes job definitions to path.
func SaveJobs(path string, jobs []Job) error {
	data, err := yaml.Marshal(jobsFile{Jobs: jobs})
	if err != nil {
		return fmt.Errorf("maintenance: marshal jobs: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("maintenance: write jobs %s: %w", path, err)
	}
	return nil
}

type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) (int, error)
}

type ReportPruner interface {
	PruneOlderThan(maxAge time.Duration) (int, error)
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionPruner
	reports  ReportPruner
}

func NewScheduler(sessions SessionPruner, reports ReportPruner) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		reports:  reports,
	}
}

// Apply registers the jobs. Unknown kinds and bad schedules are
// rejected up front rather than failing silently at fire time.
func (s *Scheduler) Apply(jobs []Job) error {
	for _, job := range jobs {
		if job.Kind != KindPruneSessions && job.Kind != KindPruneReports {
			return fmt.Errorf("maintenance: job %q has unknown kind %q", job.Name, job.Kind)
		}
		if _, err := time.ParseDuration(job.MaxAge); err != nil {
			return fmt.Errorf("maintenance: job %q max_age: %w", job.Name, err)
		}
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(job) }); err != nil {
			return fmt.Errorf("maintenance: job %q schedule: %w", job.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) runJob(job Job) {
	maxAge, err := time.ParseDuration(job.MaxAge)
	if err != nil {
		log.Printf("maintenance: job %q max_age: %v", job.Name, err)
		return
	}
	var pruned int
	switch job.Kind {
	case KindPruneSessions:
		if s.sessions == nil {
			return
		}
		pruned, err = s.sessions.PruneIdle(maxAge)
	case KindPruneReports:
		if s.reports == nil {
			return
		}
		pruned, err = s.reports.PruneOlderThan(maxAge)
	}
	if err != nil {
		log.Printf("maintenance: job %q failed: %v", job.Name, err)
		return
	}
	log.Printf("maintenance: job %q pruned %d entries", job.Name, pruned)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
