package maintenance

import (
	"path/filepath"
	"testing"
	"time"
)

type fakeSessions struct {
	gotMaxIdle time.Duration
	calls      int
}

func (f *fakeSessions) PruneIdle(maxIdle time.Duration) (int, error) {
	f.gotMaxIdle = maxIdle
	f.calls++
	return 3, nil
}

type fakeReports struct {
	calls int
}

func (f *fakeReports) PruneOlderThan(time.Duration) (int, error) {
	f.calls++
	return 1, nil
}

func TestLoadJobsMissingFileUsesDefaults(t *testing.T) {
	jobs, err := LoadJobs(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].Kind != KindPruneSessions || jobs[1].Kind != KindPruneReports {
		t.Errorf("default kinds = %s, %s", jobs[0].Kind, jobs[1].Kind)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	in := []Job{{Name: "custom", Schedule: "*/5 * * * *", Kind: KindPruneReports, MaxAge: "1h"}}
	if err := SaveJobs(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadJobs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("round trip = %+v", out)
	}
}

func TestApplyRejectsBadJobs(t *testing.T) {
	s := NewScheduler(&fakeSessions{}, &fakeReports{})
	if err := s.Apply([]Job{{Name: "x", Schedule: "0 3 * * *", Kind: "mystery", MaxAge: "1h"}}); err == nil {
		t.Error("unknown kind must be rejected")
	}
	if err := s.Apply([]Job{{Name: "x", Schedule: "not a schedule", Kind: KindPruneSessions, MaxAge: "1h"}}); err == nil {
		t.Error("bad schedule must be rejected")
	}
	if err := s.Apply([]Job{{Name: "x", Schedule: "0 3 * * *", Kind: KindPruneSessions, MaxAge: "soon"}}); err == nil {
		t.Error("bad max_age must be rejected")
	}
}

func TestRunJobDispatches(t *testing.T) {
	sessions := &fakeSessions{}
	reports := &fakeReports{}
	s := NewScheduler(sessions, reports)

	s.runJob(Job{Name: "a", Kind: KindPruneSessions, MaxAge: "720h"})
	if sessions.calls != 1 || sessions.gotMaxIdle != 720*time.Hour {
		t.Errorf("sessions pruner calls=%d maxIdle=%s", sessions.calls, sessions.gotMaxIdle)
	}
	s.runJob(Job{Name: "b", Kind: KindPruneReports, MaxAge: "1h"})
	if reports.calls != 1 {
		t.Errorf("reports pruner calls = %d", reports.calls)
	}
}
