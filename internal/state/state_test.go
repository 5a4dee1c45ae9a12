package state

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clipscope/clipscope/internal/provider"
)

func TestIsVideoPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/videos/a.mp4", true},
		{"/videos/A.MKV", true},
		{"clip.webm", true},
		{"notes.txt", false},
		{"", false},
		{"movie.mp4.bak", false},
	}
	for _, tc := range cases {
		if got := IsVideoPath(tc.path); got != tc.want {
			t.Errorf("IsVideoPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestMemoryMediaRoundTrip(t *testing.T) {
	m := NewMemoryMedia()
	if _, ok := m.Current("s1"); ok {
		t.Error("empty context should report no media")
	}
	if err := m.SetCurrent("s1", "/v/a.mp4"); err != nil {
		t.Fatal(err)
	}
	if path, ok := m.Current("s1"); !ok || path != "/v/a.mp4" {
		t.Errorf("Current = %q, %v", path, ok)
	}
	if _, ok := m.Current("s2"); ok {
		t.Error("sessions must not share media context")
	}
	if err := m.Clear("s1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Current("s1"); ok {
		t.Error("cleared session should report no media")
	}
}

func TestRedisMedia(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	m := NewRedisMedia(client, time.Hour)

	if err := m.SetCurrent("s1", "/v/a.mp4"); err != nil {
		t.Fatal(err)
	}
	if path, ok := m.Current("s1"); !ok || path != "/v/a.mp4" {
		t.Errorf("Current = %q, %v", path, ok)
	}
	if err := m.Clear("s1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Current("s1"); ok {
		t.Error("cleared session should report no media")
	}
}

func TestMemorySessionsMessageCap(t *testing.T) {
	s := NewMemorySessions(3)
	for i := 0; i < 5; i++ {
		msg := provider.Message{Role: provider.RoleUser, Content: string(rune('a' + i))}
		if err := s.AddMessage("s1", msg); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := s.History("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[0].Content != "c" || hist[2].Content != "e" {
		t.Errorf("cap kept wrong messages: %+v", hist)
	}
}

func TestMemorySessionsReclarifyCount(t *testing.T) {
	s := NewMemorySessions(0)
	n, err := s.ReclarifyCount("fresh")
	if err != nil || n != 0 {
		t.Fatalf("fresh session count = %d, %v", n, err)
	}
	if err := s.SetReclarifyCount("fresh", 2); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ReclarifyCount("fresh"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestMemorySessionsPruneIdle(t *testing.T) {
	s := NewMemorySessions(0)
	if _, err := s.Ensure("old"); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.sessions["old"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	if _, err := s.Ensure("fresh"); err != nil {
		t.Fatal(err)
	}

	pruned, err := s.PruneIdle(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, ok := s.sessions["fresh"]; !ok {
		t.Error("fresh session must survive pruning")
	}
}
