package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
)

// OutputStore writes report and transcript files under one outputs
// directory with timestamped names. It backs the report worker's sink
// and the maintenance pruner.
type OutputStore struct {
	dir string
}

func NewOutputStore(dir string) (*OutputStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("output store: dir is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("output store: %w", err)
	}
	return &OutputStore{dir: dir}, nil
}

func (s *OutputStore) Dir() string {
	return s.dir
}

// Save writes content as markdown under a timestamped, sanitized name
// and returns the full path.
func (s *OutputStore) Save(name, content string) (string, error) {
	base := fmt.Sprintf("%s_%s.md", Sanitize(name), time.Now().Format("20060102_150405"))
	path := filepath.Join(s.dir, base)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("output store: write %s: %w", base, err)
	}
	return path, nil
}

// List returns the stored file names, newest first.
func (s *OutputStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("output store: %w", err)
	}
	type stamped struct {
		name string
		mod  time.Time
	}
	var files []stamped
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, stamped{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// PruneOlderThan removes files last modified before the cutoff and
// returns how many were deleted.
func (s *OutputStore) PruneOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("output store: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
				pruned++
			}
		}
	}
	return pruned, nil
}

// Sanitize strips anything that has no business in a filename.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "output"
	}
	return out
}
