package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// videoExtensions gates which file references count as loadable media.
var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm"}

// IsVideoPath reports whether the path looks like a video file.
func IsVideoPath(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// MediaContext tracks each session's current active media reference.
// Set once before a run begins; workers only read it.
type MediaContext interface {
	SetCurrent(sessionID, path string) error
	Current(sessionID string) (string, bool)
	Clear(sessionID string) error
}

// MemoryMedia is the in-process media context.
type MemoryMedia struct {
	mu      sync.RWMutex
	current map[string]string
}

func NewMemoryMedia() *MemoryMedia {
	return &MemoryMedia{current: make(map[string]string)}
}

func (m *MemoryMedia) SetCurrent(sessionID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[sessionID] = path
	return nil
}

func (m *MemoryMedia) Current(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.current[sessionID]
	return path, ok && path != ""
}

func (m *MemoryMedia) Clear(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.current, sessionID)
	return nil
}

// RedisMedia shares the media context across processes through Redis,
// for hosts that run several gateway instances against one session space.
type RedisMedia struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMedia(client *redis.Client, ttl time.Duration) *RedisMedia {
	return &RedisMedia{client: client, ttl: ttl}
}

func mediaKey(sessionID string) string {
	return "clipscope:media:" + sessionID
}

func (r *RedisMedia) SetCurrent(sessionID, path string) error {
	if err := r.client.Set(context.Background(), mediaKey(sessionID), path, r.ttl).Err(); err != nil {
		return fmt.Errorf("media context: set %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisMedia) Current(sessionID string) (string, bool) {
	path, err := r.client.Get(context.Background(), mediaKey(sessionID)).Result()
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

func (r *RedisMedia) Clear(sessionID string) error {
	if err := r.client.Del(context.Background(), mediaKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("media context: clear %s: %w", sessionID, err)
	}
	return nil
}
