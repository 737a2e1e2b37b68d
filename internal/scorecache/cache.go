// Package scorecache keeps scorer assessments so that re-scoring an unchanged
// posting against an unchanged profile returns the original verdict.
package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/posting"
)

// Key identifies one assessment.
type Key struct {
	IdentityKey string
	Profile     string
	Content     string
	Model       string
}

func (k Key) String() string {
	return strings.Join([]string{k.IdentityKey, k.Profile, k.Content, k.Model}, "|")
}

// KeyFor builds the cache key for scoring p with the given profile fingerprint and model.
func KeyFor(p posting.Canonical, profileFingerprint, model string) Key {
	return Key{
		IdentityKey: p.IdentityKey,
		Profile:     profileFingerprint,
		Content:     ContentHash(p),
		Model:       model,
	}
}

// ContentHash covers every field the scorer sees, so an edited posting is scored again.
func ContentHash(p posting.Canonical) string {
	h := sha256.New()
	for _, part := range []string{p.Title, p.Company, p.Location, p.URL, p.Description} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Cache stores assessments. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key Key) (*ai.Assessment, bool, error)
	Put(ctx context.Context, key Key, a *ai.Assessment) error
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]ai.Assessment
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]ai.Assessment)}
}

func (m *Memory) Get(_ context.Context, key Key) (*ai.Assessment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

func (m *Memory) Put(_ context.Context, key Key, a *ai.Assessment) error {
	if a == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = *a
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
