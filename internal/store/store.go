// Package store keeps the deduplicated set of canonical postings across runs.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spigell/job-sift/internal/posting"
	"go.uber.org/zap"
)

// MergeReport counts what a merge did to the store.
type MergeReport struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Add accumulates o into r.
func (r *MergeReport) Add(o MergeReport) {
	r.Added += o.Added
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
}

// MergeConflictError means two records claim one identity or a record does not
// match its own identity key. Either way the key derivation is broken and the
// store refuses the write.
type MergeConflictError struct {
	Key    string
	Reason string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %q: %s", e.Key, e.Reason)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for first_seen and last_seen.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. A no-op logger is used by default.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store holds exactly one record per identity key. Merges are serialized.
type Store struct {
	mu      sync.RWMutex
	records map[string]*posting.Canonical

	now    func() time.Time
	logger *zap.Logger
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*posting.Canonical),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Merge folds batch into the store in order. New keys are inserted with
// first_seen = last_seen = now. Known keys get last_seen = now and the union
// of sources; their title, description and first_seen are never replaced.
// The batch is validated up front so a conflict leaves the store untouched.
func (s *Store) Merge(batch []posting.Canonical) (MergeReport, error) {
	for i := range batch {
		if err := verifyKey(batch[i]); err != nil {
			return MergeReport{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var report MergeReport

	for _, incoming := range batch {
		existing, ok := s.records[incoming.IdentityKey]
		if !ok {
			record := incoming.Clone()
			record.FirstSeen = now
			record.LastSeen = now
			s.records[record.IdentityKey] = &record
			report.Added++
			continue
		}

		changed := false
		if now.After(existing.LastSeen) {
			existing.LastSeen = now
			changed = true
		}
		for _, src := range incoming.Sources {
			if existing.AddSource(src) {
				changed = true
			}
		}
		if incoming.ScrapedAt.After(existing.ScrapedAt) {
			existing.ScrapedAt = incoming.ScrapedAt
			changed = true
		}

		if changed {
			report.Updated++
		} else {
			report.Unchanged++
		}
	}

	s.logger.Debug("merged batch",
		zap.Int("batch", len(batch)),
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("total", len(s.records)),
	)

	return report, nil
}

// All returns a copy of every record ordered by identity key.
func (s *Store) All() []posting.Canonical {
	return s.collect(func(*posting.Canonical) bool { return true })
}

// BySource returns the records reported by the named source, ordered by identity key.
func (s *Store) BySource(name string) []posting.Canonical {
	return s.collect(func(c *posting.Canonical) bool { return c.HasSource(name) })
}

// Get returns a copy of the record stored under key.
func (s *Store) Get(key string) (posting.Canonical, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return posting.Canonical{}, false
	}
	return record.Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) collect(keep func(*posting.Canonical) bool) []posting.Canonical {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]posting.Canonical, 0, len(s.records))
	for _, record := range s.records {
		if keep(record) {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityKey < out[j].IdentityKey })
	return out
}

func verifyKey(c posting.Canonical) error {
	key, err := posting.IdentityKey(c)
	if err != nil {
		return &MergeConflictError{Key: c.IdentityKey, Reason: err.Error()}
	}
	if key != c.IdentityKey {
		return &MergeConflictError{
			Key:    c.IdentityKey,
			Reason: fmt.Sprintf("record derives identity key %q", key),
		}
	}
	return nil
}
