package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spigell/job-sift/internal/posting"
)

// SnapshotVersion is the record-set layout written by Save.
const SnapshotVersion = 1

// ErrUnsupportedVersion is returned by Load for snapshots written by another layout.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

type snapshot struct {
	Version  int                 `json:"version"`
	SavedAt  time.Time           `json:"saved_at"`
	Postings []posting.Canonical `json:"postings"`
}

// Load reads a snapshot written by Save. A missing or empty file yields an empty store.
func Load(path string, opts ...Option) (*Store, error) {
	s := New(opts...)

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return s, nil
	}

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", path, err)
	}

	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d in %q", ErrUnsupportedVersion, snap.Version, path)
	}

	for i := range snap.Postings {
		record := snap.Postings[i]
		slices.Sort(record.Sources)
		record.Sources = slices.Compact(record.Sources)
		if err := verifyKey(record); err != nil {
			return nil, err
		}
		if _, dup := s.records[record.IdentityKey]; dup {
			return nil, &MergeConflictError{Key: record.IdentityKey, Reason: "snapshot holds duplicate records"}
		}
		s.records[record.IdentityKey] = &record
	}

	return s, nil
}

// Save writes the store to path. The file is replaced atomically.
func (s *Store) Save(path string) error {
	snap := snapshot{
		Version:  SnapshotVersion,
		SavedAt:  s.now().UTC(),
		Postings: s.All(),
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot %q: %w", path, err)
	}

	return nil
}
