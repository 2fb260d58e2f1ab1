package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// latestFile is the pointer file in the backup root naming the newest
// completed generation.
const latestFile = "latest"

// metaDirName holds the per-generation metadata JSON files, beside the
// generations rather than inside them.
const metaDirName = ".meta"

// Store persists generation metadata and the latest pointer under a backup
// root.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a Store rooted at the backup directory. Nothing is
// created until the first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) metaDir() string {
	return filepath.Join(s.root, metaDirName)
}

func (s *Store) metaPath(generation string) string {
	return filepath.Join(s.metaDir(), generation+".json")
}

// Write persists metadata for a generation atomically: temp file then
// rename, so a crash never leaves a half-written record.
func (s *Store) Write(meta *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.metaDir(), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	path := s.metaPath(meta.Job.Generation)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming metadata file: %w", err)
	}

	return nil
}

// Read loads the metadata for one generation.
func (s *Store) Read(generation string) (*Metadata, error) {
	data, err := os.ReadFile(s.metaPath(generation))
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", generation, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", generation, err)
	}
	return &meta, nil
}

// Remove deletes the metadata file for a generation. Absent files are not an
// error.
func (s *Store) Remove(generation string) error {
	err := os.Remove(s.metaPath(generation))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all generation metadata newest-first. Unparseable files are
// skipped.
func (s *Store) List() ([]*Metadata, error) {
	files, err := os.ReadDir(s.metaDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("reading metadata directory: %w", err)
	}

	var metas []*Metadata
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		meta, err := s.Read(strings.TrimSuffix(f.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Job.StartedAt.After(metas[j].Job.StartedAt)
	})

	if metas == nil {
		metas = []*Metadata{}
	}
	return metas, nil
}

// ReadLatest returns the generation named by the latest pointer, or "" when
// no pointer exists yet.
func (s *Store) ReadLatest() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, latestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading latest pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteLatest atomically points the latest file at a generation.
func (s *Store) WriteLatest(generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, latestFile)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(generation+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing latest pointer temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming latest pointer: %w", err)
	}
	return nil
}

// LastJob returns the job record of the generation the latest pointer names,
// or nil when no backup has completed yet.
func (s *Store) LastJob() (*Job, error) {
	latest, err := s.ReadLatest()
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, nil
	}

	meta, err := s.Read(latest)
	if err != nil {
		return nil, err
	}
	job := meta.Job
	return &job, nil
}
