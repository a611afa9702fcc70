// Package ingest drives the batch pricing ingestion pipeline: freshness
// markers, source-document caching and the per-provider orchestration
// that feeds parsed tuples into the catalog.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// Marker keys, one freshness token per provider source.
const (
	StateKeyAWSPublicationDate = "aws_ec2_publication_date"
	StateKeyAzureIngestionDate = "azure_ingestion_date"
	StateKeyGCPIngestionDate   = "gcp_full_ingestion_date"

	// Publication the cached AWS offer file was downloaded for. The
	// ingestion marker only advances after a successful upsert, so this
	// is tracked separately to tell a reusable cache from a stale one.
	StateKeyAWSOfferCachePublication = "aws_offer_cache_publication"
)

// StateStore persists ingestion freshness markers as a flat
// string-to-string JSON document. Markers are written only after a
// provider's run fully succeeds, which is what makes re-runs skippable.
type StateStore struct {
	path string
	mu   sync.Mutex
}

// NewStateStore returns a store backed by the given file. The file is
// created lazily on the first Set.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Get returns the stored marker for key, or "" when absent. A missing
// or corrupt state file reads as empty: the worst case is a redundant
// ingestion run, never a skipped one.
func (s *StateStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()[key]
}

// Set overwrites the marker for key and persists the whole document
// atomically (temp file + rename).
func (s *StateStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	state[key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *StateStore) load() map[string]string {
	state := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return make(map[string]string)
	}
	return state
}
