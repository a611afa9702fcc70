package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ingestion_state.json")
	s := NewStateStore(path)

	require.Empty(t, s.Get(StateKeyAWSPublicationDate))

	require.NoError(t, s.Set(StateKeyAWSPublicationDate, "2024-01-15T00:00:00Z"))
	require.NoError(t, s.Set(StateKeyAzureIngestionDate, "2024-01-16"))

	require.Equal(t, "2024-01-15T00:00:00Z", s.Get(StateKeyAWSPublicationDate))
	require.Equal(t, "2024-01-16", s.Get(StateKeyAzureIngestionDate))

	// Markers survive a restart.
	reopened := NewStateStore(path)
	require.Equal(t, "2024-01-15T00:00:00Z", reopened.Get(StateKeyAWSPublicationDate))
}

func TestStateStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStateStore(path)

	require.NoError(t, s.Set(StateKeyGCPIngestionDate, "2024-01-01"))
	require.NoError(t, s.Set(StateKeyGCPIngestionDate, "2024-02-01"))
	require.Equal(t, "2024-02-01", s.Get(StateKeyGCPIngestionDate))
}

func TestStateStoreCorruptFileReadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStateStore(path)
	require.Empty(t, s.Get(StateKeyAWSPublicationDate))

	// A corrupt file is recoverable: the next Set rewrites it whole.
	require.NoError(t, s.Set(StateKeyAWSPublicationDate, "2024-03-01T00:00:00Z"))
	require.Equal(t, "2024-03-01T00:00:00Z", s.Get(StateKeyAWSPublicationDate))
}

func TestStateStoreLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStateStore(path)
	require.NoError(t, s.Set(StateKeyAWSPublicationDate, "x"))

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}
