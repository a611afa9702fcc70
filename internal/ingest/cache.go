package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a cached source document stays valid
// before it is re-downloaded.
const DefaultCacheTTL = 24 * time.Hour

// CacheIsFresh reports whether path exists and was modified within ttl.
// A dangling .tmp file from an interrupted download never matches: only
// completed downloads get renamed to the final path.
func CacheIsFresh(path string, ttl time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= ttl
}

// DownloadFile streams url into path. The body is written to a temp
// file and renamed only after the stream completes, so an aborted
// download cannot leave a truncated file at the final path.
func DownloadFile(ctx context.Context, client *http.Client, url, path string, logger zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("download failed: unexpected status %d", resp.StatusCode)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	start := time.Now()
	written, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to finalize download: %w", err)
	}

	logger.Info().
		Str("url", url).
		Int64("bytes", written).
		Dur("took", time.Since(start)).
		Msg("download complete")
	return nil
}
