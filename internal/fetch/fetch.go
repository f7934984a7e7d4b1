package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"updagent/internal/logging"
)

// Fetcher downloads a URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

const (
	fetchAttempts = 3
	fetchBackoff  = 2 * time.Second
)

// HTTPFetcher downloads into dest + ".part" and renames on success, so a
// partially written package never shadows a complete one.
type HTTPFetcher struct {
	Client  *http.Client
	Tokens  TokenSource
	Backoff time.Duration
	Log     logging.Logger
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: 10 * time.Minute},
		Tokens:  NoToken{},
		Backoff: fetchBackoff,
		Log:     logging.New("fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := f.fetchOnce(ctx, url, dest); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.Log.WithError(err).WithField("attempt", attempt).Warn("download failed")
			select {
			case <-time.After(f.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("FETCH_EXHAUSTED: %d attempts: %w", fetchAttempts, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("FETCH_REQ: %w", err)
	}
	if err := authorize(ctx, req, f.Tokens); err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("FETCH_GET: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FETCH_STATUS: unexpected status %s for %s", resp.Status, url)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("FETCH_DEST_DIR: %w", err)
	}
	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("FETCH_PART: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(part)
		return fmt.Errorf("FETCH_WRITE: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("FETCH_CLOSE: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("FETCH_COMMIT: %w", err)
	}
	return nil
}
