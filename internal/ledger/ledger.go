// Package ledger persists the path -> SHA-256 mapping used for change
// detection. One ledger file tracks downloaded packages, a second one tracks
// the managed service executables, so churn in one domain never disturbs
// detection in the other.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"updagent/internal/fsutil"
	"updagent/internal/logging"
)

// Entry is one recorded digest. The on-disk shape is a JSON object keyed by
// normalized path with these fields per entry.
type Entry struct {
	Digest     string `json:"file_hash"`
	RecordedAt int64  `json:"timestamp"`
	Readable   string `json:"readable_timestamp"`
}

// Ledger serializes access to one ledger file. Concurrency is in-process
// only; a single agent instance per host is assumed.
type Ledger struct {
	path string
	mu   sync.Mutex
	log  logging.Logger
}

func New(path string) *Ledger {
	return &Ledger{path: path, log: logging.New("ledger")}
}

// Path returns the backing file location.
func (l *Ledger) Path() string { return l.path }

// Get looks up the stored digest for path. A missing or corrupt ledger file
// reads as empty, never as an error.
func (l *Ledger) Get(path string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.read()
	e, ok := entries[Normalize(path)]
	if !ok || e.Digest == "" {
		return "", false
	}
	return e.Digest, true
}

// Put upserts the digest for path. Last write wins.
func (l *Ledger) Put(path, digest string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.read()
	now := time.Now()
	entries[Normalize(path)] = Entry{
		Digest:     digest,
		RecordedAt: now.Unix(),
		Readable:   now.Format("2006-01-02 15:04:05"),
	}
	return l.write(entries)
}

// Reset truncates the ledger to an empty object.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reset()
}

func (l *Ledger) reset() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	return fsutil.AtomicWrite(l.path, []byte("{}\n"), 0o644)
}

// read loads all entries. Parse failures self-heal: the file is reset to an
// empty object and an empty map is returned.
func (l *Ledger) read() map[string]Entry {
	blob, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.WithError(err).Warnf("unreadable ledger %s, treating as empty", l.path)
		}
		return map[string]Entry{}
	}
	var entries map[string]Entry
	if err := json.Unmarshal(blob, &entries); err != nil || entries == nil {
		l.log.Warnf("corrupt ledger %s, resetting to empty", l.path)
		if err := l.reset(); err != nil {
			l.log.WithError(err).Warnf("ledger reset failed")
		}
		return map[string]Entry{}
	}
	return entries
}

func (l *Ledger) write(entries map[string]Entry) error {
	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	return fsutil.AtomicWrite(l.path, blob, 0o644)
}

var sepRun = regexp.MustCompile(`[\\/]+`)

// Normalize folds path separator and case variance so the same file never
// produces two ledger keys.
func Normalize(path string) string {
	return strings.ToLower(sepRun.ReplaceAllString(path, "/"))
}
