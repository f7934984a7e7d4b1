// Package hashing computes content digests and classifies files as changed
// or unchanged against a ledger.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"updagent/internal/fsutil"
	"updagent/internal/ledger"
)

const chunkSize = 8192

// FileSHA256 streams the file through SHA-256 in fixed-size chunks and
// returns the lowercase hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("HASH_OPEN: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
		return "", fmt.Errorf("HASH_READ: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Changed reports whether path's current digest differs from the one stored
// in led. First-seen files count as changed. An unreadable file is an error,
// never silently "unchanged".
func Changed(led *ledger.Ledger, path string) (bool, error) {
	current, err := FileSHA256(path)
	if err != nil {
		return false, err
	}
	stored, ok := led.Get(path)
	if !ok {
		return true, nil
	}
	return stored != current, nil
}

// Record computes path's digest and upserts it into led.
func Record(led *ledger.Ledger, path string) (string, error) {
	digest, err := FileSHA256(path)
	if err != nil {
		return "", err
	}
	if err := led.Put(path, digest); err != nil {
		return "", fmt.Errorf("HASH_STORE: %w", err)
	}
	return digest, nil
}

// CheckAndRecord compares the installed file against its staged replacement
// and decides whether a replacement is due. When it is, the staged file's
// digest is recorded under the installed path so a later pass can tell
// whether the replacement actually landed. Returns true when the installed
// file must be replaced.
func CheckAndRecord(led *ledger.Ledger, installedPath, stagedPath string) (bool, error) {
	if !fsutil.Exists(installedPath) {
		return false, fmt.Errorf("HASH_TARGET_MISSING: %s", installedPath)
	}
	installed, err := FileSHA256(installedPath)
	if err != nil {
		return false, err
	}
	if !fsutil.Exists(stagedPath) {
		return false, fmt.Errorf("HASH_STAGED_MISSING: %s", stagedPath)
	}
	staged, err := FileSHA256(stagedPath)
	if err != nil {
		return false, err
	}

	if installed == staged {
		// Already on the target content; make sure the ledger says so.
		if _, ok := led.Get(installedPath); !ok {
			if err := led.Put(installedPath, staged); err != nil {
				return false, fmt.Errorf("HASH_STORE: %w", err)
			}
		}
		return false, nil
	}

	stored, ok := led.Get(installedPath)
	if !ok {
		if err := led.Put(installedPath, staged); err != nil {
			return false, fmt.Errorf("HASH_STORE: %w", err)
		}
		return true, nil
	}
	if stored == staged {
		// Target digest already recorded by an earlier attempt that did not
		// land; the installed binary still differs, so replacement is due.
		return true, nil
	}
	if err := led.Put(installedPath, staged); err != nil {
		return false, fmt.Errorf("HASH_STORE: %w", err)
	}
	return true, nil
}
