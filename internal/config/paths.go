package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"updagent/internal/archive"
)

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".updagent/config.toml"
	}
	return filepath.Join(home, ".updagent", "config.toml")
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

// Layout is the agent's working directory tree under the configured root.
type Layout struct {
	Root        string
	PackageName string
}

func NewLayout(cfg Config) (Layout, error) {
	root, err := ExpandPath(cfg.Root)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: filepath.Clean(root), PackageName: cfg.PackageName}, nil
}

func (l Layout) DownloadDir() string { return filepath.Join(l.Root, "downloads") }
func (l Layout) ExtractDir() string  { return filepath.Join(l.Root, "extract") }
func (l Layout) BackupDir() string   { return filepath.Join(l.Root, "backup") }

// PackagePath is where the downloaded archive lands.
func (l Layout) PackagePath() string {
	return filepath.Join(l.DownloadDir(), l.PackageName)
}

// PayloadDir is the directory the package contents unpack into, named after
// the archive without its extension.
func (l Layout) PayloadDir() string {
	return filepath.Join(l.ExtractDir(), archive.Stem(l.PackageName))
}

// PackageLedgerPath tracks digests of downloaded archives.
func (l Layout) PackageLedgerPath() string {
	return filepath.Join(l.Root, "package_hashes.json")
}

// ExecLedgerPath tracks digests of service executables. It lives inside the
// extract tree and survives extraction cleanup.
func (l Layout) ExecLedgerPath() string {
	return filepath.Join(l.ExtractDir(), "service_hashes.json")
}

func (l Layout) AuditPath() string {
	return filepath.Join(l.Root, "audit.log")
}

// EnsureLayout creates the working directories.
func (l Layout) EnsureLayout() error {
	for _, dir := range []string{l.Root, l.DownloadDir(), l.ExtractDir(), l.BackupDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
