package hashing

import (
	"sync"

	"updagent/internal/fsutil"
	"updagent/internal/ledger"
	"updagent/internal/logging"
)

// PackageMonitor watches one file (the downloaded package) across passes.
// Beyond plain change detection it carries a one-shot latch: the very first
// observation with no stored digest both records the hash and signals that
// action is required, at most once per process lifetime. That keeps a fresh
// agent from mistaking its own cold start for a remote change forever, while
// still forcing exactly one initial reconciliation.
type PackageMonitor struct {
	mu    sync.Mutex
	led   *ledger.Ledger
	path  string
	armed bool
	log   logging.Logger
}

func NewPackageMonitor(led *ledger.Ledger, path string) *PackageMonitor {
	m := &PackageMonitor{
		led:   led,
		path:  path,
		armed: true,
		log:   logging.New("monitor"),
	}
	// Seed the ledger when the watched file predates this process, so the
	// first pass compares instead of re-latching.
	if fsutil.Exists(path) {
		if _, ok := led.Get(path); !ok {
			if _, err := Record(led, path); err != nil {
				m.log.WithError(err).Warnf("could not seed digest for %s", path)
			}
		}
	}
	return m
}

// InitialInstall records the watched file's digest for first-run flows and
// reports whether the file was present and hashable.
func (m *PackageMonitor) InitialInstall() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !fsutil.Exists(m.path) {
		m.log.Errorf("package %s does not exist", m.path)
		return false, nil
	}
	if _, err := Record(m.led, m.path); err != nil {
		return false, err
	}
	return true, nil
}

// ShouldExtract reports whether the watched file changed since the last
// observation. A first-seen file fires the one-shot latch.
func (m *PackageMonitor) ShouldExtract() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !fsutil.Exists(m.path) {
		m.log.Warnf("package %s does not exist, nothing to compare", m.path)
		return false, nil
	}
	current, err := FileSHA256(m.path)
	if err != nil {
		return false, err
	}
	stored, ok := m.led.Get(m.path)
	if !ok {
		if !m.armed {
			// Latch already spent; record and wait for a real change.
			if err := m.led.Put(m.path, current); err != nil {
				return false, err
			}
			return false, nil
		}
		m.armed = false
		if err := m.led.Put(m.path, current); err != nil {
			return false, err
		}
		m.log.Info("first observation of package, forcing reconciliation")
		return true, nil
	}
	if stored != current {
		if err := m.led.Put(m.path, current); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
