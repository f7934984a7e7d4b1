package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"updagent/internal/config"
	"updagent/internal/fsutil"
	"updagent/internal/hashing"
	"updagent/internal/policy"
)

// PerformUpgrade runs one scheduled pass: fetch the package, decide whether
// anything changed, and replace the executables that did. It reports whether
// any service was updated; per-service failures are joined, never fatal to
// the other services.
func (a *Agent) PerformUpgrade(ctx context.Context) (bool, error) {
	a.Log.Info("upgrade pass")
	a.Metrics.Pass()
	if !a.fetchPackage(ctx) {
		return false, nil
	}

	should, err := a.Monitor.ShouldExtract()
	if err != nil {
		return false, err
	}
	if !should {
		// The package digest can match while an installed executable has
		// drifted from its recorded digest; catch that here.
		should = a.anyExecutableDrifted()
	}
	if !should {
		a.Log.Info("package unchanged, nothing to do")
		if err := os.Remove(a.Layout.PackagePath()); err != nil {
			a.Log.WithError(err).Warn("stale package left behind")
		}
		return false, nil
	}

	if err := a.Extractor.ExtractAll(a.Layout.PackagePath(), a.Layout.ExtractDir()); err != nil {
		return false, err
	}
	if err := os.Remove(a.Layout.PackagePath()); err != nil {
		a.Log.WithError(err).Warn("extracted package left behind")
	}

	up := policy.ReadUpgradePolicy(a.Layout.PayloadDir())
	var errs []error
	updatedAny := false
	for _, s := range a.Cfg.Services {
		updated, err := a.upgradeService(s, up.FullReinstall)
		if err != nil {
			errs = append(errs, fmt.Errorf("upgrade %s: %w", s.Name, err))
		}
		if updated {
			updatedAny = true
			a.Metrics.ServiceUpdated(s.Name)
			a.event("upgrade", "service", "ok", s.Name)
		}
	}
	if updatedAny {
		a.cleanupExtraction()
	}
	return updatedAny, errors.Join(errs...)
}

func (a *Agent) upgradeService(s config.ServiceConfig, fullReinstall bool) (bool, error) {
	staged := a.stagedPath(s)
	if !fsutil.Exists(staged) {
		a.Log.Debugf("package carries no executable for %s", s.Name)
		return false, nil
	}
	if !fsutil.Exists(s.Executable) {
		if !fullReinstall {
			return false, fmt.Errorf("UPG_TARGET_MISSING: installed executable %s not found and policy forbids reinstall", s.Executable)
		}
		if err := a.Reinstaller.Reinstall(a.descriptor(s), staged); err != nil {
			return false, err
		}
		return true, nil
	}

	changed, err := hashing.CheckAndRecord(a.Exes, s.Executable, staged)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if fullReinstall {
		if err := a.Reinstaller.Reinstall(a.descriptor(s), staged); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := a.Replacer.ReplaceAndRestart(s.Name, staged, s.Executable); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Agent) anyExecutableDrifted() bool {
	for _, s := range a.Cfg.Services {
		if !fsutil.Exists(s.Executable) {
			if a.Ctl.IsInstalled(s.Name) {
				a.Log.Warnf("registration for %s present but executable missing, forcing reconciliation", s.Name)
				return true
			}
			continue
		}
		changed, err := hashing.Changed(a.Exes, s.Executable)
		if err != nil {
			// Cannot prove the binary unchanged, so it is not.
			a.Log.WithError(err).Warnf("cannot compare digest for %s, forcing reconciliation", s.Name)
			return true
		}
		if changed {
			a.Log.Infof("executable for %s drifted from its recorded digest", s.Name)
			return true
		}
	}
	return false
}

// cleanupExtraction clears the extract tree after a pass, keeping only the
// executable digest ledger.
func (a *Agent) cleanupExtraction() {
	keep := filepath.Base(a.Layout.ExecLedgerPath())
	entries, err := os.ReadDir(a.Layout.ExtractDir())
	if err != nil {
		a.Log.WithError(err).Warn("cannot clean extract dir")
		return
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.Layout.ExtractDir(), e.Name())); err != nil {
			a.Log.WithError(err).Warnf("cannot remove %s", e.Name())
		}
	}
}
