package agent

import (
	"context"
	"errors"
	"fmt"

	"updagent/internal/audit"
	"updagent/internal/config"
	"updagent/internal/fsutil"
	"updagent/internal/policy"
)

// PerformInitialInstall runs once at startup: fetch the package and, when
// installation is warranted, register and start every managed service that
// is not already present. It reports whether any service was installed.
func (a *Agent) PerformInitialInstall(ctx context.Context) (bool, error) {
	a.Log.Info("initial install pass")
	if !a.fetchPackage(ctx) {
		return false, nil
	}
	present, err := a.Monitor.InitialInstall()
	if err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}
	if err := a.Extractor.ExtractAll(a.Layout.PackagePath(), a.Layout.ExtractDir()); err != nil {
		return false, err
	}

	pol := policy.ReadInstallPolicy(a.Layout.PayloadDir())
	allInstalled := a.allInstalled()
	if !policy.ShouldInstall(pol, allInstalled) {
		a.Log.Info("installation not required")
		a.cleanupExtraction()
		return false, nil
	}

	// An explicitly enabled policy reinstalls present registrations too;
	// an install driven only by missing services leaves healthy ones alone.
	reinstallPresent := pol.Present && pol.Enabled
	var errs []error
	installedAny := false
	for _, s := range a.selectServices(pol) {
		if !reinstallPresent && a.Ctl.IsInstalled(s.Name) {
			continue
		}
		staged := a.stagedPath(s)
		if !fsutil.Exists(staged) {
			a.Log.Warnf("package carries no executable for %s, skipping", s.Name)
			continue
		}
		if err := a.Reinstaller.Reinstall(a.descriptor(s), staged); err != nil {
			errs = append(errs, fmt.Errorf("install %s: %w", s.Name, err))
			continue
		}
		installedAny = true
		a.event("install", "service", "ok", s.Name)
	}
	if installedAny {
		a.cleanupExtraction()
	}
	return installedAny, errors.Join(errs...)
}

// selectServices filters the configured services down to the ones the
// install policy names. An empty policy list means all of them.
func (a *Agent) selectServices(pol policy.InstallPolicy) []config.ServiceConfig {
	if len(pol.Services) == 0 {
		return a.Cfg.Services
	}
	wanted := map[string]bool{}
	for _, entry := range pol.Services {
		wanted[entry.Name] = true
	}
	var out []config.ServiceConfig
	for _, s := range a.Cfg.Services {
		if wanted[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (a *Agent) event(op, phase, status, service string) {
	if a.Audit == nil {
		return
	}
	_ = a.Audit.Log(audit.Event{Operation: op, Phase: phase, Status: status, Service: service})
}
