package replace

import (
	"fmt"
	"os"
	"path/filepath"

	"updagent/internal/audit"
	"updagent/internal/fsutil"
	"updagent/internal/hashing"
	"updagent/internal/ledger"
	"updagent/internal/logging"
	"updagent/internal/svc"
)

// Reinstaller tears a service registration down and rebuilds it from a staged
// executable. Used for first installs and for upgrades where in-place
// replacement cannot apply.
type Reinstaller struct {
	Ctl   svc.Controller
	Exes  *ledger.Ledger
	Audit *audit.Logger
	Log   logging.Logger
}

func NewReinstaller(ctl svc.Controller, exes *ledger.Ledger, auditLog *audit.Logger) *Reinstaller {
	return &Reinstaller{
		Ctl:   ctl,
		Exes:  exes,
		Audit: auditLog,
		Log:   logging.New("reinstall"),
	}
}

// Reinstall removes any existing registration for d, copies stagedPath to the
// install location, registers the service, and starts it. The uninstall is
// attempted once; a registration that survives it aborts the reinstall before
// any file is touched.
func (r *Reinstaller) Reinstall(d svc.Descriptor, stagedPath string) error {
	if !fsutil.Exists(stagedPath) {
		return fmt.Errorf("REIN_SOURCE_MISSING: staged executable %s not found", stagedPath)
	}
	if r.Ctl.IsInstalled(d.Name) {
		if r.Ctl.IsRunning(d.Name) {
			if err := r.Ctl.Stop(d.Name); err != nil {
				r.Log.WithError(err).Warnf("stop %s before uninstall failed", d.Name)
			}
		}
		if err := r.Ctl.Uninstall(d.Name); err != nil {
			return fmt.Errorf("REIN_UNINSTALL: %w", err)
		}
		if r.Ctl.IsInstalled(d.Name) {
			return fmt.Errorf("REIN_UNINSTALL: %s still registered after uninstall", d.Name)
		}
		r.event("reinstall", "uninstall", "ok", d.Name, "")
	}

	if err := os.MkdirAll(filepath.Dir(d.Executable), 0o755); err != nil {
		return fmt.Errorf("REIN_INSTALL_DIR: %w", err)
	}
	if err := fsutil.CopyFile(stagedPath, d.Executable); err != nil {
		return fmt.Errorf("REIN_COPY: %w", err)
	}
	if err := r.Ctl.Install(d); err != nil {
		return fmt.Errorf("REIN_REGISTER: %w", err)
	}
	r.event("reinstall", "register", "ok", d.Name, d.Executable)

	if err := os.Remove(stagedPath); err != nil {
		r.Log.WithError(err).Warnf("staged executable %s left behind", stagedPath)
	}
	if r.Exes != nil {
		if _, err := hashing.Record(r.Exes, d.Executable); err != nil {
			r.Log.WithError(err).Warnf("cannot record digest for %s", d.Executable)
		}
	}

	if err := r.Ctl.Start(d.Name); err != nil {
		r.event("reinstall", "start", "error", d.Name, err.Error())
		return fmt.Errorf("REIN_START: %w", err)
	}
	r.event("reinstall", "start", "ok", d.Name, "")
	return nil
}

func (r *Reinstaller) event(op, phase, status, service, msg string) {
	if r.Audit == nil {
		return
	}
	_ = r.Audit.Log(audit.Event{Operation: op, Phase: phase, Status: status, Service: service, Message: msg})
}
