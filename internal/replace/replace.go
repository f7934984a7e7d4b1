// Package replace swaps a service executable for a freshly staged build. The
// running binary is backed up before it is overwritten, and any failure after
// that point restores the backup and brings the old build back up.
package replace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"updagent/internal/audit"
	"updagent/internal/fsutil"
	"updagent/internal/logging"
	"updagent/internal/svc"
)

const (
	stopAttempts           = 10
	startVerifyAttempts    = 5
	rollbackVerifyAttempts = 3
)

// Replacer performs in-place executable replacement with restart.
type Replacer struct {
	Ctl       svc.Controller
	BackupDir string
	Audit     *audit.Logger
	Log       logging.Logger

	// OnRollback is invoked once per rollback actually performed, never for
	// aborts that happen before the backup step.
	OnRollback func(service string)

	// Poll intervals, overridable so tests do not sleep for real.
	StopPollInterval  time.Duration
	StartPollInterval time.Duration
}

func NewReplacer(ctl svc.Controller, backupDir string, auditLog *audit.Logger) *Replacer {
	return &Replacer{
		Ctl:               ctl,
		BackupDir:         backupDir,
		Audit:             auditLog,
		Log:               logging.New("replace"),
		StopPollInterval:  time.Second,
		StartPollInterval: 3 * time.Second,
	}
}

// ReplaceAndRestart stops name, backs up targetPath, overwrites it with
// newPath, and starts the service again. Preconditions are checked before any
// state changes: a stop that never lands leaves the filesystem untouched.
func (r *Replacer) ReplaceAndRestart(name, newPath, targetPath string) error {
	if !r.Ctl.IsInstalled(name) {
		return fmt.Errorf("REPL_NOT_INSTALLED: service %s is not registered", name)
	}
	if !fsutil.Exists(newPath) {
		return fmt.Errorf("REPL_SOURCE_MISSING: staged executable %s not found", newPath)
	}
	if !fsutil.Exists(targetPath) {
		return fmt.Errorf("REPL_TARGET_MISSING: installed executable %s not found", targetPath)
	}

	wasRunning := r.Ctl.IsRunning(name)
	if wasRunning {
		if err := r.stopAndWait(name); err != nil {
			return err
		}
	}

	backupPath, err := r.backup(targetPath)
	if err != nil {
		return err
	}
	r.event("replace", "backup", "ok", name, backupPath)

	if err := r.overwrite(newPath, targetPath); err != nil {
		r.rollback(name, backupPath, targetPath, wasRunning)
		return err
	}
	if !fsutil.Exists(targetPath) {
		r.rollback(name, backupPath, targetPath, wasRunning)
		return fmt.Errorf("REPL_COMMIT_VERIFY: %s missing after replacement", targetPath)
	}

	if err := r.startAndVerify(name); err != nil {
		r.event("replace", "start", "error", name, err.Error())
		r.rollback(name, backupPath, targetPath, wasRunning)
		return err
	}

	if err := os.Remove(backupPath); err != nil {
		r.Log.WithError(err).Warnf("backup %s left behind", backupPath)
	}
	r.event("replace", "commit", "ok", name, targetPath)
	return nil
}

func (r *Replacer) stopAndWait(name string) error {
	if err := r.Ctl.Stop(name); err != nil {
		return fmt.Errorf("REPL_STOP: %w", err)
	}
	for attempt := 0; attempt < stopAttempts; attempt++ {
		if !r.Ctl.IsRunning(name) {
			return nil
		}
		time.Sleep(r.StopPollInterval)
	}
	return fmt.Errorf("REPL_STOP_TIMEOUT: %s still running after %d checks", name, stopAttempts)
}

func (r *Replacer) backup(targetPath string) (string, error) {
	if err := os.MkdirAll(r.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("REPL_BACKUP_DIR: %w", err)
	}
	backupPath := filepath.Join(r.BackupDir, filepath.Base(targetPath))
	if fsutil.Exists(backupPath) {
		backupPath += ".bak"
	}
	if err := fsutil.CopyFile(targetPath, backupPath); err != nil {
		return "", fmt.Errorf("REPL_BACKUP: %w", err)
	}
	return backupPath, nil
}

func (r *Replacer) overwrite(newPath, targetPath string) error {
	if os.Getenv("UPDAGENT_TEST_FAIL_REPLACE") == "1" {
		return fmt.Errorf("REPL_TEST_FAIL: injected replacement failure")
	}
	if err := fsutil.CopyFile(newPath, targetPath); err != nil {
		return fmt.Errorf("REPL_COMMIT: %w", err)
	}
	return nil
}

func (r *Replacer) startAndVerify(name string) error {
	if err := r.Ctl.Start(name); err != nil {
		return fmt.Errorf("REPL_START: %w", err)
	}
	for attempt := 0; attempt < startVerifyAttempts; attempt++ {
		if r.Ctl.IsRunning(name) {
			return nil
		}
		time.Sleep(r.StartPollInterval)
	}
	return fmt.Errorf("REPL_START_VERIFY: %s not running after %d checks", name, startVerifyAttempts)
}

// rollback restores the backed-up executable and, when the service was
// running before the attempt, brings it back up on the old build.
func (r *Replacer) rollback(name, backupPath, targetPath string, wasRunning bool) {
	r.event("replace", "rollback", "start", name, targetPath)
	if r.OnRollback != nil {
		r.OnRollback(name)
	}
	if r.Ctl.IsRunning(name) {
		if err := r.Ctl.Stop(name); err != nil {
			r.Log.WithError(err).Warnf("rollback: stop %s failed", name)
		}
	}
	if err := fsutil.CopyFile(backupPath, targetPath); err != nil {
		r.event("replace", "rollback", "error", name, err.Error())
		r.Log.WithError(err).Errorf("rollback: cannot restore %s", targetPath)
		return
	}
	if err := os.Remove(backupPath); err != nil {
		r.Log.WithError(err).Warnf("rollback: backup %s left behind", backupPath)
	}
	if !wasRunning {
		r.event("replace", "rollback", "ok", name, targetPath)
		return
	}
	if err := r.Ctl.Start(name); err != nil {
		r.event("replace", "rollback", "error", name, err.Error())
		r.Log.WithError(err).Errorf("rollback: cannot start %s", name)
		return
	}
	for attempt := 0; attempt < rollbackVerifyAttempts; attempt++ {
		if r.Ctl.IsRunning(name) {
			r.event("replace", "rollback", "ok", name, targetPath)
			return
		}
		time.Sleep(r.StartPollInterval)
	}
	r.event("replace", "rollback", "error", name, "service not running on restored build")
	r.Log.Errorf("rollback: %s not running on restored build", name)
}

func (r *Replacer) event(op, phase, status, service, msg string) {
	if r.Audit == nil {
		return
	}
	_ = r.Audit.Log(audit.Event{Operation: op, Phase: phase, Status: status, Service: service, Message: msg})
}
