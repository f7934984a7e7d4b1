package replace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"updagent/internal/ledger"
	"updagent/internal/svc"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func fastReplacer(ctl svc.Controller, backupDir string) *Replacer {
	r := NewReplacer(ctl, backupDir, nil)
	r.StopPollInterval = 0
	r.StartPollInterval = 0
	return r
}

func TestReplaceAndRestartHappyPath(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "install", "controller.bin")
	staged := filepath.Join(root, "staged", "controller.bin")
	writeFile(t, target, "old build")
	writeFile(t, staged, "new build")

	fake := &svc.Fake{}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, true)

	r := fastReplacer(fake, filepath.Join(root, "backup"))
	if err := r.ReplaceAndRestart("controller", staged, target); err != nil {
		t.Fatalf("replace: %v", err)
	}
	blob, _ := os.ReadFile(target)
	if string(blob) != "new build" {
		t.Fatalf("target not replaced: %q", blob)
	}
	if !fake.IsRunning("controller") {
		t.Fatalf("service not restarted")
	}
	if _, err := os.Stat(filepath.Join(root, "backup", "controller.bin")); err == nil {
		t.Fatalf("backup not removed after commit")
	}
}

func TestReplacePreconditions(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "controller.bin")
	staged := filepath.Join(root, "staged.bin")
	fake := &svc.Fake{}
	r := fastReplacer(fake, filepath.Join(root, "backup"))

	if err := r.ReplaceAndRestart("controller", staged, target); err == nil || !strings.Contains(err.Error(), "REPL_NOT_INSTALLED") {
		t.Fatalf("want REPL_NOT_INSTALLED, got %v", err)
	}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, false)
	if err := r.ReplaceAndRestart("controller", staged, target); err == nil || !strings.Contains(err.Error(), "REPL_SOURCE_MISSING") {
		t.Fatalf("want REPL_SOURCE_MISSING, got %v", err)
	}
	writeFile(t, staged, "new build")
	if err := r.ReplaceAndRestart("controller", staged, target); err == nil || !strings.Contains(err.Error(), "REPL_TARGET_MISSING") {
		t.Fatalf("want REPL_TARGET_MISSING, got %v", err)
	}
}

func TestReplaceStopTimeoutLeavesFilesAlone(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "controller.bin")
	staged := filepath.Join(root, "staged.bin")
	writeFile(t, target, "old build")
	writeFile(t, staged, "new build")

	fake := &svc.Fake{StopIgnored: map[string]bool{"controller": true}}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, true)

	r := fastReplacer(fake, filepath.Join(root, "backup"))
	rollbacks := 0
	r.OnRollback = func(string) { rollbacks++ }
	err := r.ReplaceAndRestart("controller", staged, target)
	if err == nil || !strings.Contains(err.Error(), "REPL_STOP_TIMEOUT") {
		t.Fatalf("want REPL_STOP_TIMEOUT, got %v", err)
	}
	if rollbacks != 0 {
		t.Fatalf("abort before backup must not count as a rollback")
	}
	blob, _ := os.ReadFile(target)
	if string(blob) != "old build" {
		t.Fatalf("target touched despite stop timeout")
	}
	if _, statErr := os.Stat(filepath.Join(root, "backup", "controller.bin")); statErr == nil {
		t.Fatalf("backup created despite stop timeout")
	}
}

func TestReplaceCopyFailureRollsBack(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "controller.bin")
	staged := filepath.Join(root, "staged.bin")
	writeFile(t, target, "old build")
	writeFile(t, staged, "new build")

	fake := &svc.Fake{}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, true)

	t.Setenv("UPDAGENT_TEST_FAIL_REPLACE", "1")
	r := fastReplacer(fake, filepath.Join(root, "backup"))
	var rolledBack []string
	r.OnRollback = func(name string) { rolledBack = append(rolledBack, name) }
	err := r.ReplaceAndRestart("controller", staged, target)
	if err == nil || !strings.Contains(err.Error(), "REPL_TEST_FAIL") {
		t.Fatalf("want injected failure, got %v", err)
	}
	if len(rolledBack) != 1 || rolledBack[0] != "controller" {
		t.Fatalf("rollback callback = %v, want one call for controller", rolledBack)
	}
	blob, _ := os.ReadFile(target)
	if string(blob) != "old build" {
		t.Fatalf("old build not restored: %q", blob)
	}
	if !fake.IsRunning("controller") {
		t.Fatalf("service not restarted on old build")
	}
}

func TestReplaceStartFailureRollsBack(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "controller.bin")
	staged := filepath.Join(root, "staged.bin")
	writeFile(t, target, "old build")
	writeFile(t, staged, "new build")

	fake := &svc.Fake{FailStart: map[string]bool{"controller": true}}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, true)

	r := fastReplacer(fake, filepath.Join(root, "backup"))
	err := r.ReplaceAndRestart("controller", staged, target)
	if err == nil || !strings.Contains(err.Error(), "REPL_START") {
		t.Fatalf("want REPL_START, got %v", err)
	}
	blob, _ := os.ReadFile(target)
	if string(blob) != "old build" {
		t.Fatalf("old build not restored: %q", blob)
	}
}

func TestReplaceBackupCollisionGetsBakSuffix(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "controller.bin")
	staged := filepath.Join(root, "staged.bin")
	backupDir := filepath.Join(root, "backup")
	writeFile(t, target, "old build")
	writeFile(t, staged, "new build")
	writeFile(t, filepath.Join(backupDir, "controller.bin"), "stale backup")

	fake := &svc.Fake{FailStart: map[string]bool{"controller": true}}
	fake.Seed(svc.Descriptor{Name: "controller", Executable: target}, false)

	r := fastReplacer(fake, backupDir)
	if err := r.ReplaceAndRestart("controller", staged, target); err == nil {
		t.Fatalf("expected start failure")
	}
	stale, _ := os.ReadFile(filepath.Join(backupDir, "controller.bin"))
	if string(stale) != "stale backup" {
		t.Fatalf("stale backup overwritten: %q", stale)
	}
	blob, _ := os.ReadFile(target)
	if string(blob) != "old build" {
		t.Fatalf("old build not restored from .bak copy: %q", blob)
	}
}

func TestReinstallHappyPath(t *testing.T) {
	root := t.TempDir()
	staged := filepath.Join(root, "payload", "watchdog.bin")
	installed := filepath.Join(root, "install", "watchdog.bin")
	writeFile(t, staged, "fresh watchdog")

	fake := &svc.Fake{}
	fake.Seed(svc.Descriptor{Name: "watchdog", Executable: installed}, true)

	led := ledger.New(filepath.Join(root, "service_hashes.json"))
	ri := NewReinstaller(fake, led, nil)
	d := svc.Descriptor{Name: "watchdog", Executable: installed, Args: []string{"--companyid", "acme"}}
	if err := ri.Reinstall(d, staged); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	blob, err := os.ReadFile(installed)
	if err != nil || string(blob) != "fresh watchdog" {
		t.Fatalf("installed executable wrong: %q %v", blob, err)
	}
	if _, err := os.Stat(staged); err == nil {
		t.Fatalf("staged executable not removed")
	}
	if !fake.IsRunning("watchdog") {
		t.Fatalf("service not started")
	}
	got, ok := fake.Installed("watchdog")
	if !ok || len(got.Args) != 2 {
		t.Fatalf("descriptor not registered with args: %+v", got)
	}
	if _, ok := led.Get(installed); !ok {
		t.Fatalf("digest not recorded")
	}
}

func TestReinstallAbortsWhenUninstallDoesNotStick(t *testing.T) {
	root := t.TempDir()
	staged := filepath.Join(root, "watchdog.bin")
	installed := filepath.Join(root, "install", "watchdog.bin")
	writeFile(t, staged, "fresh")
	writeFile(t, installed, "old")

	fake := &svc.Fake{FailUninstall: map[string]bool{"watchdog": true}}
	fake.Seed(svc.Descriptor{Name: "watchdog", Executable: installed}, false)

	ri := NewReinstaller(fake, nil, nil)
	err := ri.Reinstall(svc.Descriptor{Name: "watchdog", Executable: installed}, staged)
	if err == nil || !strings.Contains(err.Error(), "REIN_UNINSTALL") {
		t.Fatalf("want REIN_UNINSTALL, got %v", err)
	}
	blob, _ := os.ReadFile(installed)
	if string(blob) != "old" {
		t.Fatalf("installed executable touched after failed uninstall")
	}
}

func TestReinstallMissingStaged(t *testing.T) {
	ri := NewReinstaller(&svc.Fake{}, nil, nil)
	err := ri.Reinstall(svc.Descriptor{Name: "x", Executable: filepath.Join(t.TempDir(), "x.bin")}, filepath.Join(t.TempDir(), "absent.bin"))
	if err == nil || !strings.Contains(err.Error(), "REIN_SOURCE_MISSING") {
		t.Fatalf("want REIN_SOURCE_MISSING, got %v", err)
	}
}
