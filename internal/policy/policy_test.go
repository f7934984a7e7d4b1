package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReadUpgradePolicyAbsentDefaultsToRestartOnly(t *testing.T) {
	p := ReadUpgradePolicy(t.TempDir())
	if p.Present {
		t.Fatalf("absent document must not read as present")
	}
	if p.FullReinstall {
		t.Fatalf("absent document must default to restart-only")
	}
}

func TestReadUpgradePolicyMalformedEqualsAbsent(t *testing.T) {
	cases := map[string]string{
		"not json":    `{{{`,
		"not object":  `[1,2,3]`,
		"wrong type":  `{"full_reinstall": "yes"}`,
		"null object": `null`,
	}
	for name, content := range cases {
		dir := t.TempDir()
		writeDoc(t, dir, UpgradeFileName, content)
		p := ReadUpgradePolicy(dir)
		if p.FullReinstall {
			t.Fatalf("%s: malformed document must default to restart-only", name)
		}
	}
}

func TestReadUpgradePolicyFullReinstall(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, UpgradeFileName,
		`{"full_reinstall": true, "reason": "abi break", "required_version": "2.1.0", "timestamp": "2026-08-01T00:00:00Z", "extra": 1}`)
	p := ReadUpgradePolicy(dir)
	if !p.Present || !p.FullReinstall {
		t.Fatalf("expected full reinstall policy, got %+v", p)
	}
	if p.Reason != "abi break" || p.RequiredVersion != "2.1.0" {
		t.Fatalf("fields not extracted: %+v", p)
	}
}

func TestReadInstallPolicyServices(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, InstallFileName,
		`{"enable_initial_install": true, "install_reason": "rollout",
		  "services": [{"name": "ctl", "exe": "ctl.exe"}, {"name": "", "exe": "x"}, "junk"]}`)
	p := ReadInstallPolicy(dir)
	if !p.Present || !p.Enabled {
		t.Fatalf("expected enabled install policy, got %+v", p)
	}
	if len(p.Services) != 1 || p.Services[0].Name != "ctl" {
		t.Fatalf("expected one well-formed service entry, got %+v", p.Services)
	}
}

func TestShouldInstallDecisionRule(t *testing.T) {
	cases := []struct {
		name         string
		policy       InstallPolicy
		allInstalled bool
		want         bool
	}{
		{"absent, services missing", InstallPolicy{}, false, true},
		{"absent, services present", InstallPolicy{}, true, false},
		{"enabled, services present", InstallPolicy{Present: true, Enabled: true}, true, true},
		{"disabled, services present", InstallPolicy{Present: true, Enabled: false}, true, false},
		{"disabled, services missing", InstallPolicy{Present: true, Enabled: false}, false, true},
	}
	for _, tc := range cases {
		if got := ShouldInstall(tc.policy, tc.allInstalled); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
