package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureWritesDefaultDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if cfg.Version != SchemaVersion {
		t.Fatalf("version = %d", cfg.Version)
	}
	if cfg.Cron != DefaultCron {
		t.Fatalf("cron = %q", cfg.Cron)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 default services, got %d", len(cfg.Services))
	}
	if !cfg.Services[0].InstallArgs || cfg.Services[1].InstallArgs {
		t.Fatalf("install_args defaults wrong: %+v", cfg.Services)
	}

	again, err := Ensure(path)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.PackageName != cfg.PackageName {
		t.Fatalf("reload drifted: %q vs %q", again.PackageName, cfg.PackageName)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.TenantID = "acme"
	cfg.SiteID = "site-7"
	cfg.BaseURLs = map[string]string{"americas": "https://pkgs.example.com"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TenantID != "acme" || got.SiteID != "site-7" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.BaseURL() != "https://pkgs.example.com" {
		t.Fatalf("base url = %q", got.BaseURL())
	}
}

func TestNormalizeFillsServiceFields(t *testing.T) {
	cfg := Normalize(Config{
		InstallDir: filepath.FromSlash("/opt/agent"),
		Services:   []ServiceConfig{{Name: "StreamAgentController"}},
	})
	s := cfg.Services[0]
	if s.PackagedExe != "StreamAgentController"+ExeSuffix() {
		t.Fatalf("packaged_exe = %q", s.PackagedExe)
	}
	want := filepath.Join(filepath.FromSlash("/opt/agent"), "StreamAgentController"+ExeSuffix())
	if s.Executable != want {
		t.Fatalf("executable = %q, want %q", s.Executable, want)
	}
}

func TestValidateRejections(t *testing.T) {
	base := Normalize(DefaultConfig())
	cases := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"bad version", func(c *Config) { c.Version = 99 }, "CFG_VERSION"},
		{"no services", func(c *Config) { c.Services = nil }, "CFG_SERVICES"},
		{"duplicate service", func(c *Config) {
			c.Services = append(c.Services, c.Services[0])
		}, "CFG_SERVICES"},
		{"unnamed service", func(c *Config) { c.Services[0].Name = " " }, "CFG_SERVICES"},
	}
	for _, tc := range cases {
		cfg := base
		cfg.Services = append([]ServiceConfig(nil), base.Services...)
		tc.mutate(&cfg)
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tc.code) {
			t.Fatalf("%s: want %s, got %v", tc.name, tc.code, err)
		}
	}
	if err := Validate(base); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLayoutPaths(t *testing.T) {
	cfg := Normalize(DefaultConfig())
	cfg.Root = t.TempDir()
	l, err := NewLayout(cfg)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := l.EnsureLayout(); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	if filepath.Dir(l.PackagePath()) != l.DownloadDir() {
		t.Fatalf("package path outside download dir: %s", l.PackagePath())
	}
	if l.PayloadDir() != filepath.Join(l.ExtractDir(), "StreamAgent") {
		t.Fatalf("payload dir = %s", l.PayloadDir())
	}
	if filepath.Dir(l.ExecLedgerPath()) != l.ExtractDir() {
		t.Fatalf("exec ledger outside extract dir: %s", l.ExecLedgerPath())
	}
	for _, dir := range []string{l.DownloadDir(), l.ExtractDir(), l.BackupDir()} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
}
