package config

import "path/filepath"

func Normalize(cfg Config) Config {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.PackageName == "" {
		cfg.PackageName = DefaultPackageName
	}
	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}
	if cfg.Root == "" {
		cfg.Root = "~/.updagent"
	}
	if cfg.InstallDir == "" {
		cfg.InstallDir = defaultInstallDir()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.BaseURLs == nil {
		cfg.BaseURLs = map[string]string{}
	}
	for i := range cfg.Services {
		s := &cfg.Services[i]
		if s.PackagedExe == "" {
			s.PackagedExe = s.Name + ExeSuffix()
		}
		if s.Executable == "" {
			s.Executable = filepath.Join(cfg.InstallDir, s.Name+ExeSuffix())
		}
	}
	return cfg
}
