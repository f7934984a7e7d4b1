package config

import (
	"fmt"
	"strings"
)

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("CFG_VERSION: unsupported version %d", cfg.Version)
	}
	if cfg.Region == "" {
		return fmt.Errorf("CFG_REGION: region is required")
	}
	if cfg.PackageName == "" {
		return fmt.Errorf("CFG_PACKAGE: package_name is required")
	}
	if cfg.Root == "" {
		return fmt.Errorf("CFG_ROOT: root is required")
	}
	if len(cfg.Services) == 0 {
		return fmt.Errorf("CFG_SERVICES: at least one service is required")
	}
	names := map[string]struct{}{}
	for _, s := range cfg.Services {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("CFG_SERVICES: service name is required")
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("CFG_SERVICES: duplicate service %q", s.Name)
		}
		names[s.Name] = struct{}{}
		if s.Executable == "" {
			return fmt.Errorf("CFG_SERVICES: service %q missing executable", s.Name)
		}
	}
	return nil
}
